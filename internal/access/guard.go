package access

import (
	"context"

	"github.com/fiscalbox/fiscalbox/internal/store"
)

// Guarded decorates the CRUD gateway with the access policy. Every
// operation validates its collection first; a denied call never reaches
// storage. All components above the store go through a Guarded handle,
// never the raw gateway.
type Guarded struct {
	policy *Policy
	st     *store.Store
}

// Guard wraps the gateway with the policy.
func Guard(policy *Policy, st *store.Store) *Guarded {
	return &Guarded{policy: policy, st: st}
}

func (g *Guarded) Put(ctx context.Context, collection string, rec store.Record) (any, error) {
	if err := g.policy.Validate(collection); err != nil {
		return nil, err
	}
	return g.st.Put(ctx, collection, rec)
}

func (g *Guarded) Get(ctx context.Context, collection string, key any) (store.Record, error) {
	if err := g.policy.Validate(collection); err != nil {
		return nil, err
	}
	return g.st.Get(ctx, collection, key)
}

func (g *Guarded) GetAll(ctx context.Context, collection string) ([]store.Record, error) {
	if err := g.policy.Validate(collection); err != nil {
		return nil, err
	}
	return g.st.GetAll(ctx, collection)
}

func (g *Guarded) GetAllByIndex(ctx context.Context, collection, index string, value any) ([]store.Record, error) {
	if err := g.policy.Validate(collection); err != nil {
		return nil, err
	}
	return g.st.GetAllByIndex(ctx, collection, index, value)
}

func (g *Guarded) Delete(ctx context.Context, collection string, key any) error {
	if err := g.policy.Validate(collection); err != nil {
		return err
	}
	return g.st.Delete(ctx, collection, key)
}

func (g *Guarded) Clear(ctx context.Context, collection string) error {
	if err := g.policy.Validate(collection); err != nil {
		return err
	}
	return g.st.Clear(ctx, collection)
}

func (g *Guarded) Count(ctx context.Context, collection string) (int64, error) {
	if err := g.policy.Validate(collection); err != nil {
		return 0, err
	}
	return g.st.Count(ctx, collection)
}

func (g *Guarded) CountByIndex(ctx context.Context, collection, index string, value any) (int64, error) {
	if err := g.policy.Validate(collection); err != nil {
		return 0, err
	}
	return g.st.CountByIndex(ctx, collection, index, value)
}

func (g *Guarded) Query(ctx context.Context, collection string, pred func(store.Record) bool, limit int) ([]store.Record, error) {
	if err := g.policy.Validate(collection); err != nil {
		return nil, err
	}
	return g.st.Query(ctx, collection, pred, limit)
}

func (g *Guarded) SetFlagExclusive(ctx context.Context, collection, field string, key any) error {
	if err := g.policy.Validate(collection); err != nil {
		return err
	}
	return g.st.SetFlagExclusive(ctx, collection, field, key)
}

func (g *Guarded) ClearFlag(ctx context.Context, collection, field string) error {
	if err := g.policy.Validate(collection); err != nil {
		return err
	}
	return g.st.ClearFlag(ctx, collection, field)
}
