package tenant

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// ScopePurger removes every record belonging to a tenant from the
// tenant-scoped collections, using the scope index each of them declares.
type ScopePurger struct {
	storage     Storage
	collections []string
	log         *zap.Logger
}

// NewScopePurger builds a purger over the named collections. Each must
// declare the "empresa" index over the empresaId field.
func NewScopePurger(storage Storage, collections []string, log *zap.Logger) *ScopePurger {
	if log == nil {
		log = zap.NewNop()
	}
	return &ScopePurger{storage: storage, collections: collections, log: log}
}

// PurgeTenant deletes the tenant's records collection by collection.
// Records are looked up through the scope index, so the cost is bounded
// by the tenant's own data, not the collection size.
func (p *ScopePurger) PurgeTenant(ctx context.Context, tenantID int64) error {
	total := 0
	for _, coll := range p.collections {
		records, err := p.storage.GetAllByIndex(ctx, coll, ScopeIndex, tenantID)
		if err != nil {
			return fmt.Errorf("purge tenant %d from %s: %w", tenantID, coll, err)
		}
		for _, rec := range records {
			key, ok := rec.Int64(fieldID)
			if !ok {
				return fmt.Errorf("purge tenant %d from %s: record has no key", tenantID, coll)
			}
			if err := p.storage.Delete(ctx, coll, key); err != nil {
				return fmt.Errorf("purge tenant %d from %s: %w", tenantID, coll, err)
			}
		}
		total += len(records)
	}
	p.log.Info("tenant data purged",
		zap.Int64("tenant", tenantID),
		zap.Int("records", total),
	)
	return nil
}
