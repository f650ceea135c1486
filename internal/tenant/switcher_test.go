package tenant_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/juju/pubsub/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiscalbox/fiscalbox/internal/cnpj"
	"github.com/fiscalbox/fiscalbox/internal/marker"
	"github.com/fiscalbox/fiscalbox/internal/schema"
	"github.com/fiscalbox/fiscalbox/internal/store"
	"github.com/fiscalbox/fiscalbox/internal/tenant"
)

// Valid CNPJs used across the tests.
const (
	cnpjA = "11444777000161"
	cnpjB = "11222333000181"
	cnpjC = "00000000000191"
)

// memStorage is an in-memory tenant.Storage, keyed like the real
// gateway: int64 auto-increment keys, records carrying their own id.
type memStorage struct {
	mu    sync.Mutex
	seq   map[string]int64
	colls map[string]map[int64]store.Record

	failSetFlag error // injected failure for SetFlagExclusive
}

// indexFields maps collection/index names to record fields, mirroring
// the manifest declarations.
var indexFields = map[string]map[string]string{
	"empresas":   {"cnpj": "cnpj", "ativa": "ativa"},
	"clientes":   {"empresa": "empresaId"},
	"orcamentos": {"empresa": "empresaId"},
	"servicos":   {"empresa": "empresaId"},
	"analises":   {"empresa": "empresaId"},
}

func newMemStorage() *memStorage {
	return &memStorage{
		seq:   map[string]int64{},
		colls: map[string]map[int64]store.Record{},
	}
}

func (m *memStorage) table(coll string) map[int64]store.Record {
	if m.colls[coll] == nil {
		m.colls[coll] = map[int64]store.Record{}
	}
	return m.colls[coll]
}

func (m *memStorage) Put(ctx context.Context, coll string, rec store.Record) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tbl := m.table(coll)
	key, ok := rec.Int64("id")
	if !ok {
		m.seq[coll]++
		key = m.seq[coll]
		rec["id"] = key
	}
	cp := store.Record{}
	for k, v := range rec {
		cp[k] = v
	}
	tbl[key] = cp
	return key, nil
}

func (m *memStorage) Get(ctx context.Context, coll string, key any) (store.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.table(coll)[key.(int64)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return rec, nil
}

func (m *memStorage) GetAll(ctx context.Context, coll string) ([]store.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tbl := m.table(coll)
	keys := make([]int64, 0, len(tbl))
	for k := range tbl {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	out := []store.Record{}
	for _, k := range keys {
		out = append(out, tbl[k])
	}
	return out, nil
}

func (m *memStorage) GetAllByIndex(ctx context.Context, coll, index string, value any) ([]store.Record, error) {
	field, ok := indexFields[coll][index]
	if !ok {
		return nil, fmt.Errorf("collection %q has no index %q", coll, index)
	}
	all, err := m.GetAll(ctx, coll)
	if err != nil {
		return nil, err
	}
	out := []store.Record{}
	for _, rec := range all {
		if rec[field] == value {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memStorage) Delete(ctx context.Context, coll string, key any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.table(coll), key.(int64))
	return nil
}

func (m *memStorage) SetFlagExclusive(ctx context.Context, coll, field string, key any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSetFlag != nil {
		return m.failSetFlag
	}
	tbl := m.table(coll)
	target, ok := tbl[key.(int64)]
	if !ok {
		return store.ErrNotFound
	}
	for _, rec := range tbl {
		rec[field] = false
	}
	target[field] = true
	return nil
}

func (m *memStorage) ClearFlag(ctx context.Context, coll, field string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.table(coll) {
		rec[field] = false
	}
	return nil
}

// activeKeys lists keys whose flag is set, for invariant assertions.
func (m *memStorage) activeKeys(coll, field string) []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []int64
	for k, rec := range m.table(coll) {
		if b, _ := rec[field].(bool); b {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// memHolder records security context changes in order.
type memHolder struct {
	mu      sync.Mutex
	current *tenant.Context
	history []string
}

func (h *memHolder) Set(c tenant.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = &c
	h.history = append(h.history, fmt.Sprintf("set:%d", c.TenantID))
	return nil
}

func (h *memHolder) Clear() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = nil
	h.history = append(h.history, "clear")
	return nil
}

func (h *memHolder) Current() *tenant.Context {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

type fixture struct {
	storage *memStorage
	mk      *marker.Marker
	hub     *pubsub.SimpleHub
	holder  *memHolder
	sw      *tenant.Switcher

	mu     sync.Mutex
	events []tenant.ChangedEvent
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		storage: newMemStorage(),
		mk:      marker.New(filepath.Join(t.TempDir(), "marker")),
		hub:     pubsub.NewSimpleHub(nil),
		holder:  &memHolder{},
	}
	unsub := tenant.SubscribeChanged(f.hub, func(ev tenant.ChangedEvent) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.events = append(f.events, ev)
	})
	t.Cleanup(unsub)

	sw, err := tenant.NewSwitcher(tenant.Config{
		Storage:       f.storage,
		Marker:        f.mk,
		Hub:           f.hub,
		Validator:     cnpj.New(),
		ContextHolder: f.holder,
	})
	require.NoError(t, err)
	f.sw = sw
	return f
}

func (f *fixture) eventLog() []tenant.ChangedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]tenant.ChangedEvent, len(f.events))
	copy(out, f.events)
	return out
}

func (f *fixture) load(t *testing.T) {
	t.Helper()
	require.NoError(t, f.sw.Load(context.Background()))
}

func (f *fixture) add(t *testing.T, cnpj, name string) tenant.Tenant {
	t.Helper()
	tn, err := f.sw.AddTenant(context.Background(), tenant.AddInput{CNPJ: cnpj, Name: name})
	require.NoError(t, err)
	return tn
}

func TestOperationsRequireLoad(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.sw.AddTenant(ctx, tenant.AddInput{CNPJ: cnpjA, Name: "A"})
	assert.ErrorIs(t, err, tenant.ErrNotLoaded)
	assert.ErrorIs(t, f.sw.SwitchTo(ctx, 1), tenant.ErrNotLoaded)
	assert.ErrorIs(t, f.sw.DeleteTenant(ctx, 1), tenant.ErrNotLoaded)
	assert.Equal(t, tenant.StateUninitialized, f.sw.State())
}

func TestFirstTenantAutoActivates(t *testing.T) {
	f := newFixture(t)
	f.load(t)

	tn := f.add(t, "11.444.777/0001-61", "Empresa A")
	assert.Equal(t, cnpjA, tn.CNPJ, "stored digits-only")
	assert.True(t, tn.Active)

	// Persisted, marked and announced.
	assert.Equal(t, []int64{tn.ID}, f.storage.activeKeys("empresas", "ativa"))
	key, ok, err := f.mk.Read()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, tn.ID, key)

	events := f.eventLog()
	require.Len(t, events, 1)
	assert.Equal(t, tn.ID, events[0].TenantID)
	assert.NotEmpty(t, events[0].EventID)

	require.NotNil(t, f.holder.Current())
	assert.Equal(t, tn.ID, f.holder.Current().TenantID)
}

func TestSecondTenantDoesNotSteal(t *testing.T) {
	f := newFixture(t)
	f.load(t)

	a := f.add(t, cnpjA, "A")
	b := f.add(t, cnpjB, "B")
	assert.False(t, b.Active)

	active, ok := f.sw.Active()
	require.True(t, ok)
	assert.Equal(t, a.ID, active.ID)
	assert.Len(t, f.eventLog(), 1, "only the first registration announces")
}

func TestSwitchTo(t *testing.T) {
	f := newFixture(t)
	f.load(t)
	ctx := context.Background()

	a := f.add(t, cnpjA, "A")
	b := f.add(t, cnpjB, "B")

	require.NoError(t, f.sw.SwitchTo(ctx, b.ID))

	// Exactly one active record, and it is the target.
	assert.Equal(t, []int64{b.ID}, f.storage.activeKeys("empresas", "ativa"))

	key, ok, err := f.mk.Read()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, b.ID, key)

	active, ok := f.sw.Active()
	require.True(t, ok)
	assert.Equal(t, b.ID, active.ID)
	assert.Equal(t, tenant.StateIdle, f.sw.State())

	events := f.eventLog()
	require.Len(t, events, 2)
	assert.Equal(t, b.ID, events[1].TenantID)
	assert.Equal(t, cnpjB, events[1].CNPJ)

	// And back.
	require.NoError(t, f.sw.SwitchTo(ctx, a.ID))
	assert.Equal(t, []int64{a.ID}, f.storage.activeKeys("empresas", "ativa"))
}

func TestSwitchToUnknownTenant(t *testing.T) {
	f := newFixture(t)
	f.load(t)

	err := f.sw.SwitchTo(context.Background(), 99)
	assert.ErrorIs(t, err, tenant.ErrTenantNotFound)
}

func TestSwitchToActiveIsNoop(t *testing.T) {
	f := newFixture(t)
	f.load(t)

	a := f.add(t, cnpjA, "A")
	before := len(f.eventLog())

	require.NoError(t, f.sw.SwitchTo(context.Background(), a.ID))
	assert.Len(t, f.eventLog(), before, "re-selecting the active tenant announces nothing")
}

func TestSwitchFailureLeavesIdleState(t *testing.T) {
	f := newFixture(t)
	f.load(t)
	ctx := context.Background()

	f.add(t, cnpjA, "A")
	b := f.add(t, cnpjB, "B")

	f.storage.failSetFlag = fmt.Errorf("disk full")
	err := f.sw.SwitchTo(ctx, b.ID)
	require.Error(t, err)
	assert.Equal(t, tenant.StateIdle, f.sw.State())

	// Recovery: clearing the fault lets the same switch succeed.
	f.storage.failSetFlag = nil
	require.NoError(t, f.sw.SwitchTo(ctx, b.ID))
	assert.Equal(t, []int64{b.ID}, f.storage.activeKeys("empresas", "ativa"))
}

func TestSwitchToInvalidStoredIdentifierTouchesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A record with a bad check digit can predate validation (an older
	// database, a hand-edited import). The switch refuses it before the
	// security context or any persistence is touched.
	_, err := f.storage.Put(ctx, "empresas", store.Record{
		"cnpj": cnpjA, "nome": "A", "ativa": true,
	})
	require.NoError(t, err)
	badKey, err := f.storage.Put(ctx, "empresas", store.Record{
		"cnpj": "11444777000162", "nome": "Bad Digit", "ativa": false,
	})
	require.NoError(t, err)

	f.load(t)
	active, ok := f.sw.Active()
	require.True(t, ok)

	err = f.sw.SwitchTo(ctx, badKey.(int64))
	assert.True(t, tenant.IsValidation(err), "unexpected error: %v", err)
	assert.Equal(t, tenant.StateIdle, f.sw.State())

	// Storage, marker, context and subscribers are all untouched.
	assert.Equal(t, []int64{active.ID}, f.storage.activeKeys("empresas", "ativa"))
	_, ok, err = f.mk.Read()
	require.NoError(t, err)
	assert.False(t, ok)
	require.NotNil(t, f.holder.Current())
	assert.Equal(t, active.ID, f.holder.Current().TenantID)
	assert.Empty(t, f.eventLog())

	stillActive, ok := f.sw.Active()
	require.True(t, ok)
	assert.Equal(t, active.ID, stillActive.ID)
}

func TestUnsavedChangesDeferSwitch(t *testing.T) {
	f := newFixture(t)
	f.load(t)
	ctx := context.Background()

	a := f.add(t, cnpjA, "A")
	b := f.add(t, cnpjB, "B")

	f.sw.MarkDirty()
	err := f.sw.SwitchTo(ctx, b.ID)
	require.ErrorIs(t, err, tenant.ErrUnsavedChanges)
	assert.Equal(t, tenant.StatePendingConfirmation, f.sw.State())

	// Nothing persisted yet.
	assert.Equal(t, []int64{a.ID}, f.storage.activeKeys("empresas", "ativa"))
	pending, ok := f.sw.Pending()
	require.True(t, ok)
	assert.Equal(t, b.ID, pending.ID)

	// Confirming discards the edits and performs the held switch.
	require.NoError(t, f.sw.ConfirmPendingSwitch(ctx))
	assert.False(t, f.sw.HasUnsavedChanges())
	assert.Equal(t, []int64{b.ID}, f.storage.activeKeys("empresas", "ativa"))
	assert.Equal(t, tenant.StateIdle, f.sw.State())
	_, ok = f.sw.Pending()
	assert.False(t, ok)
}

func TestCancelPendingSwitch(t *testing.T) {
	f := newFixture(t)
	f.load(t)
	ctx := context.Background()

	a := f.add(t, cnpjA, "A")
	b := f.add(t, cnpjB, "B")

	f.sw.MarkDirty()
	require.ErrorIs(t, f.sw.SwitchTo(ctx, b.ID), tenant.ErrUnsavedChanges)

	f.sw.CancelPendingSwitch()
	assert.Equal(t, tenant.StateIdle, f.sw.State())
	assert.True(t, f.sw.HasUnsavedChanges(), "cancelling keeps the edits")

	active, ok := f.sw.Active()
	require.True(t, ok)
	assert.Equal(t, a.ID, active.ID)
}

func TestAddRejectsDuplicateCNPJ(t *testing.T) {
	f := newFixture(t)
	f.load(t)

	f.add(t, cnpjA, "A")
	_, err := f.sw.AddTenant(context.Background(), tenant.AddInput{CNPJ: "11.444.777/0001-61", Name: "Clone"})
	assert.ErrorIs(t, err, tenant.ErrDuplicateCNPJ)
}

func TestAddRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	f.load(t)
	ctx := context.Background()

	_, err := f.sw.AddTenant(ctx, tenant.AddInput{CNPJ: "123", Name: "X"})
	assert.True(t, tenant.IsValidation(err), "short cnpj: %v", err)

	_, err = f.sw.AddTenant(ctx, tenant.AddInput{CNPJ: cnpjA, Name: "   "})
	assert.True(t, tenant.IsValidation(err), "blank name: %v", err)

	// Nothing was stored.
	all, err := f.storage.GetAll(ctx, "empresas")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestUpdateTenant(t *testing.T) {
	f := newFixture(t)
	f.load(t)
	ctx := context.Background()

	a := f.add(t, cnpjA, "Old Name")

	name := "New Name"
	updated, err := f.sw.UpdateTenant(ctx, a.ID, tenant.UpdatePatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "New Name", updated.Name)

	// Editing the active tenant refreshes the security context.
	require.NotNil(t, f.holder.Current())
	assert.Equal(t, "New Name", f.holder.Current().Name)

	// Same CNPJ in a new format is not re-validated as a change.
	sameCNPJ := "11.444.777/0001-61"
	_, err = f.sw.UpdateTenant(ctx, a.ID, tenant.UpdatePatch{CNPJ: &sameCNPJ})
	require.NoError(t, err)

	bad := "11444777000162"
	_, err = f.sw.UpdateTenant(ctx, a.ID, tenant.UpdatePatch{CNPJ: &bad})
	assert.True(t, tenant.IsValidation(err))
}

func TestUpdateAfterInterruptedSwitchKeepsStoredFlag(t *testing.T) {
	ctx := context.Background()
	reg, err := schema.Load()
	require.NoError(t, err)
	dir := t.TempDir()
	mgr := store.NewManager(filepath.Join(dir, "test.db"), reg, nil)
	st, err := mgr.Open(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })

	mk := marker.New(filepath.Join(dir, "marker"))
	hub := pubsub.NewSimpleHub(nil)
	holder := &memHolder{}
	newSwitcher := func() *tenant.Switcher {
		sw, err := tenant.NewSwitcher(tenant.Config{
			Storage:       st,
			Marker:        mk,
			Hub:           hub,
			Validator:     cnpj.New(),
			ContextHolder: holder,
		})
		require.NoError(t, err)
		return sw
	}

	sw := newSwitcher()
	require.NoError(t, sw.Load(ctx))
	a, err := sw.AddTenant(ctx, tenant.AddInput{CNPJ: cnpjA, Name: "A"})
	require.NoError(t, err)
	b, err := sw.AddTenant(ctx, tenant.AddInput{CNPJ: cnpjB, Name: "B"})
	require.NoError(t, err)
	require.NoError(t, sw.SwitchTo(ctx, b.ID))

	// A crash between the flag write and the marker write leaves the
	// stored flag on B with the marker still naming A. Load resolves A;
	// editing A must not write its stale flag back past the exclusive
	// constraint.
	require.NoError(t, mk.Write(a.ID))
	sw2 := newSwitcher()
	require.NoError(t, sw2.Load(ctx))
	active, ok := sw2.Active()
	require.True(t, ok)
	require.Equal(t, a.ID, active.ID)

	name := "A Renamed"
	updated, err := sw2.UpdateTenant(ctx, a.ID, tenant.UpdatePatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "A Renamed", updated.Name)
	assert.True(t, updated.Active, "resolved selection keeps its in-memory flag")

	// On disk, B is still the single flagged row.
	flagged, err := st.GetAllByIndex(ctx, "empresas", "ativa", true)
	require.NoError(t, err)
	require.Len(t, flagged, 1)
	id, ok := flagged[0].Int64("id")
	require.True(t, ok)
	assert.Equal(t, b.ID, id)
	assert.Equal(t, "B", flagged[0].String("nome"))
}

func TestDeleteActiveTenantReelects(t *testing.T) {
	f := newFixture(t)
	f.load(t)
	ctx := context.Background()

	a := f.add(t, cnpjA, "A")
	b := f.add(t, cnpjB, "B")

	require.NoError(t, f.sw.DeleteTenant(ctx, a.ID))

	active, ok := f.sw.Active()
	require.True(t, ok)
	assert.Equal(t, b.ID, active.ID)
	assert.Equal(t, []int64{b.ID}, f.storage.activeKeys("empresas", "ativa"))

	key, ok, err := f.mk.Read()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, b.ID, key)
}

func TestDeleteInactiveTenantKeepsSelection(t *testing.T) {
	f := newFixture(t)
	f.load(t)
	ctx := context.Background()

	a := f.add(t, cnpjA, "A")
	b := f.add(t, cnpjB, "B")
	before := len(f.eventLog())

	require.NoError(t, f.sw.DeleteTenant(ctx, b.ID))

	active, ok := f.sw.Active()
	require.True(t, ok)
	assert.Equal(t, a.ID, active.ID)
	assert.Len(t, f.eventLog(), before, "deleting a bystander announces nothing")
}

func TestDeleteLastTenantClearsEverything(t *testing.T) {
	f := newFixture(t)
	f.load(t)
	ctx := context.Background()

	a := f.add(t, cnpjA, "A")
	require.NoError(t, f.sw.DeleteTenant(ctx, a.ID))

	_, ok := f.sw.Active()
	assert.False(t, ok)
	assert.Nil(t, f.holder.Current())

	_, ok, err := f.mk.Read()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, f.sw.Tenants())
}

func TestDeleteTenantPurgesScopedData(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	purger := tenant.NewScopePurger(f.storage, []string{"clientes", "orcamentos"}, nil)
	sw, err := tenant.NewSwitcher(tenant.Config{
		Storage:       f.storage,
		Marker:        f.mk,
		Hub:           f.hub,
		Validator:     cnpj.New(),
		ContextHolder: f.holder,
		Purger:        purger,
	})
	require.NoError(t, err)
	require.NoError(t, sw.Load(ctx))

	a, err := sw.AddTenant(ctx, tenant.AddInput{CNPJ: cnpjA, Name: "A"})
	require.NoError(t, err)
	b, err := sw.AddTenant(ctx, tenant.AddInput{CNPJ: cnpjB, Name: "B"})
	require.NoError(t, err)

	for _, tid := range []int64{a.ID, a.ID, b.ID} {
		_, err := f.storage.Put(ctx, "clientes", store.Record{"empresaId": tid})
		require.NoError(t, err)
		_, err = f.storage.Put(ctx, "orcamentos", store.Record{"empresaId": tid})
		require.NoError(t, err)
	}

	require.NoError(t, sw.DeleteTenant(ctx, a.ID))

	remaining, err := f.storage.GetAll(ctx, "clientes")
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, b.ID, remaining[0]["empresaId"])

	remaining, err = f.storage.GetAll(ctx, "orcamentos")
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestLoadPrefersMarkerOverStoredFlag(t *testing.T) {
	f := newFixture(t)
	f.load(t)
	ctx := context.Background()

	a := f.add(t, cnpjA, "A")
	b := f.add(t, cnpjB, "B")

	// Storage says A is active; the marker names B (e.g. the flag write
	// and marker write raced a crash). The marker wins.
	require.NoError(t, f.mk.Write(b.ID))

	sw2, err := tenant.NewSwitcher(tenant.Config{
		Storage:       f.storage,
		Marker:        f.mk,
		Hub:           f.hub,
		Validator:     cnpj.New(),
		ContextHolder: f.holder,
	})
	require.NoError(t, err)
	require.NoError(t, sw2.Load(ctx))

	active, ok := sw2.Active()
	require.True(t, ok)
	assert.Equal(t, b.ID, active.ID)

	// The stale stored flag is not reflected in memory.
	for _, tn := range sw2.Tenants() {
		if tn.ID == a.ID {
			assert.False(t, tn.Active)
		}
	}
}

func TestLoadFallsBackToStoredFlagThenFirst(t *testing.T) {
	f := newFixture(t)
	f.load(t)
	ctx := context.Background()

	a := f.add(t, cnpjA, "A")
	b := f.add(t, cnpjB, "B")
	require.NoError(t, f.sw.SwitchTo(ctx, b.ID))

	// No marker: the stored flag decides.
	require.NoError(t, f.mk.Clear())
	sw2, err := tenant.NewSwitcher(tenant.Config{
		Storage:       f.storage,
		Marker:        f.mk,
		Hub:           f.hub,
		Validator:     cnpj.New(),
		ContextHolder: f.holder,
	})
	require.NoError(t, err)
	require.NoError(t, sw2.Load(ctx))
	active, ok := sw2.Active()
	require.True(t, ok)
	assert.Equal(t, b.ID, active.ID)

	// No marker and no flag: the first tenant is elected in memory.
	require.NoError(t, f.storage.ClearFlag(ctx, "empresas", "ativa"))
	sw3, err := tenant.NewSwitcher(tenant.Config{
		Storage:       f.storage,
		Marker:        f.mk,
		Hub:           f.hub,
		Validator:     cnpj.New(),
		ContextHolder: f.holder,
	})
	require.NoError(t, err)
	require.NoError(t, sw3.Load(ctx))
	active, ok = sw3.Active()
	require.True(t, ok)
	assert.Equal(t, a.ID, active.ID)
}

func TestLoadEmptyStore(t *testing.T) {
	f := newFixture(t)
	f.load(t)

	assert.Empty(t, f.sw.Tenants())
	_, ok := f.sw.Active()
	assert.False(t, ok)
	assert.Equal(t, tenant.StateIdle, f.sw.State())
}

func TestNameIsTrimmedAndNormalized(t *testing.T) {
	f := newFixture(t)
	f.load(t)

	tn := f.add(t, cnpjA, "  Serviços Contábeis  ")
	assert.Equal(t, "Serviços Contábeis", tn.Name)
}
