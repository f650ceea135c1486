package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/juju/pubsub/v2"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/fiscalbox/fiscalbox/internal/marker"
	"github.com/fiscalbox/fiscalbox/internal/store"
)

// Config wires a Switcher. Storage, Marker, Hub and Validator are
// required; the ContextHolder may be absent at construction but a switch
// refuses to run without it.
type Config struct {
	Storage       Storage
	Marker        *marker.Marker
	Hub           *pubsub.SimpleHub
	Validator     Validator
	ContextHolder ContextHolder
	Purger        Purger
	Clock         clock.Clock
	Logger        *zap.Logger

	// OnChange, when set, runs after each successful switch, once the
	// change notification has been delivered. It typically loads
	// tenant-scoped data for the new selection.
	OnChange func(ctx context.Context, t Tenant) error
}

// Validate checks the required collaborators are present.
func (c Config) Validate() error {
	if c.Storage == nil {
		return errors.New("nil Storage")
	}
	if c.Marker == nil {
		return errors.New("nil Marker")
	}
	if c.Hub == nil {
		return errors.New("nil Hub")
	}
	if c.Validator == nil {
		return errors.New("nil Validator")
	}
	return nil
}

// Switcher owns tenant registration and the single active selection.
// All methods serialize on an internal mutex; operations interleave only
// between calls, never inside one.
type Switcher struct {
	cfg Config
	log *zap.Logger
	clk clock.Clock

	mu       sync.Mutex
	state    State
	tenants  []Tenant
	activeID int64 // 0 = none
	pending  *Tenant
	dirty    bool
}

// NewSwitcher creates a Switcher in the Uninitialized state.
func NewSwitcher(cfg Config) (*Switcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("tenant switcher config: %w", err)
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.WallClock
	}
	return &Switcher{cfg: cfg, log: log, clk: clk, state: StateUninitialized}, nil
}

// Load fetches the tenant list and resolves the active selection:
//
//  1. the durable marker, when it names a tenant in the list (its active
//     flag is forced true in memory);
//  2. else whichever stored record already carries the active flag;
//  3. else the first loaded tenant;
//  4. else none (empty state).
//
// The security context is reconstructed for the resolved tenant. Load is
// safe to call again; it re-reads storage and re-resolves.
func (s *Switcher) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.cfg.Storage.GetAll(ctx, Collection)
	if err != nil {
		return fmt.Errorf("load tenants: %w", err)
	}
	tenants := make([]Tenant, 0, len(records))
	for _, rec := range records {
		t, err := fromRecord(rec)
		if err != nil {
			return fmt.Errorf("load tenants: %w", err)
		}
		tenants = append(tenants, t)
	}
	s.tenants = tenants
	s.activeID = 0

	if key, ok, err := s.cfg.Marker.Read(); err != nil {
		return fmt.Errorf("load tenants: %w", err)
	} else if ok {
		if s.indexOf(key) >= 0 {
			s.activeID = key
		}
	}
	if s.activeID == 0 {
		for _, t := range s.tenants {
			if t.Active {
				s.activeID = t.ID
				break
			}
		}
	}
	if s.activeID == 0 && len(s.tenants) > 0 {
		s.activeID = s.tenants[0].ID
	}
	for i := range s.tenants {
		s.tenants[i].Active = s.tenants[i].ID == s.activeID && s.activeID != 0
	}

	if s.activeID != 0 && s.cfg.ContextHolder != nil {
		t, _ := s.findLocked(s.activeID)
		if err := s.cfg.ContextHolder.Set(Context{TenantID: t.ID, CNPJ: t.CNPJ, Name: t.Name}); err != nil {
			return fmt.Errorf("load tenants: restore security context: %w", err)
		}
	}

	s.state = StateIdle
	s.log.Debug("tenant list loaded",
		zap.Int("count", len(s.tenants)),
		zap.Int64("active", s.activeID),
	)
	return nil
}

// State returns the current lifecycle state.
func (s *Switcher) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Tenants returns a copy of the loaded tenant list.
func (s *Switcher) Tenants() []Tenant {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Tenant, len(s.tenants))
	copy(out, s.tenants)
	return out
}

// Active returns the active tenant, if any.
func (s *Switcher) Active() (Tenant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeID == 0 {
		return Tenant{}, false
	}
	t, _ := s.findLocked(s.activeID)
	return t, true
}

// Pending returns the tenant held for confirmation, if any.
func (s *Switcher) Pending() (Tenant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return Tenant{}, false
	}
	return *s.pending, true
}

// MarkDirty records that unsaved local edits exist. The next SwitchTo is
// deferred to PendingConfirmation instead of running.
func (s *Switcher) MarkDirty() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = true
}

// ClearDirty records that local edits were saved or discarded.
func (s *Switcher) ClearDirty() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = false
}

// HasUnsavedChanges reports whether local edits are pending.
func (s *Switcher) HasUnsavedChanges() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// SwitchTo makes the tenant with the given id the active one.
//
// Switching to the already-active tenant touches no storage; it only
// drops any held pending selection. With unsaved edits pending, the
// request is parked in PendingConfirmation and ErrUnsavedChanges is
// returned: nothing is persisted until ConfirmPendingSwitch or
// CancelPendingSwitch.
func (s *Switcher) SwitchTo(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateUninitialized {
		return ErrNotLoaded
	}
	t, ok := s.findLocked(id)
	if !ok {
		return fmt.Errorf("switch to %d: %w", id, ErrTenantNotFound)
	}
	if id == s.activeID {
		s.pending = nil
		if s.state == StatePendingConfirmation {
			s.state = StateIdle
		}
		return nil
	}
	if s.dirty {
		held := t
		s.pending = &held
		s.state = StatePendingConfirmation
		return fmt.Errorf("switch to %d: %w", id, ErrUnsavedChanges)
	}
	return s.switchLocked(ctx, t)
}

// ConfirmPendingSwitch discards unsaved edits deliberately and performs
// the held switch.
func (s *Switcher) ConfirmPendingSwitch(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return errors.New("no switch pending confirmation")
	}
	target := *s.pending
	s.dirty = false
	err := s.switchLocked(ctx, target)
	s.pending = nil
	return err
}

// CancelPendingSwitch drops the held selection and keeps the current
// tenant. Unsaved edits stay marked.
func (s *Switcher) CancelPendingSwitch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
	if s.state == StatePendingConfirmation {
		s.state = StateIdle
	}
}

// switchLocked runs the switch protocol. Steps before the exclusive-flag
// write abort with storage untouched; steps after it surface their error
// with storage already switched (the marker or notification may be stale
// until the next successful switch). The state always returns to Idle.
func (s *Switcher) switchLocked(ctx context.Context, t Tenant) (err error) {
	s.state = StateSwitching
	defer func() {
		s.state = StateIdle
		if err != nil {
			s.log.Warn("tenant switch failed", zap.Int64("tenant", t.ID), zap.Error(err))
		}
	}()

	if !s.cfg.Validator.Validate(t.CNPJ) {
		return &ValidationError{Field: "cnpj", Message: fmt.Sprintf("%q failed validation", t.CNPJ)}
	}
	if s.cfg.ContextHolder == nil {
		return ErrNoContextHolder
	}
	sctx := Context{TenantID: t.ID, CNPJ: t.CNPJ, Name: t.Name}
	if err := s.cfg.ContextHolder.Set(sctx); err != nil {
		return fmt.Errorf("set security context: %w", err)
	}

	if err := s.cfg.Storage.SetFlagExclusive(ctx, Collection, fieldActive, t.ID); err != nil {
		return fmt.Errorf("persist active tenant: %w", err)
	}
	if err := s.cfg.Marker.Write(t.ID); err != nil {
		return fmt.Errorf("record selection marker: %w", err)
	}

	for i := range s.tenants {
		s.tenants[i].Active = s.tenants[i].ID == t.ID
	}
	s.activeID = t.ID

	if err := s.publishLocked(ctx, t); err != nil {
		return err
	}
	if s.cfg.OnChange != nil {
		if err := s.cfg.OnChange(ctx, t); err != nil {
			return fmt.Errorf("tenant change callback: %w", err)
		}
	}

	s.log.Info("active tenant switched",
		zap.Int64("tenant", t.ID),
		zap.String("cnpj", t.CNPJ),
	)
	return nil
}

// publishLocked broadcasts the change notification and waits for every
// subscriber, so delivery is synchronous after persistence.
func (s *Switcher) publishLocked(ctx context.Context, t Tenant) error {
	wait := s.cfg.Hub.Publish(ChangedTopic, ChangedEvent{
		EventID:  uuid.NewString(),
		TenantID: t.ID,
		CNPJ:     t.CNPJ,
		Name:     t.Name,
	})
	delivered := make(chan struct{})
	go func() {
		wait()
		close(delivered)
	}()
	select {
	case <-delivered:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("deliver change notification: %w", ctx.Err())
	}
}

// AddInput is the caller-supplied data for a new tenant.
type AddInput struct {
	CNPJ string
	Name string
}

// AddTenant validates and registers a company. The first tenant is
// auto-activated, running the same context/marker/notification sequence
// as a switch.
func (s *Switcher) AddTenant(ctx context.Context, in AddInput) (Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateUninitialized {
		return Tenant{}, ErrNotLoaded
	}

	name := norm.NFC.String(strings.TrimSpace(in.Name))
	if name == "" {
		return Tenant{}, &ValidationError{Field: "nome", Message: "display name is required"}
	}
	digits := s.cfg.Validator.ExtractDigits(in.CNPJ)
	if !s.cfg.Validator.Validate(digits) {
		return Tenant{}, &ValidationError{Field: "cnpj", Message: fmt.Sprintf("%q failed validation", in.CNPJ)}
	}

	// Authoritative duplicate check against storage, not just the cached
	// list; the unique index backs this up at the constraint level.
	existing, err := s.cfg.Storage.GetAllByIndex(ctx, Collection, "cnpj", digits)
	if err != nil {
		return Tenant{}, fmt.Errorf("add tenant: %w", err)
	}
	if len(existing) > 0 {
		return Tenant{}, fmt.Errorf("add tenant %s: %w", digits, ErrDuplicateCNPJ)
	}

	now := s.clk.Now().UTC()
	first := len(s.tenants) == 0
	t := Tenant{
		CNPJ:      digits,
		Name:      name,
		Active:    first,
		CreatedAt: now,
		UpdatedAt: now,
	}
	key, err := s.cfg.Storage.Put(ctx, Collection, t.record())
	if err != nil {
		return Tenant{}, fmt.Errorf("add tenant: %w", err)
	}
	id, err := keyToInt64(key)
	if err != nil {
		return Tenant{}, fmt.Errorf("add tenant: %w", err)
	}
	t.ID = id
	s.tenants = append(s.tenants, t)

	if first {
		if err := s.activateLocked(ctx, t); err != nil {
			return t, fmt.Errorf("activate first tenant: %w", err)
		}
	}

	s.log.Info("tenant registered",
		zap.Int64("tenant", t.ID),
		zap.Bool("first", first),
	)
	return t, nil
}

// activateLocked runs the context/marker/notification tail of a switch
// for a tenant whose record is already persisted as active.
func (s *Switcher) activateLocked(ctx context.Context, t Tenant) error {
	if s.cfg.ContextHolder == nil {
		return ErrNoContextHolder
	}
	if err := s.cfg.ContextHolder.Set(Context{TenantID: t.ID, CNPJ: t.CNPJ, Name: t.Name}); err != nil {
		return fmt.Errorf("set security context: %w", err)
	}
	if err := s.cfg.Storage.SetFlagExclusive(ctx, Collection, fieldActive, t.ID); err != nil {
		return fmt.Errorf("persist active tenant: %w", err)
	}
	if err := s.cfg.Marker.Write(t.ID); err != nil {
		return fmt.Errorf("record selection marker: %w", err)
	}
	s.activeID = t.ID
	for i := range s.tenants {
		s.tenants[i].Active = s.tenants[i].ID == t.ID
	}
	if err := s.publishLocked(ctx, t); err != nil {
		return err
	}
	if s.cfg.OnChange != nil {
		if err := s.cfg.OnChange(ctx, t); err != nil {
			return fmt.Errorf("tenant change callback: %w", err)
		}
	}
	return nil
}

// UpdatePatch carries field changes for UpdateTenant. Nil fields are
// left untouched.
type UpdatePatch struct {
	CNPJ *string
	Name *string
}

// UpdateTenant merges the patch into the stored record. The regulatory
// identifier is re-validated only when the patch changes it. Editing the
// active tenant refreshes the security context.
func (s *Switcher) UpdateTenant(ctx context.Context, id int64, patch UpdatePatch) (Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateUninitialized {
		return Tenant{}, ErrNotLoaded
	}
	i := s.indexOf(id)
	if i < 0 {
		return Tenant{}, fmt.Errorf("update tenant %d: %w", id, ErrTenantNotFound)
	}

	// Merge into the stored record, not the cached copy. After a crash
	// between the flag write and the marker write, Load resolves the
	// marker's tenant in memory while another row still carries the
	// stored flag; writing the cached flag back would collide with the
	// exclusive-flag constraint.
	rec, err := s.cfg.Storage.Get(ctx, Collection, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Tenant{}, fmt.Errorf("update tenant %d: %w", id, ErrTenantNotFound)
		}
		return Tenant{}, fmt.Errorf("update tenant: %w", err)
	}
	t, err := fromRecord(rec)
	if err != nil {
		return Tenant{}, fmt.Errorf("update tenant: %w", err)
	}

	if patch.CNPJ != nil {
		digits := s.cfg.Validator.ExtractDigits(*patch.CNPJ)
		if digits != t.CNPJ {
			if !s.cfg.Validator.Validate(digits) {
				return Tenant{}, &ValidationError{Field: "cnpj", Message: fmt.Sprintf("%q failed validation", *patch.CNPJ)}
			}
			dup, err := s.cfg.Storage.GetAllByIndex(ctx, Collection, "cnpj", digits)
			if err != nil {
				return Tenant{}, fmt.Errorf("update tenant: %w", err)
			}
			if len(dup) > 0 {
				return Tenant{}, fmt.Errorf("update tenant %s: %w", digits, ErrDuplicateCNPJ)
			}
			t.CNPJ = digits
		}
	}
	if patch.Name != nil {
		name := norm.NFC.String(strings.TrimSpace(*patch.Name))
		if name == "" {
			return Tenant{}, &ValidationError{Field: "nome", Message: "display name is required"}
		}
		t.Name = name
	}
	t.UpdatedAt = s.clk.Now().UTC()

	if _, err := s.cfg.Storage.Put(ctx, Collection, t.record()); err != nil {
		return Tenant{}, fmt.Errorf("update tenant: %w", err)
	}

	// The cached flag stays as resolved at Load; the on-disk flag is
	// repaired by the next switch, not here.
	t.Active = s.tenants[i].Active
	s.tenants[i] = t

	if id == s.activeID && s.cfg.ContextHolder != nil {
		if err := s.cfg.ContextHolder.Set(Context{TenantID: t.ID, CNPJ: t.CNPJ, Name: t.Name}); err != nil {
			return Tenant{}, fmt.Errorf("update tenant: refresh security context: %w", err)
		}
	}
	return t, nil
}

// DeleteTenant erases the tenant and purges every record scoped to it in
// the other collections. Deleting the active tenant re-elects the first
// remaining tenant (full switch semantics) or clears the security
// context and marker when none remain.
func (s *Switcher) DeleteTenant(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateUninitialized {
		return ErrNotLoaded
	}
	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("delete tenant %d: %w", id, ErrTenantNotFound)
	}
	wasActive := id == s.activeID

	if err := s.cfg.Storage.Delete(ctx, Collection, id); err != nil {
		return fmt.Errorf("delete tenant: %w", err)
	}
	if s.cfg.Purger != nil {
		if err := s.cfg.Purger.PurgeTenant(ctx, id); err != nil {
			return fmt.Errorf("delete tenant: cascade purge: %w", err)
		}
	}
	s.tenants = append(s.tenants[:i], s.tenants[i+1:]...)

	if !wasActive {
		return nil
	}
	s.activeID = 0
	if len(s.tenants) > 0 {
		return s.switchLocked(ctx, s.tenants[0])
	}
	if s.cfg.ContextHolder != nil {
		if err := s.cfg.ContextHolder.Clear(); err != nil {
			return fmt.Errorf("delete tenant: clear security context: %w", err)
		}
	}
	if err := s.cfg.Marker.Clear(); err != nil {
		return fmt.Errorf("delete tenant: %w", err)
	}
	s.log.Info("last tenant deleted, context cleared")
	return nil
}

func (s *Switcher) indexOf(id int64) int {
	for i, t := range s.tenants {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (s *Switcher) findLocked(id int64) (Tenant, bool) {
	if i := s.indexOf(id); i >= 0 {
		return s.tenants[i], true
	}
	return Tenant{}, false
}

func keyToInt64(key any) (int64, error) {
	switch v := key.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("unexpected key type %T", key)
	}
}
