package tenant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fiscalbox/fiscalbox/internal/store"
)

// Collection and field names in the document store.
const (
	Collection = "empresas"

	fieldID        = "id"
	fieldCNPJ      = "cnpj"
	fieldName      = "nome"
	fieldActive    = "ativa"
	fieldCreatedAt = "criadoEm"
	fieldUpdatedAt = "atualizadoEm"

	// ScopeField is the field that ties records in other collections to
	// their owning tenant.
	ScopeField = "empresaId"

	// ScopeIndex is the index name every tenant-scoped collection
	// declares over ScopeField.
	ScopeIndex = "empresa"
)

// Tenant is one registered company. The CNPJ is stored digits-only.
type Tenant struct {
	ID        int64
	CNPJ      string
	Name      string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Context is the security context value: the identity every other screen
// uses to scope its own queries. It is passed and returned explicitly
// through the switch protocol; the broadcast notification is the only
// cross-component signal.
type Context struct {
	TenantID int64
	CNPJ     string
	Name     string
}

// ContextHolder is the consumed security-context capability. The switcher
// requires it to be present before any switch persists.
type ContextHolder interface {
	Set(Context) error
	Clear() error
}

// Validator is the consumed regulatory-identifier capability.
type Validator interface {
	Validate(id string) bool
	Format(id string) string
	ExtractDigits(id string) string
}

// Purger cascades the removal of all records scoped to a deleted tenant.
type Purger interface {
	PurgeTenant(ctx context.Context, tenantID int64) error
}

// Storage is the slice of the guarded CRUD gateway the switcher uses.
type Storage interface {
	Put(ctx context.Context, collection string, rec store.Record) (any, error)
	Get(ctx context.Context, collection string, key any) (store.Record, error)
	GetAll(ctx context.Context, collection string) ([]store.Record, error)
	GetAllByIndex(ctx context.Context, collection, index string, value any) ([]store.Record, error)
	Delete(ctx context.Context, collection string, key any) error
	SetFlagExclusive(ctx context.Context, collection, field string, key any) error
	ClearFlag(ctx context.Context, collection, field string) error
}

// State of the selection lifecycle.
type State string

const (
	StateUninitialized       State = "uninitialized"
	StateIdle                State = "idle"
	StateSwitching           State = "switching"
	StatePendingConfirmation State = "pending-confirmation"
)

// ErrNotLoaded reports a call before Load.
var ErrNotLoaded = errors.New("tenant list not loaded")

// ErrTenantNotFound reports an operation against an unknown tenant id.
var ErrTenantNotFound = errors.New("tenant not found")

// ErrDuplicateCNPJ reports an add or update that would register the same
// regulatory identifier twice.
var ErrDuplicateCNPJ = errors.New("a company with this CNPJ is already registered")

// ErrNoContextHolder reports a switch attempted without the security
// context capability wired. The switch aborts before any persistence.
var ErrNoContextHolder = errors.New("security context holder is not available")

// ErrUnsavedChanges reports a switch deferred because local edits are
// pending. The requested tenant is held until ConfirmPendingSwitch or
// CancelPendingSwitch.
var ErrUnsavedChanges = errors.New("unsaved changes pending: confirm or cancel the switch")

// ValidationError rejects malformed tenant input before any persistence.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// IsValidation reports whether err is a validation rejection.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// record converts the tenant to its stored document form.
func (t Tenant) record() store.Record {
	rec := store.Record{
		fieldCNPJ:      t.CNPJ,
		fieldName:      t.Name,
		fieldActive:    t.Active,
		fieldCreatedAt: t.CreatedAt.UTC().Format(time.RFC3339Nano),
		fieldUpdatedAt: t.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if t.ID != 0 {
		rec[fieldID] = t.ID
	}
	return rec
}

func fromRecord(rec store.Record) (Tenant, error) {
	id, ok := rec.Int64(fieldID)
	if !ok {
		return Tenant{}, fmt.Errorf("tenant record is missing %q", fieldID)
	}
	t := Tenant{
		ID:     id,
		CNPJ:   rec.String(fieldCNPJ),
		Name:   rec.String(fieldName),
		Active: rec.Bool(fieldActive),
	}
	if ts := rec.String(fieldCreatedAt); ts != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			t.CreatedAt = parsed
		}
	}
	if ts := rec.String(fieldUpdatedAt); ts != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			t.UpdatedAt = parsed
		}
	}
	return t, nil
}
