package access

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiscalbox/fiscalbox/internal/schema"
	"github.com/fiscalbox/fiscalbox/internal/store"
)

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg, err := schema.Load()
	require.NoError(t, err)
	return reg
}

func TestPolicyValidate(t *testing.T) {
	reg := testRegistry(t)

	standard := NewPolicy(reg, RoleStandard)
	privileged := NewPolicy(reg, RolePrivileged)

	assert.NoError(t, standard.Validate("clientes"))
	assert.NoError(t, privileged.Validate("clientes"))

	err := standard.Validate("analises")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.NoError(t, privileged.Validate("analises"))

	err = standard.Validate("nada")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownCollection)
}

func TestGuardDeniesBeforeStorage(t *testing.T) {
	ctx := context.Background()
	reg := testRegistry(t)

	mgr := store.NewManager(filepath.Join(t.TempDir(), "test.db"), reg, nil)
	st, err := mgr.Open(ctx)
	require.NoError(t, err)
	defer mgr.Close()

	standard := Guard(NewPolicy(reg, RoleStandard), st)
	privileged := Guard(NewPolicy(reg, RolePrivileged), st)

	// Denied writes never reach storage.
	_, err = standard.Put(ctx, "analises", store.Record{"empresaId": int64(1)})
	require.ErrorIs(t, err, ErrForbidden)
	n, err := privileged.Count(ctx, "analises")
	require.NoError(t, err)
	assert.Zero(t, n, "denied put must not write anything")

	// Denied reads fail, never silently filter.
	_, err = standard.GetAll(ctx, "analises")
	require.ErrorIs(t, err, ErrForbidden)
	_, err = standard.Get(ctx, "analises", int64(1))
	require.ErrorIs(t, err, ErrForbidden)
	err = standard.Delete(ctx, "analises", int64(1))
	require.ErrorIs(t, err, ErrForbidden)
	err = standard.Clear(ctx, "analises")
	require.ErrorIs(t, err, ErrForbidden)

	// The same handle works normally on unrestricted collections.
	key, err := standard.Put(ctx, "clientes", store.Record{"nome": "x", "empresaId": int64(1)})
	require.NoError(t, err)
	_, err = standard.Get(ctx, "clientes", key)
	require.NoError(t, err)

	// Privileged reaches the restricted collection.
	_, err = privileged.Put(ctx, "analises", store.Record{"empresaId": int64(1)})
	require.NoError(t, err)
}

func TestGuardUnknownCollection(t *testing.T) {
	ctx := context.Background()
	reg := testRegistry(t)

	mgr := store.NewManager(filepath.Join(t.TempDir(), "test.db"), reg, nil)
	st, err := mgr.Open(ctx)
	require.NoError(t, err)
	defer mgr.Close()

	g := Guard(NewPolicy(reg, RolePrivileged), st)
	_, err = g.GetAll(ctx, "desconhecida")
	require.ErrorIs(t, err, ErrUnknownCollection)
}
