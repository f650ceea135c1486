package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiscalbox/fiscalbox/internal/schema"
)

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg, err := schema.Load()
	require.NoError(t, err)
	return reg
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	mgr := NewManager(filepath.Join(t.TempDir(), "test.db"), testRegistry(t), nil)
	st, err := mgr.Open(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })
	return st
}

func TestOpenFreshDatabase(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	version, err := st.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, version)

	// Every declared collection is queryable.
	for _, coll := range st.Registry().Collections() {
		n, err := st.Count(ctx, coll.Name)
		require.NoError(t, err)
		assert.Zero(t, n)
	}
}

func TestOpenIsMemoized(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager(filepath.Join(t.TempDir(), "test.db"), testRegistry(t), nil)
	defer mgr.Close()

	st1, err := mgr.Open(ctx)
	require.NoError(t, err)
	st2, err := mgr.Open(ctx)
	require.NoError(t, err)
	assert.Same(t, st1, st2)
}

func TestReopenExistingDatabase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")
	reg := testRegistry(t)

	mgr := NewManager(path, reg, nil)
	st, err := mgr.Open(ctx)
	require.NoError(t, err)
	_, err = st.Put(ctx, "clientes", Record{"nome": "ACME", "empresaId": int64(1)})
	require.NoError(t, err)
	require.NoError(t, mgr.Close())

	// Second open against an already-current database changes nothing
	// and the data survives.
	mgr2 := NewManager(path, reg, nil)
	st2, err := mgr2.Open(ctx)
	require.NoError(t, err)
	defer mgr2.Close()

	version, err := st2.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, version)

	n, err := st2.Count(ctx, "clientes")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestOpenRefusesDowngrade(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, "PRAGMA user_version = 99")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	mgr := NewManager(path, testRegistry(t), nil)
	_, err = mgr.Open(ctx)
	require.Error(t, err)
	assert.True(t, IsVersionDowngrade(err), "expected downgrade error, got %v", err)

	var dErr *VersionDowngradeError
	require.ErrorAs(t, err, &dErr)
	assert.Equal(t, 99, dErr.Disk)
	assert.Equal(t, 3, dErr.Manifest)
}

// Opening a v1-era database directly at the current version must produce
// the same physical structure as a database created fresh.
func TestSkipLevelMigrationEquivalence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	reg := testRegistry(t)

	oldPath := filepath.Join(dir, "old.db")
	db, err := sql.Open("sqlite3", oldPath)
	require.NoError(t, err)
	for _, stmt := range []string{
		`CREATE TABLE "c_empresas" (k INTEGER PRIMARY KEY AUTOINCREMENT, body TEXT NOT NULL)`,
		`CREATE TABLE "c_clientes" (k INTEGER PRIMARY KEY AUTOINCREMENT, body TEXT NOT NULL)`,
		`CREATE TABLE "c_orcamentos" (k INTEGER PRIMARY KEY AUTOINCREMENT, body TEXT NOT NULL)`,
		`CREATE UNIQUE INDEX "idx_empresas_cnpj" ON "c_empresas" (json_extract(body, '$.cnpj'))`,
		`PRAGMA user_version = 1`,
	} {
		_, err := db.ExecContext(ctx, stmt)
		require.NoError(t, err, stmt)
	}
	require.NoError(t, db.Close())

	oldMgr := NewManager(oldPath, reg, nil)
	oldSt, err := oldMgr.Open(ctx)
	require.NoError(t, err)
	defer oldMgr.Close()

	freshPath := filepath.Join(dir, "fresh.db")
	freshMgr := NewManager(freshPath, reg, nil)
	freshSt, err := freshMgr.Open(ctx)
	require.NoError(t, err)
	defer freshMgr.Close()

	oldVersion, err := oldSt.Version(ctx)
	require.NoError(t, err)
	freshVersion, err := freshSt.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, freshVersion, oldVersion)

	assert.Equal(t, schemaObjects(t, freshSt), schemaObjects(t, oldSt))
}

// schemaObjects lists table and index names from sqlite_master.
func schemaObjects(t *testing.T, st *Store) []string {
	t.Helper()
	rows, err := st.db.Query(
		`SELECT type || ':' || name FROM sqlite_master
		 WHERE name LIKE 'c_%' OR name LIKE 'idx_%'`)
	require.NoError(t, err)
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		names = append(names, name)
	}
	require.NoError(t, rows.Err())
	sort.Strings(names)
	return names
}

func TestUserVersionPersisted(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	reg := testRegistry(t)
	mgr := NewManager(path, reg, nil)
	_, err := mgr.Open(ctx)
	require.NoError(t, err)
	require.NoError(t, mgr.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()
	var v int
	require.NoError(t, db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v))
	assert.Equal(t, 3, v)
}

func TestTableAndIndexNaming(t *testing.T) {
	assert.Equal(t, `"c_empresas"`, tableName("empresas"))
	assert.Equal(t, `"idx_empresas_cnpj"`, indexName("empresas", "cnpj"))
	assert.Equal(t, "json_extract(body, '$.ativa')", extractExpr("ativa"))
}

func TestCreateIndexSQL(t *testing.T) {
	coll := schema.Collection{Name: "empresas"}
	partial := schema.Index{Name: "ativa", Field: "ativa", Unique: true, Partial: true}
	stmt := createIndexSQL(coll, partial)
	assert.Contains(t, stmt, "CREATE UNIQUE INDEX IF NOT EXISTS")
	assert.Contains(t, stmt, fmt.Sprintf("WHERE %s", extractExpr("ativa")))

	plain := schema.Index{Name: "empresa", Field: "empresaId"}
	stmt = createIndexSQL(coll, plain)
	assert.NotContains(t, stmt, "UNIQUE")
	assert.NotContains(t, stmt, "WHERE")
}
