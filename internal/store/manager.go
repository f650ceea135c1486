package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/fiscalbox/fiscalbox/internal/schema"
)

// Manager owns the lifecycle of one database file. It is handed to the
// components that need storage by the composition root; there is no
// package-level connection.
type Manager struct {
	path string
	reg  *schema.Registry
	log  *zap.Logger

	mu    sync.Mutex
	store *Store
}

// NewManager creates a manager for the database at path, described by reg.
// The database is not touched until Open.
func NewManager(path string, reg *schema.Registry, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{path: path, reg: reg, log: log}
}

// Open creates or opens the database and reconciles it with the registry.
//
// Open is idempotent and memoized: a second call while the store is open
// returns the same live handle rather than reopening. Failure to open
// (corruption, permissions, refused downgrade) is fatal for the caller;
// no fallback store is substituted.
func (m *Manager) Open(ctx context.Context) (*Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.store != nil {
		return m.store, nil
	}

	db, err := sql.Open("sqlite3", m.path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// SQLite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY between our own operations.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}

	from, to, err := m.migrate(ctx, db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if from != to {
		m.log.Info("schema migrated",
			zap.String("path", m.path),
			zap.Int("from", from),
			zap.Int("to", to),
		)
	}

	m.store = &Store{db: db, reg: m.reg}
	return m.store, nil
}

// Close closes the store if it is open. The next Open reopens.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.store == nil {
		return nil
	}
	err := m.store.db.Close()
	m.store = nil
	return err
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

// migrate reconciles on-disk structure with the registry inside a single
// transaction. Either the whole version bump lands (tables, indexes,
// migration steps, user_version) or none of it does, so an aborted
// migration retries from the same starting version next open.
func (m *Manager) migrate(ctx context.Context, db *sql.DB) (from, to int, err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var disk int
	if err := tx.QueryRowContext(ctx, "PRAGMA user_version").Scan(&disk); err != nil {
		return 0, 0, fmt.Errorf("read user_version: %w", err)
	}

	target := m.reg.Version
	if disk > target {
		return 0, 0, &VersionDowngradeError{Disk: disk, Manifest: target}
	}

	// Structural pass: create what the registry declares and is missing.
	// Existing tables and indexes are left untouched (additive-only
	// evolution), which is what makes a skip-level open equivalent to
	// stepping through every intermediate version.
	for _, coll := range m.reg.Collections() {
		if _, err := tx.ExecContext(ctx, createTableSQL(coll)); err != nil {
			return 0, 0, fmt.Errorf("create collection %q: %w", coll.Name, err)
		}
		for _, idx := range coll.Indexes {
			if _, err := tx.ExecContext(ctx, createIndexSQL(coll, idx)); err != nil {
				return 0, 0, fmt.Errorf("create index %q on %q: %w", idx.Name, coll.Name, err)
			}
		}
	}

	// Version-specific steps for the gap observed at this open. All steps
	// are idempotent creates, so re-execution after the structural pass is
	// harmless by construction.
	if disk < target {
		for _, step := range m.reg.StepsBetween(disk, target) {
			coll, ok := m.reg.Collection(step.Collection)
			if !ok {
				return 0, 0, fmt.Errorf("migration step references unknown collection %q", step.Collection)
			}
			idx, ok := coll.Index(step.Index)
			if !ok {
				return 0, 0, fmt.Errorf("migration step references unknown index %q on %q", step.Index, step.Collection)
			}
			if _, err := tx.ExecContext(ctx, createIndexSQL(coll, idx)); err != nil {
				return 0, 0, fmt.Errorf("migration step %q/%q: %w", step.Collection, step.Index, err)
			}
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", target)); err != nil {
			return 0, 0, fmt.Errorf("set user_version: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit migration: %w", err)
	}
	return disk, target, nil
}

// tableName maps a collection to its physical table.
func tableName(coll string) string {
	return `"c_` + coll + `"`
}

func indexName(coll, idx string) string {
	return fmt.Sprintf(`"idx_%s_%s"`, coll, idx)
}

func createTableSQL(coll schema.Collection) string {
	keyType := "TEXT PRIMARY KEY"
	if coll.AutoIncrement {
		keyType = "INTEGER PRIMARY KEY AUTOINCREMENT"
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (k %s, body TEXT NOT NULL)", tableName(coll.Name), keyType)
}

func createIndexSQL(coll schema.Collection, idx schema.Index) string {
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	stmt := fmt.Sprintf("CREATE %sINDEX IF NOT EXISTS %s ON %s (%s)",
		unique, indexName(coll.Name, idx.Name), tableName(coll.Name), extractExpr(idx.Field))
	if idx.Partial {
		stmt += " WHERE " + extractExpr(idx.Field)
	}
	return stmt
}

// extractExpr is the expression indexed for a record field. Queries must
// use the identical expression or SQLite will not use the index.
func extractExpr(field string) string {
	return fmt.Sprintf("json_extract(body, '$.%s')", field)
}
