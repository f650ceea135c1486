package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fiscalbox/fiscalbox/internal/schema"
)

// Store is the CRUD gateway over the open database. Every operation is
// scoped to exactly one collection and one transaction; cross-collection
// atomicity is deliberately not offered at this layer. Operations do not
// retry internally; transient storage failures propagate to the caller,
// which may wrap the call with the retry package.
type Store struct {
	db  *sql.DB
	reg *schema.Registry
}

// Registry returns the schema registry the store was opened with.
func (s *Store) Registry() *schema.Registry {
	return s.reg
}

// Version reads the schema version currently recorded on disk.
func (s *Store) Version(ctx context.Context) (int, error) {
	var v int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("read user_version: %w", err)
	}
	return v, nil
}

func (s *Store) collection(name string) (schema.Collection, error) {
	coll, ok := s.reg.Collection(name)
	if !ok {
		return schema.Collection{}, fmt.Errorf("collection %q is not declared in the manifest", name)
	}
	return coll, nil
}

// Put upserts a record by primary key (create-or-replace; there is no
// distinct insert-vs-update API). For auto-increment collections a record
// without a key is inserted and the generated key is written back into
// the record body before the transaction commits. Returns the key.
func (s *Store) Put(ctx context.Context, collection string, rec Record) (any, error) {
	coll, err := s.collection(collection)
	if err != nil {
		return nil, err
	}

	key, hasKey, err := recordKey(coll, rec)
	if err != nil {
		return nil, fmt.Errorf("put %s: %w", collection, err)
	}
	if !hasKey && !coll.AutoIncrement {
		return nil, fmt.Errorf("put %s: record is missing primary key %q", collection, coll.PrimaryKey)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("put %s: begin tx: %w", collection, err)
	}
	defer tx.Rollback() // No-op if committed

	if hasKey {
		rec[coll.PrimaryKey] = key
		body, merr := marshalRecord(rec)
		if merr != nil {
			return nil, fmt.Errorf("put %s: %w", collection, merr)
		}
		_, err = tx.ExecContext(ctx, fmt.Sprintf(`
			INSERT INTO %s (k, body) VALUES (?, ?)
			ON CONFLICT(k) DO UPDATE SET body = excluded.body
		`, tableName(collection)), key, body)
		if err != nil {
			return nil, fmt.Errorf("put %s: %w", collection, err)
		}
	} else {
		// Insert first to claim a key, then backfill it into the body so
		// every stored document carries its own identifier.
		body, merr := marshalRecord(rec)
		if merr != nil {
			return nil, fmt.Errorf("put %s: %w", collection, merr)
		}
		res, ierr := tx.ExecContext(ctx,
			fmt.Sprintf("INSERT INTO %s (body) VALUES (?)", tableName(collection)), body)
		if ierr != nil {
			return nil, fmt.Errorf("put %s: %w", collection, ierr)
		}
		id, ierr := res.LastInsertId()
		if ierr != nil {
			return nil, fmt.Errorf("put %s: last insert id: %w", collection, ierr)
		}
		rec[coll.PrimaryKey] = id
		body, merr = marshalRecord(rec)
		if merr != nil {
			return nil, fmt.Errorf("put %s: %w", collection, merr)
		}
		if _, uerr := tx.ExecContext(ctx,
			fmt.Sprintf("UPDATE %s SET body = ? WHERE k = ?", tableName(collection)), body, id); uerr != nil {
			return nil, fmt.Errorf("put %s: backfill key: %w", collection, uerr)
		}
		key = id
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("put %s: commit: %w", collection, err)
	}
	return key, nil
}

// Get retrieves a single record by primary key.
// Returns ErrNotFound when no record exists.
func (s *Store) Get(ctx context.Context, collection string, key any) (Record, error) {
	coll, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	k, err := normalizeKey(coll, key)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", collection, err)
	}

	var body string
	err = s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT body FROM %s WHERE k = ?", tableName(collection)), k).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get %s key %v: %w", collection, key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", collection, err)
	}
	return unmarshalRecord(body)
}

// GetAll returns every record in the collection in key order.
// Returns an empty slice, not nil, when the collection is empty.
func (s *Store) GetAll(ctx context.Context, collection string) ([]Record, error) {
	if _, err := s.collection(collection); err != nil {
		return nil, err
	}
	return s.queryRecords(ctx, collection,
		fmt.Sprintf("SELECT body FROM %s ORDER BY k ASC", tableName(collection)))
}

// GetAllByIndex returns records whose indexed field equals value, in key
// order. The index must be declared in the manifest.
func (s *Store) GetAllByIndex(ctx context.Context, collection, index string, value any) ([]Record, error) {
	coll, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	idx, ok := coll.Index(index)
	if !ok {
		return nil, fmt.Errorf("collection %q has no index %q", collection, index)
	}
	return s.queryRecords(ctx, collection,
		fmt.Sprintf("SELECT body FROM %s WHERE %s = ? ORDER BY k ASC",
			tableName(collection), extractExpr(idx.Field)),
		bindValue(value))
}

// Delete removes the record with the given key. Deleting an absent key is
// a no-op, mirroring clear semantics.
func (s *Store) Delete(ctx context.Context, collection string, key any) error {
	coll, err := s.collection(collection)
	if err != nil {
		return err
	}
	k, err := normalizeKey(coll, key)
	if err != nil {
		return fmt.Errorf("delete %s: %w", collection, err)
	}
	if _, err := s.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE k = ?", tableName(collection)), k); err != nil {
		return fmt.Errorf("delete %s: %w", collection, err)
	}
	return nil
}

// Clear removes every record in the collection.
func (s *Store) Clear(ctx context.Context, collection string) error {
	if _, err := s.collection(collection); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s", tableName(collection))); err != nil {
		return fmt.Errorf("clear %s: %w", collection, err)
	}
	return nil
}

// Count returns the number of records in the collection.
func (s *Store) Count(ctx context.Context, collection string) (int64, error) {
	if _, err := s.collection(collection); err != nil {
		return 0, err
	}
	var n int64
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s", tableName(collection))).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return n, nil
}

// CountByIndex returns the number of records whose indexed field equals
// value.
func (s *Store) CountByIndex(ctx context.Context, collection, index string, value any) (int64, error) {
	coll, err := s.collection(collection)
	if err != nil {
		return 0, err
	}
	idx, ok := coll.Index(index)
	if !ok {
		return 0, fmt.Errorf("collection %q has no index %q", collection, index)
	}
	var n int64
	err = s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = ?",
			tableName(collection), extractExpr(idx.Field)), bindValue(value)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s by %s: %w", collection, index, err)
	}
	return n, nil
}

// Query walks records in key order, evaluating pred per record and
// stopping once limit matches are collected. limit <= 0 means no limit.
// This is a partial scan: the row cursor is abandoned as soon as the
// limit is reached, not materialized up front.
func (s *Store) Query(ctx context.Context, collection string, pred func(Record) bool, limit int) ([]Record, error) {
	if _, err := s.collection(collection); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT body FROM %s ORDER BY k ASC", tableName(collection)))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()

	matches := []Record{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("query %s: scan: %w", collection, err)
		}
		rec, err := unmarshalRecord(body)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", collection, err)
		}
		if pred(rec) {
			matches = append(matches, rec)
			if limit > 0 && len(matches) >= limit {
				break
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query %s: iterate: %w", collection, err)
	}
	return matches, nil
}

// SetFlagExclusive sets the boolean field true on the record with the
// given key and false on every other record that currently has it set,
// all inside one transaction. The clear touches only records whose flag
// is set, so the common case writes exactly two rows; a previously
// corrupted state with several flagged records is repaired by the same
// statement. Returns ErrNotFound if the target key does not exist.
func (s *Store) SetFlagExclusive(ctx context.Context, collection, field string, key any) error {
	coll, err := s.collection(collection)
	if err != nil {
		return err
	}
	k, err := normalizeKey(coll, key)
	if err != nil {
		return fmt.Errorf("set %s.%s: %w", collection, field, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("set %s.%s: begin tx: %w", collection, field, err)
	}
	defer tx.Rollback()

	// Clear first so the partial unique index never sees two flagged rows.
	_, err = tx.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s SET body = json_set(body, '$.%s', json('false'))
		WHERE %s AND k != ?
	`, tableName(collection), field, extractExpr(field)), k)
	if err != nil {
		return fmt.Errorf("set %s.%s: clear: %w", collection, field, err)
	}

	res, err := tx.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s SET body = json_set(body, '$.%s', json('true'))
		WHERE k = ?
	`, tableName(collection), field), k)
	if err != nil {
		return fmt.Errorf("set %s.%s: %w", collection, field, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set %s.%s: rows affected: %w", collection, field, err)
	}
	if affected == 0 {
		return fmt.Errorf("set %s.%s key %v: %w", collection, field, key, ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("set %s.%s: commit: %w", collection, field, err)
	}
	return nil
}

// ClearFlag sets the boolean field false on every record that has it set.
// Used when the last tenant is deleted and no record should stay active.
func (s *Store) ClearFlag(ctx context.Context, collection, field string) error {
	if _, err := s.collection(collection); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s SET body = json_set(body, '$.%s', json('false'))
		WHERE %s
	`, tableName(collection), field, extractExpr(field)))
	if err != nil {
		return fmt.Errorf("clear %s.%s: %w", collection, field, err)
	}
	return nil
}

func (s *Store) queryRecords(ctx context.Context, collection, query string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("query %s: scan: %w", collection, err)
		}
		rec, err := unmarshalRecord(body)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", collection, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query %s: iterate: %w", collection, err)
	}
	return records, nil
}

// bindValue maps Go values to what json_extract yields in SQLite:
// booleans compare as 1/0.
func bindValue(v any) any {
	if b, ok := v.(bool); ok {
		if b {
			return 1
		}
		return 0
	}
	return v
}
