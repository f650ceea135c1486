// Package store provides the SQLite-backed versioned document store.
//
// Two layers live here:
//
//   - Manager: opens or creates the database, reconciles the on-disk
//     structure with the schema registry, and applies migration steps.
//     Open is memoized; a second call returns the same live handle.
//   - Store: the CRUD gateway. Generic put/get/getAll/getAllByIndex/
//     delete/clear/count/query over any declared collection, each wrapped
//     in a single transaction scoped to that one collection.
//
// # Physical mapping
//
// Every collection becomes one table named c_<collection> with a key
// column and a JSON TEXT body. Secondary indexes are expression indexes
// over json_extract(body, '$.<field>'); unique indexes map to UNIQUE,
// and partial indexes cover only rows where the field is truthy (which is
// how the at-most-one-active-tenant invariant is enforced on disk).
//
// # Versioning
//
// The schema version lives in PRAGMA user_version. Structure is additive
// only. The whole reconciliation (table creation, index creation,
// migration steps, version bump) runs in one transaction: either the
// entire version bump lands or none of it does, so a failed migration
// retries from the same starting version on the next open. Opening a
// database whose version exceeds the registry's is refused, never
// silently downgraded.
//
// # Database configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON
//   - single-writer connection pool (SQLite has one writer at a time)
//
// Writers in other processes are not coordinated beyond SQLite's own
// locking; the manager assumes a single logical writer process.
package store
