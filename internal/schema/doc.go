// Package schema holds the declarative description of everything the
// document store contains: collections, primary keys, secondary indexes,
// and the ordered migration table between schema versions.
//
// The manifest is written in CUE (manifest.cue, embedded at build time)
// and compiled into a Registry at startup. The Registry is the single
// source of truth consumed by the store manager; nothing else declares
// collections.
//
// Versioning rules:
//   - Version is a positive integer, monotonically non-decreasing on disk.
//   - Structural evolution is additive only: collections and indexes are
//     created if missing, never removed or renamed.
//   - Migration steps are idempotent; applying the chain from any historical
//     version yields the same end state regardless of skipped intermediates.
package schema
