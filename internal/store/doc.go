// Package store provides SQLite-backed storage for internal subjects and
// per-resource sync tokens.
//
// Subjects carry an integer version for optimistic concurrency: Save
// compares the caller's version against the stored one and fails with
// ErrConcurrentModification on mismatch instead of overwriting a
// concurrent write. Attribute values live in a child table so correlation
// queries can match on (name, value) with an index, without JSON
// extraction.
//
// Sync tokens are opaque cursors keyed (resource, object class). They are
// written only by the reconciliation engine after a fully successful pass.
//
// Database configuration follows the usual embedded-SQLite setup:
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: child rows follow their subject
package store
