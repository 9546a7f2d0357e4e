// Package store provides the SQLite-backed event log for the tree.
//
// The store implements eventlog.Log with two tables:
//   - <table>: one row per event (sequence_number, id, type, data, tags, recorded_at)
//   - <table>_tags: one row per (event, tag) pair, indexed for tag lookups
//
// # Critical Patterns
//
// Sequence numbers
//   - sequence_number INTEGER PRIMARY KEY AUTOINCREMENT is the total order
//   - Never reused; Truncate resets sqlite_sequence explicitly
//
// Deterministic reads
//   - Every read is ORDER BY sequence_number ASC
//   - Payloads are stored as the canonical JSON produced by package ir
//
// Conditional append
//   - Connections use _txlock=immediate, so every transaction takes the
//     write lock at BEGIN
//   - The append condition is probed and the events are inserted inside that
//     transaction; a matching row past the watermark aborts it with
//     eventlog.ErrAppendConditionFailed
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Tag rows cascade with their event
package store
