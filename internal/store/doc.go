// Package store provides a SQLite-backed audit journal.
//
// The journal is a backend.Backend: each audit batch becomes one SQL
// transaction that appends a batch row and its update texts. The journal can
// be the only backing store, or it can sit in front of a remote store and
// later re-deliver its batches with Replay.
//
// # Tables
//
//   - audit_batches: one row per committed batch, ordered by seq, keyed by
//     the engine's batch ID and carrying its batch_seq when one was supplied
//   - audit_updates: the update texts of a batch, ordered by position, each
//     with the digest of the statement it records
//   - deliveries: which batches Replay already delivered to which target
//
// # Ordering
//
// Reads order by seq, never by recorded_at. Wall-clock timestamps are kept
// for operators only.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
