// Package store provides SQLite-backed durable storage for a strata replica.
//
// The store holds:
//   - Commits: the hash-chained commit log
//   - Change entities: the ordered changes of each commit
//   - Snapshots: materialized entity states, one per (entity, commit)
//   - Snapshot references: reverse index used by cascading deletes
//   - Meta: replica-local settings (client id)
//
// # Ordering
//
// Every query orders commits by (date_time, counter, id COLLATE BINARY).
// Ids are stored as lowercase canonical UUID strings, whose binary order
// equals the order of the raw 16 bytes.
//
// "Current" snapshot of an entity means the snapshot whose commit is
// latest in that order.
//
// # Transactions
//
// Tx implements engine.Repository. A reconciliation runs entirely inside
// Store.WithTx while holding Store.Lock, so commit inserts, stale snapshot
// deletion, snapshot inserts and hash rewrites commit or roll back together.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
