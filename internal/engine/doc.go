// Package engine implements the strata snapshot reconstruction engine.
//
// The engine turns a commit log into materialized entity state. Whenever
// history changes (a local commit, a merge from another replica, a commit
// authored in the past) it recomputes only the affected suffix.
//
// ARCHITECTURE:
//
// Single-Use Worker:
// Each reconciliation pass runs on a fresh Worker holding three caches:
//   - pending: entity id -> latest non-root snapshot produced in this pass
//   - roots: entity id -> root snapshot produced in this pass
//   - intermediates: displaced snapshots kept as replay checkpoints
//
// A Worker refuses a second UpdateSnapshots call (ErrWorkerReused).
//
// Reconciliation Flow:
//  1. Delete snapshots at or after the oldest affected commit
//  2. Find the previous commit; its hash seeds the rechaining
//  3. Replay every commit after it (persisted ∪ new) in CompareKey order
//  4. Persist roots, then intermediates, then current snapshots
//
// Snapshot Lookup:
// pending -> roots -> repository. Snapshots produced earlier in the pass
// always win over persisted ones.
//
// Cascading Delete:
// When a change deletes an entity, every entity referencing it has the
// reference removed in the same commit. Removal may delete the holder too,
// which cascades further. The cascade is a work queue with a visited set so
// long reference chains never grow the call stack.
//
// The engine does not lock or open transactions. The caller serializes
// passes per physical store and runs each one inside a single transaction.
package engine
