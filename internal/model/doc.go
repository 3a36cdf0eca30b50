// Package model defines the data model shared by every strata package.
//
// This package contains the commit log types (HybridTimestamp, Commit,
// ChangeEntity), the materialized state types (ObjectSnapshot), the sync
// exchange types (SyncState, ChangesResult), and the two capability
// contracts the reconstruction engine depends on: Change and Entity.
//
// Key design constraints:
//   - model imports nothing internal; every other package imports model
//   - CompareKey (timestamp, counter, commit id) is the only ordering used
//     for commits and snapshots
//   - concrete Change and Entity types register under a stable string
//     discriminator (RegisterChange, RegisterEntity) which is used both for
//     persistence and for dispatch
//   - all JSON tags use snake_case
package model
