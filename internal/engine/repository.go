package engine

import (
	"context"

	"github.com/google/uuid"

	"github.com/roach88/strata/internal/model"
)

// Repository is the persistence boundary the engine consumes.
//
// Lookups that find nothing return (nil, nil). Every method returning
// commits or snapshots orders them by the owning commit's CompareKey.
// "Current" means the snapshot whose commit is maximal for its entity.
//
// Implemented by store.Tx (SQLite) and memstore.Store (in memory).
type Repository interface {
	HasCommit(ctx context.Context, id uuid.UUID) (bool, error)
	// AddCommits inserts commits; ids already present are ignored.
	AddCommits(ctx context.Context, commits ...*model.Commit) error
	// UpdateCommitHashes persists rewritten Hash/ParentHash values.
	UpdateCommitHashes(ctx context.Context, commits ...*model.Commit) error
	// AddSnapshots inserts snapshots in the given order, skipping any that already exist.
	AddSnapshots(ctx context.Context, snapshots ...*model.ObjectSnapshot) error

	CurrentCommits(ctx context.Context) ([]*model.Commit, error)
	CurrentSnapshots(ctx context.Context) ([]*model.ObjectSnapshot, error)

	// FindPreviousCommit returns the latest commit strictly before c.
	FindPreviousCommit(ctx context.Context, c *model.Commit) (*model.Commit, error)
	// GetCommitsAfter returns every commit strictly after c, or all commits when c is nil.
	GetCommitsAfter(ctx context.Context, c *model.Commit) ([]*model.Commit, error)
	FindCommitByHash(ctx context.Context, hash string) (*model.Commit, error)

	FindSnapshot(ctx context.Context, id uuid.UUID) (*model.ObjectSnapshot, error)
	GetCurrentSnapshotByEntityID(ctx context.Context, entityID uuid.UUID) (*model.ObjectSnapshot, error)
	// SnapshotsReferencing returns current snapshots (deleted ones included)
	// whose references contain entityID.
	SnapshotsReferencing(ctx context.Context, entityID uuid.UUID) ([]*model.ObjectSnapshot, error)

	// DeleteStaleSnapshots removes snapshots whose commit is at or after oldest.
	DeleteStaleSnapshots(ctx context.Context, oldest *model.Commit) error
}
