package datamodel

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/strata/internal/chain"
	"github.com/roach88/strata/internal/model"
	"github.com/roach88/strata/internal/store"
)

// GetLatest returns the current snapshot of an entity, deleted or not.
func (dm *DataModel) GetLatest(ctx context.Context, entityID uuid.UUID) (*model.ObjectSnapshot, error) {
	var snap *model.ObjectSnapshot
	err := dm.store.View(ctx, func(tx *store.Tx) error {
		var err error
		snap, err = tx.GetCurrentSnapshotByEntityID(ctx, entityID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get latest %s: %w", entityID, err)
	}
	if snap == nil {
		return nil, fmt.Errorf("entity %s: %w", entityID, ErrNotFound)
	}
	return snap, nil
}

// GetLatestSnapshots returns the current snapshots of live entities of
// typeName. An empty typeName selects every type.
func (dm *DataModel) GetLatestSnapshots(ctx context.Context, typeName string) ([]*model.ObjectSnapshot, error) {
	var snaps []*model.ObjectSnapshot
	err := dm.store.View(ctx, func(tx *store.Tx) error {
		var err error
		if typeName == "" {
			snaps, err = tx.CurrentSnapshots(ctx)
		} else {
			snaps, err = tx.CurrentSnapshotsOfType(ctx, typeName)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get latest snapshots: %w", err)
	}

	live := make([]*model.ObjectSnapshot, 0, len(snaps))
	for _, s := range snaps {
		if !s.EntityIsDeleted {
			live = append(live, s)
		}
	}
	return live, nil
}

// GetEntityAt returns the state of an entity as of commitID.
func (dm *DataModel) GetEntityAt(ctx context.Context, entityID, commitID uuid.UUID) (*model.ObjectSnapshot, error) {
	var snap *model.ObjectSnapshot
	err := dm.store.View(ctx, func(tx *store.Tx) error {
		commit, err := tx.FindCommit(ctx, commitID)
		if err != nil {
			return err
		}
		if commit == nil {
			return fmt.Errorf("commit %s: %w", commitID, ErrNotFound)
		}
		snap, err = tx.SnapshotAt(ctx, entityID, commit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get entity at: %w", err)
	}
	if snap == nil {
		return nil, fmt.Errorf("entity %s at commit %s: %w", entityID, commitID, ErrNotFound)
	}
	return snap, nil
}

// GetSnapshotHistory returns every stored snapshot of an entity in commit
// order. Not every commit that touched the entity has a snapshot: changes
// within one commit collapse into one.
func (dm *DataModel) GetSnapshotHistory(ctx context.Context, entityID uuid.UUID) ([]*model.ObjectSnapshot, error) {
	var history []*model.ObjectSnapshot
	err := dm.store.View(ctx, func(tx *store.Tx) error {
		var err error
		history, err = tx.SnapshotHistory(ctx, entityID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get snapshot history %s: %w", entityID, err)
	}
	return history, nil
}

// Commits returns the whole log in CompareKey order.
func (dm *DataModel) Commits(ctx context.Context) ([]*model.Commit, error) {
	var commits []*model.Commit
	err := dm.store.View(ctx, func(tx *store.Tx) error {
		var err error
		commits, err = tx.CurrentCommits(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list commits: %w", err)
	}
	return commits, nil
}

// ValidateCommits walks the hash chain and returns a *chain.ValidationError
// for the first broken link.
func (dm *DataModel) ValidateCommits(ctx context.Context) error {
	return dm.store.View(ctx, func(tx *store.Tx) error {
		commits, err := tx.CurrentCommits(ctx)
		if err != nil {
			return fmt.Errorf("validate commits: %w", err)
		}
		return chain.Validate(ctx, commits, tx.FindCommitByHash)
	})
}

// Stats summarizes the replica.
type Stats struct {
	ClientID  uuid.UUID       `json:"client_id"`
	Commits   int             `json:"commits"`
	Snapshots int             `json:"snapshots"`
	SyncState model.SyncState `json:"sync_state"`
	Head      string          `json:"head"`
}

// Stats reports row counts, sync state and the chain head.
func (dm *DataModel) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ClientID: dm.clientID, Head: model.NullParentHash}
	err := dm.store.View(ctx, func(tx *store.Tx) error {
		var err error
		if stats.Commits, stats.Snapshots, err = tx.Counts(ctx); err != nil {
			return err
		}
		if stats.SyncState, err = tx.SyncState(ctx); err != nil {
			return err
		}
		latest, err := tx.LatestCommit(ctx)
		if err != nil {
			return err
		}
		if latest != nil {
			stats.Head = latest.Hash
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	return stats, nil
}
