// Package syncer reconciles commit logs between replicas.
//
// Replicas exchange SyncStates, compute the commits the other side lacks,
// and merge what they receive through the snapshot engine. The package
// has no transport: Sync connects two in-process Syncables, and anything
// that can carry a SyncState and a ChangesResult can drive the same calls.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/google/uuid"

	"github.com/roach88/strata/internal/engine"
	"github.com/roach88/strata/internal/model"
)

// CommitSource lists the commits one client authored.
type CommitSource interface {
	// CommitsFromClientSince returns commits by clientID at or after
	// sinceMillis, in CompareKey order.
	CommitsFromClientSince(ctx context.Context, clientID uuid.UUID, sinceMillis int64) ([]*model.Commit, error)
}

// Syncable is one replica as seen by the sync protocol.
type Syncable interface {
	GetSyncState(ctx context.Context) (model.SyncState, error)
	// GetChanges returns what the holder of remote is missing, plus the
	// local SyncState.
	GetChanges(ctx context.Context, remote model.SyncState) (*model.ChangesResult, error)
	// AddRangeFromSync merges commits and returns how many were new.
	AddRangeFromSync(ctx context.Context, commits []*model.Commit) (int, error)
}

// ComputeMissing returns the commits in source that a replica with remote
// state does not have, in CompareKey order.
//
// A client unknown to remote contributes all of its commits. A client
// remote knows contributes commits at or after remote's instant for it:
// commits sharing that millisecond may differ only by counter, and
// re-sending them is harmless because merging is idempotent.
func ComputeMissing(ctx context.Context, source CommitSource, local, remote model.SyncState) ([]*model.Commit, error) {
	var missing []*model.Commit
	for client, localMs := range local {
		since := int64(math.MinInt64)
		if remoteMs, ok := remote[client]; ok {
			if localMs < remoteMs {
				continue
			}
			since = remoteMs
		}
		commits, err := source.CommitsFromClientSince(ctx, client, since)
		if err != nil {
			return nil, fmt.Errorf("compute missing for client %s: %w", client, err)
		}
		missing = append(missing, commits...)
	}
	if missing == nil {
		missing = []*model.Commit{}
	}
	model.SortCommits(missing)
	return missing, nil
}

// MergeResult describes one merge.
type MergeResult struct {
	// Added are the commits that were new to the repository.
	Added []*model.Commit
	// Snapshots is the engine result, nil when nothing was added.
	Snapshots *engine.Result
}

// Merge adds commits not yet in repo and reconciles snapshots from the
// oldest of them. Commits already present, or repeated in the batch, are
// skipped; when nothing is new Merge does nothing.
//
// The caller owns locking and the transaction that repo is bound to.
func Merge(ctx context.Context, repo engine.Repository, commits []*model.Commit, opts ...engine.WorkerOption) (*MergeResult, error) {
	seen := make(map[uuid.UUID]bool, len(commits))
	var fresh []*model.Commit
	for _, c := range commits {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		has, err := repo.HasCommit(ctx, c.ID)
		if err != nil {
			return nil, fmt.Errorf("merge: %w", err)
		}
		if !has {
			fresh = append(fresh, c)
		}
	}
	if len(fresh) == 0 {
		return &MergeResult{}, nil
	}

	if err := repo.AddCommits(ctx, fresh...); err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}

	oldest := fresh[0]
	for _, c := range fresh[1:] {
		if model.CompareCommits(c, oldest) < 0 {
			oldest = c
		}
	}

	result, err := engine.NewWorker(repo, opts...).UpdateSnapshots(ctx, oldest, fresh)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	return &MergeResult{Added: fresh, Snapshots: result}, nil
}

// SyncResult counts the commits exchanged by Sync. Only commits new to
// the receiving side are counted; resent commits from a shared
// millisecond are not.
type SyncResult struct {
	// Pulled commits went from remote to local.
	Pulled int
	// Pushed commits went from local to remote.
	Pushed int
}

// Sync runs a full two-way exchange: local pulls what it lacks from
// remote, then pushes what remote lacks. Afterwards both sides hold the
// union of their logs.
func Sync(ctx context.Context, local, remote Syncable) (SyncResult, error) {
	var result SyncResult

	localState, err := local.GetSyncState(ctx)
	if err != nil {
		return result, fmt.Errorf("sync: local state: %w", err)
	}

	pulled, err := remote.GetChanges(ctx, localState)
	if err != nil {
		return result, fmt.Errorf("sync: remote changes: %w", err)
	}
	if len(pulled.MissingFromClient) > 0 {
		result.Pulled, err = local.AddRangeFromSync(ctx, pulled.MissingFromClient)
		if err != nil {
			return result, fmt.Errorf("sync: apply remote changes: %w", err)
		}
	}

	pushed, err := local.GetChanges(ctx, pulled.ServerSyncState)
	if err != nil {
		return result, fmt.Errorf("sync: local changes: %w", err)
	}
	if len(pushed.MissingFromClient) > 0 {
		result.Pushed, err = remote.AddRangeFromSync(ctx, pushed.MissingFromClient)
		if err != nil {
			return result, fmt.Errorf("sync: apply local changes: %w", err)
		}
	}

	slog.Debug("sync complete", "pulled", result.Pulled, "pushed", result.Pushed)
	return result, nil
}
