package engine_test

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/engine"
	"github.com/roach88/strata/internal/memstore"
	"github.com/roach88/strata/internal/model"
	"github.com/roach88/strata/internal/testutil"
)

var clientA = testutil.ID(0xA)

// at returns a timestamp offset from testutil.Epoch by n seconds.
func at(n int, counter int64) model.HybridTimestamp {
	return model.NewHybridTimestamp(testutil.Epoch.Add(time.Duration(n)*time.Second), counter)
}

// commitAt builds a commit with a readable id.
func commitAt(id uint64, ts model.HybridTimestamp, changes ...model.Change) *model.Commit {
	return model.NewCommit(testutil.ID(0x1000+id), clientA, ts, model.CommitMetadata{}, changes...)
}

// merge persists commits and runs one reconciliation pass, the way the
// sync coordinator does.
func merge(t *testing.T, repo engine.Repository, commits ...*model.Commit) *engine.Result {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, repo.AddCommits(ctx, commits...))
	oldest := slices.MinFunc(commits, model.CompareCommits)
	result, err := engine.NewWorker(repo).UpdateSnapshots(ctx, oldest, commits)
	require.NoError(t, err)
	return result
}

// state is the comparable view of current snapshots: entity payload and
// owning commit per entity. Snapshot ids are excluded.
type state map[uuid.UUID]stateEntry

type stateEntry struct {
	CommitID uuid.UUID
	Deleted  bool
	Entity   model.Entity
}

func currentState(t *testing.T, repo engine.Repository) state {
	t.Helper()
	snaps, err := repo.CurrentSnapshots(context.Background())
	require.NoError(t, err)
	out := make(state, len(snaps))
	for _, s := range snaps {
		out[s.EntityID] = stateEntry{CommitID: s.CommitID, Deleted: s.EntityIsDeleted, Entity: s.Entity}
	}
	return out
}

func current(t *testing.T, repo engine.Repository, id uuid.UUID) *model.ObjectSnapshot {
	t.Helper()
	s, err := repo.GetCurrentSnapshotByEntityID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, s, "no snapshot for %s", id)
	return s
}

// replayFromScratch rebuilds all snapshots from the commits in repo.
func replayFromScratch(t *testing.T, repo engine.Repository) state {
	t.Helper()
	commits, err := repo.CurrentCommits(context.Background())
	require.NoError(t, err)
	fresh := memstore.New()
	if len(commits) > 0 {
		merge(t, fresh, commits...)
	}
	return currentState(t, fresh)
}

func ptr[T any](v T) *T { return &v }
