package datamodel_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/datamodel"
	"github.com/roach88/strata/internal/lexicon"
	"github.com/roach88/strata/internal/model"
	"github.com/roach88/strata/internal/store"
	"github.com/roach88/strata/internal/testutil"
)

// Entity ids shared by the tests.
var (
	wordW  = testutil.ID(0xE001)
	wordV  = testutil.ID(0xE002)
	defD   = testutil.ID(0xE101)
	exE    = testutil.ID(0xE201)
	crossX = testutil.ID(0xE301)
)

// replica is a DataModel plus the handles a test needs to drive it.
type replica struct {
	*datamodel.DataModel
	store *store.Store
	clock *testutil.ManualClock
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "replica.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

// newReplica opens a replica with client id ID(n), a manual clock at
// testutil.Epoch and deterministic commit ids. Chain validation is on.
func newReplica(t *testing.T, n uint32, opts ...datamodel.Option) *replica {
	t.Helper()
	st := openStore(t)
	clk := testutil.NewManualClock(time.Time{})
	return openReplica(t, st, n, clk, opts...)
}

func openReplica(t *testing.T, st *store.Store, n uint32, clk *testutil.ManualClock, opts ...datamodel.Option) *replica {
	t.Helper()
	ids := testutil.NewSequentialIDs(n)
	base := []datamodel.Option{
		datamodel.WithClientID(testutil.ID(uint64(n))),
		datamodel.WithTimeSource(clk.Now),
		datamodel.WithIDGenerator(ids.New),
		datamodel.WithValidateChain(true),
	}
	dm, err := datamodel.Open(context.Background(), st, append(base, opts...)...)
	require.NoError(t, err)
	return &replica{DataModel: dm, store: st, clock: clk}
}

// commitAt moves the replica's clock to seconds after Epoch and commits.
func (r *replica) commitAt(t *testing.T, seconds int, changes ...model.Change) *model.Commit {
	t.Helper()
	r.clock.Set(testutil.Epoch.Add(time.Duration(seconds) * time.Second))
	c, err := r.AddChanges(context.Background(), changes...)
	require.NoError(t, err)
	return c
}

func (r *replica) latest(t *testing.T, id uuid.UUID) *model.ObjectSnapshot {
	t.Helper()
	snap, err := r.GetLatest(context.Background(), id)
	require.NoError(t, err)
	return snap
}

func (r *replica) word(t *testing.T, id uuid.UUID) *lexicon.Word {
	t.Helper()
	w, ok := r.latest(t, id).Entity.(*lexicon.Word)
	require.True(t, ok, "entity %s is not a word", id)
	return w
}

// view is the replica-independent shape of current state used to compare
// two replicas: payload, owning commit and deletion per entity.
type view map[uuid.UUID]viewEntry

type viewEntry struct {
	CommitID uuid.UUID
	Deleted  bool
	Payload  string
}

func (r *replica) view(t *testing.T) view {
	t.Helper()
	ctx := context.Background()
	out := view{}
	require.NoError(t, r.store.View(ctx, func(tx *store.Tx) error {
		snaps, err := tx.CurrentSnapshots(ctx)
		if err != nil {
			return err
		}
		for _, s := range snaps {
			raw, err := model.EncodeEntity(s.Entity)
			if err != nil {
				return err
			}
			out[s.EntityID] = viewEntry{CommitID: s.CommitID, Deleted: s.EntityIsDeleted, Payload: string(raw)}
		}
		return nil
	}))
	return out
}

func ptr[T any](v T) *T { return &v }
