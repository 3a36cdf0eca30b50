package datamodel_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/config"
	"github.com/roach88/strata/internal/datamodel"
	"github.com/roach88/strata/internal/lexicon"
	"github.com/roach88/strata/internal/model"
	"github.com/roach88/strata/internal/testutil"
)

func TestAddChange_FirstCommitCreatesRoot(t *testing.T) {
	a := newReplica(t, 0xA)

	c1 := a.commitAt(t, 1, &lexicon.CreateWord{ID: wordW, Text: "hello"})

	snap := a.latest(t, wordW)
	assert.True(t, snap.IsRoot)
	assert.Equal(t, c1.ID, snap.CommitID)
	assert.Equal(t, "hello", a.word(t, wordW).Text)
	assert.Equal(t, model.NullParentHash, c1.ParentHash)
	assert.Equal(t, a.ClientID(), c1.ClientID)
	assert.Equal(t, datamodel.ClientVersion, c1.Metadata.ClientVersion)
}

func TestAddChange_EditChainsToPrevious(t *testing.T) {
	a := newReplica(t, 0xA)

	c1 := a.commitAt(t, 1, &lexicon.CreateWord{ID: wordW, Text: "hello"})
	c2 := a.commitAt(t, 2, &lexicon.EditWord{ID: wordW, Text: ptr("hello2")})

	snap := a.latest(t, wordW)
	assert.False(t, snap.IsRoot)
	assert.Equal(t, c2.ID, snap.CommitID)
	assert.Equal(t, "hello2", a.word(t, wordW).Text)
	assert.Equal(t, c1.Hash, c2.ParentHash)
	require.NoError(t, a.ValidateCommits(context.Background()))
}

func TestAddChanges_NoChanges(t *testing.T) {
	a := newReplica(t, 0xA)

	_, err := a.AddChanges(context.Background())
	assert.ErrorIs(t, err, datamodel.ErrNoChanges)
}

func TestAddChanges_FailedChangeRollsBack(t *testing.T) {
	a := newReplica(t, 0xA)
	ctx := context.Background()

	_, err := a.AddChanges(ctx,
		&lexicon.CreateWord{ID: wordW, Text: "hello"},
		&lexicon.EditDefinition{ID: defD, Gloss: "no such definition"},
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, lexicon.ErrNotCreated)

	commits, err := a.Commits(ctx)
	require.NoError(t, err)
	assert.Empty(t, commits)
	_, err = a.GetLatest(ctx, wordW)
	assert.ErrorIs(t, err, datamodel.ErrNotFound)
}

func TestAddChangesWithMetadata_DefaultsAuthor(t *testing.T) {
	a := newReplica(t, 0xA, datamodel.WithAuthor("ada", "u-1"))

	c, err := a.AddChangesWithMetadata(context.Background(),
		model.CommitMetadata{AuthorName: "grace"},
		&lexicon.CreateWord{ID: wordW, Text: "hello"},
	)
	require.NoError(t, err)
	assert.Equal(t, "grace", c.Metadata.AuthorName)
	assert.Equal(t, "u-1", c.Metadata.AuthorID)
	assert.Equal(t, datamodel.ClientVersion, c.Metadata.ClientVersion)
}

func TestOpen_ClockSeededFromHistory(t *testing.T) {
	st := openStore(t)
	clk := testutil.NewManualClock(testutil.Epoch.Add(time.Hour))
	first := openReplica(t, st, 0xA, clk)
	c1, err := first.AddChange(context.Background(), &lexicon.CreateWord{ID: wordW, Text: "hello"})
	require.NoError(t, err)

	// The wall clock regresses before the store is opened again.
	clk.Set(testutil.Epoch)
	second := openReplica(t, st, 0xA, clk, datamodel.WithIDGenerator(testutil.NewSequentialIDs(0xA2).New))
	c2, err := second.AddChange(context.Background(), &lexicon.EditWord{ID: wordW, Text: ptr("again")})
	require.NoError(t, err)

	assert.Equal(t, 1, c2.HybridDateTime.Compare(c1.HybridDateTime))
	assert.Equal(t, c1.Hash, c2.ParentHash)
	assert.Equal(t, "again", second.word(t, wordW).Text)
}

func TestOpen_ClientIDPersisted(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()

	first, err := datamodel.Open(ctx, st)
	require.NoError(t, err)
	second, err := datamodel.Open(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, first.ClientID(), second.ClientID())

	_, err = datamodel.Open(ctx, st, datamodel.WithClientID(testutil.ID(0xBAD)))
	assert.Error(t, err)
}

func TestOpen_WithConfig(t *testing.T) {
	cfg := config.Default()
	cfg.ClientID = testutil.ID(0x7).String()
	cfg.ValidateChain = true
	cfg.Author.Name = "ada"

	dm, err := datamodel.Open(context.Background(), openStore(t), datamodel.WithConfig(cfg))
	require.NoError(t, err)
	assert.Equal(t, testutil.ID(0x7), dm.ClientID())

	c, err := dm.AddChange(context.Background(), &lexicon.CreateWord{ID: wordW, Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "ada", c.Metadata.AuthorName)
}

func TestSync_EmptyReplicaReceivesHistory(t *testing.T) {
	a := newReplica(t, 0xA)
	b := newReplica(t, 0xB)
	ctx := context.Background()

	a.commitAt(t, 1, &lexicon.CreateWord{ID: wordW, Text: "hello"})
	a.commitAt(t, 2, &lexicon.EditWord{ID: wordW, Text: ptr("hello2")})

	result, err := b.SyncWith(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Pulled)

	assert.Equal(t, a.view(t), b.view(t))
	assert.Equal(t, "hello2", b.word(t, wordW).Text)
	require.NoError(t, b.ValidateCommits(ctx))

	state, err := b.GetSyncState(ctx)
	require.NoError(t, err)
	assert.Equal(t, testutil.Epoch.Add(2*time.Second).UnixMilli(), state[a.ClientID()])
}

func TestSync_OutOfOrderCommitRewritesChain(t *testing.T) {
	a := newReplica(t, 0xA)
	b := newReplica(t, 0xB)
	ctx := context.Background()

	c1 := a.commitAt(t, 1, &lexicon.CreateWord{ID: wordW, Text: "hello"})
	c2 := a.commitAt(t, 3, &lexicon.EditWord{ID: wordW, Text: ptr("hello2")})
	c3 := b.commitAt(t, 2, &lexicon.CreateWord{ID: wordV, Text: "world"})

	_, err := a.SyncWith(ctx, b)
	require.NoError(t, err)

	commits, err := a.Commits(ctx)
	require.NoError(t, err)
	require.Len(t, commits, 3)
	assert.Equal(t, c1.ID, commits[0].ID)
	assert.Equal(t, c3.ID, commits[1].ID)
	assert.Equal(t, c2.ID, commits[2].ID)

	assert.Equal(t, commits[0].Hash, commits[1].ParentHash)
	assert.Equal(t, commits[1].Hash, commits[2].ParentHash)
	assert.NotEqual(t, c2.Hash, commits[2].Hash, "C2 is rechained")
	require.NoError(t, a.ValidateCommits(ctx))

	assert.Equal(t, a.view(t), b.view(t))
	assert.Equal(t, "hello2", a.word(t, wordW).Text)
}

func TestSync_LateParentRevivesDependent(t *testing.T) {
	a := newReplica(t, 0xA)
	b := newReplica(t, 0xB)
	ctx := context.Background()

	a.commitAt(t, 1, &lexicon.CreateWord{ID: wordW, Text: "hello"})
	// B defines a word it has not seen yet: born deleted until W arrives.
	b.commitAt(t, 2, &lexicon.CreateDefinition{ID: defD, WordID: wordW, Gloss: "a greeting"})
	assert.True(t, b.latest(t, defD).EntityIsDeleted)

	_, err := b.SyncWith(ctx, a)
	require.NoError(t, err)

	assert.False(t, b.latest(t, defD).EntityIsDeleted)
	assert.Equal(t, a.view(t), b.view(t))
}

func TestDelete_CascadesInSamePass(t *testing.T) {
	a := newReplica(t, 0xA)
	ctx := context.Background()

	a.commitAt(t, 1,
		&lexicon.CreateWord{ID: wordW, Text: "hello"},
		&lexicon.CreateWord{ID: wordV, Text: "hi"},
		&lexicon.CreateDefinition{ID: defD, WordID: wordW, Gloss: "a greeting"},
		&lexicon.CreateExample{ID: exE, DefinitionID: defD, Sentence: "hello there"},
		&lexicon.CreateCrossRef{ID: crossX, WordID: wordV, TargetID: ptr(wordW)},
	)
	del := a.commitAt(t, 2, &lexicon.Delete{ID: wordW})

	for _, id := range []uuid.UUID{wordW, defD, exE} {
		snap := a.latest(t, id)
		assert.True(t, snap.EntityIsDeleted, "entity %s", id)
		assert.Equal(t, del.ID, snap.CommitID, "entity %s", id)
	}

	ref := a.latest(t, crossX)
	assert.False(t, ref.EntityIsDeleted)
	assert.Equal(t, del.ID, ref.CommitID)
	assert.Nil(t, ref.Entity.(*lexicon.CrossRef).TargetID)
	assert.NotContains(t, ref.References, wordW)

	live, err := a.GetLatestSnapshots(ctx, "")
	require.NoError(t, err)
	for _, s := range live {
		assert.NotContains(t, s.References, wordW, "dangling reference in %s", s.EntityID)
	}
}

func TestGetLatestSnapshots_ByType(t *testing.T) {
	a := newReplica(t, 0xA)
	ctx := context.Background()

	a.commitAt(t, 1,
		&lexicon.CreateWord{ID: wordW, Text: "hello"},
		&lexicon.CreateWord{ID: wordV, Text: "hi"},
		&lexicon.CreateDefinition{ID: defD, WordID: wordW, Gloss: "a greeting"},
	)
	a.commitAt(t, 2, &lexicon.Delete{ID: wordV})

	words, err := a.GetLatestSnapshots(ctx, lexicon.TypeWord)
	require.NoError(t, err)
	require.Len(t, words, 1)
	assert.Equal(t, wordW, words[0].EntityID)

	all, err := a.GetLatestSnapshots(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestGetEntityAt_ReturnsHistoricState(t *testing.T) {
	a := newReplica(t, 0xA)
	ctx := context.Background()

	c1 := a.commitAt(t, 1, &lexicon.CreateWord{ID: wordW, Text: "one"})
	c2 := a.commitAt(t, 2, &lexicon.EditWord{ID: wordW, Text: ptr("two")})
	c3 := a.commitAt(t, 3, &lexicon.CreateWord{ID: wordV, Text: "unrelated"})
	a.commitAt(t, 4, &lexicon.EditWord{ID: wordW, Text: ptr("four")})

	for _, tc := range []struct {
		commit *model.Commit
		want   string
	}{
		{c1, "one"},
		{c2, "two"},
		{c3, "two"},
	} {
		snap, err := a.GetEntityAt(ctx, wordW, tc.commit.ID)
		require.NoError(t, err)
		assert.Equal(t, tc.want, snap.Entity.(*lexicon.Word).Text, "at %s", tc.commit.ID)
	}

	_, err := a.GetEntityAt(ctx, wordV, c1.ID)
	assert.ErrorIs(t, err, datamodel.ErrNotFound)
	_, err = a.GetEntityAt(ctx, wordW, testutil.ID(0xDEAD))
	assert.ErrorIs(t, err, datamodel.ErrNotFound)

	history, err := a.GetSnapshotHistory(ctx, wordW)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.True(t, history[0].IsRoot)
}

func TestAddRangeFromSync_Idempotent(t *testing.T) {
	a := newReplica(t, 0xA)
	b := newReplica(t, 0xB)
	ctx := context.Background()

	a.commitAt(t, 1, &lexicon.CreateWord{ID: wordW, Text: "hello"})
	a.commitAt(t, 2, &lexicon.EditWord{ID: wordW, Note: ptr("informal")})
	commits, err := a.Commits(ctx)
	require.NoError(t, err)

	added, err := b.AddRangeFromSync(ctx, commits)
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	once := b.view(t)
	added, err = b.AddRangeFromSync(ctx, commits)
	require.NoError(t, err)
	assert.Zero(t, added)
	added, err = b.AddRangeFromSync(ctx, commits[:1])
	require.NoError(t, err)
	assert.Zero(t, added)

	assert.Equal(t, once, b.view(t))
	stats, err := b.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Commits)
}

func TestSync_ThreeReplicasConverge(t *testing.T) {
	a := newReplica(t, 0xA)
	b := newReplica(t, 0xB)
	c := newReplica(t, 0xC)
	ctx := context.Background()

	a.commitAt(t, 1, &lexicon.CreateWord{ID: wordW, Text: "hello"})
	b.commitAt(t, 2, &lexicon.CreateWord{ID: wordV, Text: "hi"})
	c.commitAt(t, 3, &lexicon.CreateCrossRef{ID: crossX, WordID: wordV, TargetID: ptr(wordW)})

	_, err := a.SyncWith(ctx, b)
	require.NoError(t, err)
	_, err = c.SyncWith(ctx, a)
	require.NoError(t, err)
	_, err = b.SyncWith(ctx, c)
	require.NoError(t, err)
	_, err = a.SyncWith(ctx, b)
	require.NoError(t, err)

	want := a.view(t)
	assert.Equal(t, want, b.view(t))
	assert.Equal(t, want, c.view(t))
	assert.Equal(t, wordW, *c.latest(t, crossX).Entity.(*lexicon.CrossRef).TargetID)

	for _, r := range []*replica{a, b, c} {
		require.NoError(t, r.ValidateCommits(ctx))
	}
}

func TestStats(t *testing.T) {
	a := newReplica(t, 0xA)
	ctx := context.Background()

	stats, err := a.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.NullParentHash, stats.Head)
	assert.Zero(t, stats.Commits)

	a.commitAt(t, 1, &lexicon.CreateWord{ID: wordW, Text: "hello"})
	last := a.commitAt(t, 2, &lexicon.EditWord{ID: wordW, Text: ptr("hi")})

	stats, err = a.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, a.ClientID(), stats.ClientID)
	assert.Equal(t, 2, stats.Commits)
	assert.Equal(t, 2, stats.Snapshots)
	assert.Equal(t, last.Hash, stats.Head)
	assert.Equal(t, last.HybridDateTime.UnixMilli(), stats.SyncState[a.ClientID()])
}
