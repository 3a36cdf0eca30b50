package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/lexicon"
	"github.com/roach88/strata/internal/model"
	"github.com/roach88/strata/internal/testutil"
)

func commitAt(id uint64, seconds int) *model.Commit {
	ts := model.NewHybridTimestamp(testutil.Epoch.Add(time.Duration(seconds)*time.Second), 0)
	return model.NewCommit(testutil.ID(id), testutil.ID(0xC), ts, model.CommitMetadata{})
}

func TestStore_CommitsAreCopied(t *testing.T) {
	ctx := context.Background()
	s := New()
	c := commitAt(1, 1)
	c.Hash = "aaaaaaaaaaaaaaaa"
	require.NoError(t, s.AddCommits(ctx, c))

	c.Hash = "mutated"
	got, err := s.FindCommitByHash(ctx, "aaaaaaaaaaaaaaaa")
	require.NoError(t, err)
	require.NotNil(t, got)

	got.Hash = "also mutated"
	again, err := s.FindCommitByHash(ctx, "aaaaaaaaaaaaaaaa")
	require.NoError(t, err)
	assert.NotNil(t, again)
}

func TestStore_CommitNavigation(t *testing.T) {
	ctx := context.Background()
	s := New()
	c1, c2, c3 := commitAt(1, 1), commitAt(2, 2), commitAt(3, 3)
	require.NoError(t, s.AddCommits(ctx, c3, c1, c2, c1))

	all, err := s.CurrentCommits(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)

	prev, err := s.FindPreviousCommit(ctx, c2)
	require.NoError(t, err)
	assert.Equal(t, c1.ID, prev.ID)

	none, err := s.FindPreviousCommit(ctx, c1)
	require.NoError(t, err)
	assert.Nil(t, none)

	after, err := s.GetCommitsAfter(ctx, c1)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{c2.ID, c3.ID}, []uuid.UUID{after[0].ID, after[1].ID})

	has, err := s.HasCommit(ctx, c3.ID)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestStore_CurrentSnapshotAndStaleDeletion(t *testing.T) {
	ctx := context.Background()
	s := New()
	w, d := testutil.ID(10), testutil.ID(11)
	c1, c2 := commitAt(1, 1), commitAt(2, 2)
	require.NoError(t, s.AddCommits(ctx, c1, c2))

	s1 := model.NewObjectSnapshot(&lexicon.Word{ID: w, Text: "a"}, c1, true)
	s2 := model.NewObjectSnapshot(&lexicon.Word{ID: w, Text: "b"}, c2, false)
	def := model.NewObjectSnapshot(&lexicon.Definition{ID: d, WordID: w}, c2, true)
	require.NoError(t, s.AddSnapshots(ctx, s2, s1, def))

	// Same (entity, commit) is ignored.
	require.NoError(t, s.AddSnapshots(ctx, model.NewObjectSnapshot(&lexicon.Word{ID: w, Text: "dup"}, c2, false)))
	assert.Equal(t, 3, s.SnapshotCount())

	cur, err := s.GetCurrentSnapshotByEntityID(ctx, w)
	require.NoError(t, err)
	assert.Equal(t, s2.ID, cur.ID)

	refs, err := s.SnapshotsReferencing(ctx, w)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, d, refs[0].EntityID)

	require.NoError(t, s.DeleteStaleSnapshots(ctx, c2))
	cur, err = s.GetCurrentSnapshotByEntityID(ctx, w)
	require.NoError(t, err)
	assert.Equal(t, s1.ID, cur.ID)
	assert.Len(t, s.SnapshotsFor(w), 1)

	found, err := s.FindSnapshot(ctx, def.ID)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestStore_UpdateCommitHashes(t *testing.T) {
	ctx := context.Background()
	s := New()
	c := commitAt(1, 1)
	require.NoError(t, s.AddCommits(ctx, c))

	c.Hash, c.ParentHash = "bbbbbbbbbbbbbbbb", model.NullParentHash
	require.NoError(t, s.UpdateCommitHashes(ctx, c))

	got, err := s.FindCommitByHash(ctx, "bbbbbbbbbbbbbbbb")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.NullParentHash, got.ParentHash)
}
