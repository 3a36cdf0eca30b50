package store

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/engine"
	"github.com/roach88/strata/internal/lexicon"
	"github.com/roach88/strata/internal/memstore"
	"github.com/roach88/strata/internal/model"
	"github.com/roach88/strata/internal/testutil"
)

// reconcile adds commits and runs a worker, all inside one transaction.
func reconcile(t *testing.T, s *Store, commits ...*model.Commit) *engine.Result {
	t.Helper()
	var result *engine.Result
	withTx(t, s, func(ctx context.Context, tx *Tx) {
		require.NoError(t, tx.AddCommits(ctx, commits...))
		oldest := commits[0]
		for _, c := range commits[1:] {
			if model.CompareCommits(c, oldest) < 0 {
				oldest = c
			}
		}
		var err error
		result, err = engine.NewWorker(tx).UpdateSnapshots(ctx, oldest, commits)
		require.NoError(t, err)
	})
	return result
}

func TestSnapshots_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	w, ref, target := testutil.ID(1), testutil.ID(2), testutil.ID(3)
	c := createTestCommit(1, 1,
		&lexicon.CreateWord{ID: w, Text: "w"},
		&lexicon.CreateWord{ID: target, Text: "t"},
		&lexicon.CreateCrossRef{ID: ref, WordID: w, TargetID: &target},
	)
	result := reconcile(t, s, c)
	require.Len(t, result.Roots, 3)

	withTx(t, s, func(ctx context.Context, tx *Tx) {
		got, err := tx.GetCurrentSnapshotByEntityID(ctx, ref)
		require.NoError(t, err)
		require.NotNil(t, got)

		var want *model.ObjectSnapshot
		for _, r := range result.Roots {
			if r.EntityID == ref {
				want = r
			}
		}
		assert.Equal(t, want, got)

		byID, err := tx.FindSnapshot(ctx, want.ID)
		require.NoError(t, err)
		assert.Equal(t, want, byID)

		none, err := tx.GetCurrentSnapshotByEntityID(ctx, testutil.ID(99))
		require.NoError(t, err)
		assert.Nil(t, none)

		referencing, err := tx.SnapshotsReferencing(ctx, target)
		require.NoError(t, err)
		require.Len(t, referencing, 1)
		assert.Equal(t, ref, referencing[0].EntityID)

		words, err := tx.CurrentSnapshotsOfType(ctx, lexicon.TypeWord)
		require.NoError(t, err)
		assert.Len(t, words, 2)
	})
}

func TestAddSnapshots_DuplicateEntityCommitIgnored(t *testing.T) {
	s := createTestStore(t)
	w := testutil.ID(1)
	c := createTestCommit(1, 1, &lexicon.CreateWord{ID: w, Text: "w"})
	reconcile(t, s, c)

	withTx(t, s, func(ctx context.Context, tx *Tx) {
		dup := model.NewObjectSnapshot(&lexicon.Word{ID: w, Text: "other"}, c, true)
		require.NoError(t, tx.AddSnapshots(ctx, dup))

		got, err := tx.GetCurrentSnapshotByEntityID(ctx, w)
		require.NoError(t, err)
		assert.Equal(t, "w", got.Entity.(*lexicon.Word).Text)
		assert.NotEqual(t, dup.ID, got.ID)
	})
}

func TestHistoryQueries(t *testing.T) {
	s := createTestStore(t)
	w := testutil.ID(1)
	text := func(v string) *string { return &v }

	c1 := createTestCommit(1, 1, &lexicon.CreateWord{ID: w, Text: "a"})
	c2 := createTestCommit(2, 2, &lexicon.EditWord{ID: w, Text: text("b")})
	c3 := createTestCommit(3, 3, &lexicon.EditWord{ID: w, Text: text("c")})
	unrelated := createTestCommit(4, 4, &lexicon.CreateWord{ID: testutil.ID(2), Text: "x"})
	reconcile(t, s, c1, c2, c3, unrelated)

	withTx(t, s, func(ctx context.Context, tx *Tx) {
		history, err := tx.SnapshotHistory(ctx, w)
		require.NoError(t, err)
		require.Len(t, history, 3)
		assert.Equal(t, []uuid.UUID{c1.ID, c2.ID, c3.ID}, []uuid.UUID{history[0].CommitID, history[1].CommitID, history[2].CommitID})
		assert.True(t, history[0].IsRoot)

		atC2, err := tx.SnapshotAt(ctx, w, c2)
		require.NoError(t, err)
		assert.Equal(t, "b", atC2.Entity.(*lexicon.Word).Text)

		atLater, err := tx.SnapshotAt(ctx, w, unrelated)
		require.NoError(t, err)
		assert.Equal(t, "c", atLater.Entity.(*lexicon.Word).Text)
	})
}

func TestDeleteStaleSnapshots(t *testing.T) {
	s := createTestStore(t)
	w := testutil.ID(1)
	text := func(v string) *string { return &v }

	c1 := createTestCommit(1, 1, &lexicon.CreateWord{ID: w, Text: "a"})
	c2 := createTestCommit(2, 2, &lexicon.EditWord{ID: w, Text: text("b")})
	reconcile(t, s, c1, c2)

	withTx(t, s, func(ctx context.Context, tx *Tx) {
		require.NoError(t, tx.DeleteStaleSnapshots(ctx, c2))

		current, err := tx.GetCurrentSnapshotByEntityID(ctx, w)
		require.NoError(t, err)
		assert.Equal(t, c1.ID, current.CommitID)

		require.NoError(t, tx.DeleteAllSnapshots(ctx))
		_, snapshots, err := tx.Counts(ctx)
		require.NoError(t, err)
		assert.Zero(t, snapshots)

		var refs int
		require.NoError(t, tx.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshot_references`).Scan(&refs))
		assert.Zero(t, refs)
	})
}

// TestReconcile_MatchesMemstore runs the same out-of-order merges against
// SQLite and the in-memory repository and expects identical results.
func TestReconcile_MatchesMemstore(t *testing.T) {
	w, d, e, x := testutil.ID(1), testutil.ID(2), testutil.ID(3), testutil.ID(4)
	gloss := "go quickly"
	batches := [][]*model.Commit{
		{createTestCommit(1, 1, &lexicon.CreateWord{ID: w, Text: "run"})},
		{createTestCommit(5, 5, &lexicon.Delete{ID: w})},
		{createTestCommit(2, 2, &lexicon.CreateDefinition{ID: d, WordID: w, Gloss: "move"})},
		{
			createTestCommit(3, 3, &lexicon.CreateExample{ID: e, DefinitionID: d, Sentence: "I run."}),
			createTestCommit(4, 4,
				&lexicon.CreateWord{ID: x, Text: "sprint"},
				&lexicon.EditDefinition{ID: d, Gloss: gloss},
			),
		},
	}

	s := createTestStore(t)
	mem := memstore.New()
	ctx := context.Background()
	for _, batch := range batches {
		reconcile(t, s, cloneAll(batch)...)

		clones := cloneAll(batch)
		require.NoError(t, mem.AddCommits(ctx, clones...))
		oldest := clones[0]
		_, err := engine.NewWorker(mem).UpdateSnapshots(ctx, oldest, clones)
		require.NoError(t, err)
	}

	memSnaps, err := mem.CurrentSnapshots(ctx)
	require.NoError(t, err)
	memCommits, err := mem.CurrentCommits(ctx)
	require.NoError(t, err)

	withTx(t, s, func(ctx context.Context, tx *Tx) {
		sqlSnaps, err := tx.CurrentSnapshots(ctx)
		require.NoError(t, err)
		require.Len(t, sqlSnaps, len(memSnaps))
		for i := range memSnaps {
			assert.Equal(t, memSnaps[i].EntityID, sqlSnaps[i].EntityID)
			assert.Equal(t, memSnaps[i].CommitID, sqlSnaps[i].CommitID)
			assert.Equal(t, memSnaps[i].EntityIsDeleted, sqlSnaps[i].EntityIsDeleted)
			assert.Equal(t, memSnaps[i].Entity, sqlSnaps[i].Entity)
		}

		sqlCommits, err := tx.CurrentCommits(ctx)
		require.NoError(t, err)
		require.Len(t, sqlCommits, len(memCommits))
		for i := range memCommits {
			assert.Equal(t, memCommits[i].Hash, sqlCommits[i].Hash)
		}

		def, err := tx.GetCurrentSnapshotByEntityID(ctx, d)
		require.NoError(t, err)
		assert.True(t, def.EntityIsDeleted)
		assert.Equal(t, gloss, def.Entity.(*lexicon.Definition).Gloss)
	})
}

func cloneAll(commits []*model.Commit) []*model.Commit {
	out := make([]*model.Commit, len(commits))
	for i, c := range commits {
		out[i] = c.Clone()
	}
	return out
}
