package datamodel_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/lexicon"
)

// buildHistory gives a a few commits worth of edits, deletes and a merge.
func buildHistory(t *testing.T, a, b *replica) {
	t.Helper()
	a.commitAt(t, 1,
		&lexicon.CreateWord{ID: wordW, Text: "hello"},
		&lexicon.CreateDefinition{ID: defD, WordID: wordW, Gloss: "a greeting"},
	)
	a.commitAt(t, 3, &lexicon.CreateExample{ID: exE, DefinitionID: defD, Sentence: "hello there"})
	b.commitAt(t, 2, &lexicon.CreateWord{ID: wordV, Text: "hi"})
	b.commitAt(t, 4, &lexicon.CreateCrossRef{ID: crossX, WordID: wordV, TargetID: ptr(wordW)})
	_, err := a.SyncWith(context.Background(), b)
	require.NoError(t, err)
	a.commitAt(t, 5, &lexicon.EditDefinition{ID: defD, Gloss: "used to greet"})
	a.commitAt(t, 6, &lexicon.Delete{ID: wordW})
}

func TestVerifyReplay_IncrementalMatchesScratch(t *testing.T) {
	a := newReplica(t, 0xA)
	b := newReplica(t, 0xB)
	buildHistory(t, a, b)

	report, err := a.VerifyReplay(context.Background())
	require.NoError(t, err)
	assert.True(t, report.OK(), "mismatches: %v", report.Mismatches)
	assert.Equal(t, 6, report.Commits)
	assert.Equal(t, 5, report.Entities)
	assert.Zero(t, report.Rechained)
}

func TestVerifyReplay_Empty(t *testing.T) {
	a := newReplica(t, 0xA)

	report, err := a.VerifyReplay(context.Background())
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Zero(t, report.Entities)
	assert.Empty(t, report.Mismatches)
}

func TestRegenerateSnapshots_RebuildsSameState(t *testing.T) {
	a := newReplica(t, 0xA)
	b := newReplica(t, 0xB)
	ctx := context.Background()
	buildHistory(t, a, b)
	before := a.view(t)

	result, err := a.RegenerateSnapshots(ctx)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 6, result.Replayed)
	assert.Empty(t, result.Rechained)

	assert.Equal(t, before, a.view(t))
	report, err := a.VerifyReplay(ctx)
	require.NoError(t, err)
	assert.True(t, report.OK())
	require.NoError(t, a.ValidateCommits(ctx))
}

func TestRegenerateSnapshots_EmptyLog(t *testing.T) {
	a := newReplica(t, 0xA)

	result, err := a.RegenerateSnapshots(context.Background())
	require.NoError(t, err)
	assert.Nil(t, result)
}
