package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runScenario(t *testing.T, yaml string) *Result {
	t.Helper()
	s, err := ParseScenario([]byte(yaml))
	require.NoError(t, err)
	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	return result
}

func TestRun_Testdata(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			s, err := LoadScenario(path)
			require.NoError(t, err)
			result, err := Run(context.Background(), s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_DefaultLabelsAndClock(t *testing.T) {
	result := runScenario(t, `
name: defaults
description: "commits without at or label"
replicas: [a]
steps:
  - replica: a
    commit: [{ op: create_word, id: w, text: one }]
  - replica: a
    commit: [{ op: edit_word, id: w, note: two }]
assertions:
  - type: entity
    replica: a
    entity: w
    commit: a.2
    fields: { text: one, note: two }
`)
	require.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Trace, 2)
	assert.Equal(t, "a.1", result.Trace[0].Commit)
	assert.Equal(t, int64(1000), result.Trace[0].AtMillis)
	assert.Equal(t, int64(2000), result.Trace[1].AtMillis)
}

func TestRun_ExpectedError(t *testing.T) {
	result := runScenario(t, `
name: expected_error
description: "editing a word that was never created fails"
replicas: [a]
steps:
  - replica: a
    commit: [{ op: edit_word, id: ghost, text: boo }]
    expect_error: "entity does not exist"
  - replica: a
    commit: [{ op: create_word, id: w, text: hello }]
assertions:
  - type: live_count
    replica: a
    entity_type: word
    count: 1
`)
	require.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Trace, 2)
	assert.Equal(t, "entity does not exist", result.Trace[0].Error)
	assert.Equal(t, "a.1", result.Trace[1].Commit)
}

func TestRun_UnexpectedErrorStopsSteps(t *testing.T) {
	result := runScenario(t, `
name: unexpected_error
description: "a failing step stops the run"
replicas: [a]
steps:
  - replica: a
    commit: [{ op: delete, id: ghost }]
  - replica: a
    commit: [{ op: create_word, id: w, text: hello }]
assertions:
  - type: live_count
    replica: a
    entity_type: word
    count: 0
`)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "steps[0]")
	assert.Empty(t, result.Trace)
}

func TestRun_MissingExpectedError(t *testing.T) {
	result := runScenario(t, `
name: missing_error
description: "a step that should fail but succeeds"
replicas: [a]
steps:
  - replica: a
    commit: [{ op: create_word, id: w, text: hello }]
    expect_error: "boom"
assertions:
  - type: chain_valid
    replica: a
`)
	assert.False(t, result.Pass)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "step succeeded")
}

func TestRun_RegenerateKeepsState(t *testing.T) {
	result := runScenario(t, `
name: regenerate
description: "regenerating snapshots reproduces the same state"
replicas: [a, b]
steps:
  - replica: a
    commit:
      - { op: create_word, id: w, text: hello }
      - { op: create_definition, id: d, word: w, gloss: greeting }
  - replica: a
    commit: [{ op: edit_definition, id: d, gloss: salutation }]
  - sync: [b, a]
  - regenerate: b
assertions:
  - type: converged
    replicas: [a, b]
  - type: replay_equivalent
    replica: b
`)
	require.True(t, result.Pass, "errors: %v", result.Errors)
	last := result.Trace[len(result.Trace)-1]
	assert.Equal(t, EventRegenerate, last.Type)
	assert.Equal(t, 2, last.Replayed)
}

func TestRun_SetTargetClearsAndRepoints(t *testing.T) {
	result := runScenario(t, `
name: set_target
description: "cross references can be repointed and cleared"
replicas: [a]
steps:
  - replica: a
    commit:
      - { op: create_word, id: w, text: hello }
      - { op: create_word, id: v, text: hi }
      - { op: create_word, id: u, text: hey }
      - { op: create_crossref, id: x, word: w, target: v }
  - replica: a
    label: repoint
    commit: [{ op: set_target, id: x, target: u }]
  - replica: a
    label: clear
    commit: [{ op: set_target, id: x, target: "" }]
assertions:
  - type: entity
    replica: a
    entity: x
    commit: clear
    fields: { word_id: w, target_id: null }
`)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	x, ok := findEntity(result, "a", "x")
	require.True(t, ok)
	assert.Equal(t, []string{"w"}, x.Refs)
}

func TestEntityID_Deterministic(t *testing.T) {
	assert.Equal(t, EntityID("w"), EntityID("w"))
	assert.NotEqual(t, EntityID("w"), EntityID("v"))
}
