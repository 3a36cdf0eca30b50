package harness

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/strata/internal/lexicon"
)

// Scenario defines a multi-replica convergence scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. Also the golden file name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Replicas names the replicas. Each gets its own empty store.
	Replicas []string `yaml:"replicas"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is exactly one of a commit, a sync or a regenerate.
type Step struct {
	// Replica runs the commit.
	Replica string `yaml:"replica,omitempty"`

	// At is the wall-clock reading, as an offset from the scenario epoch,
	// when the commit is made. Defaults to one second after the
	// replica's previous reading.
	At string `yaml:"at,omitempty"`

	// Label names the commit for assertions and golden output.
	// Defaults to "<replica>.<n>".
	Label string `yaml:"label,omitempty"`

	// Commit lists the changes of one local commit.
	Commit []ChangeStep `yaml:"commit,omitempty"`

	// Sync is a [local, remote] pair of replicas to sync.
	Sync []string `yaml:"sync,omitempty"`

	// Regenerate names a replica whose snapshots are rebuilt from its log.
	Regenerate string `yaml:"regenerate,omitempty"`

	// ExpectError, when set, requires the step to fail with an error
	// containing this text.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// ChangeStep describes one lexicon change. Entity references are names.
type ChangeStep struct {
	Op         string  `yaml:"op"`
	ID         string  `yaml:"id"`
	Text       *string `yaml:"text,omitempty"`
	Note       *string `yaml:"note,omitempty"`
	Word       string  `yaml:"word,omitempty"`
	Definition string  `yaml:"definition,omitempty"`
	Target     *string `yaml:"target,omitempty"`
	Gloss      string  `yaml:"gloss,omitempty"`
	Sentence   string  `yaml:"sentence,omitempty"`
}

// Assertion validates the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Replica is the replica inspected (all types but converged).
	Replica string `yaml:"replica,omitempty"`

	// Replicas are compared by converged.
	Replicas []string `yaml:"replicas,omitempty"`

	// Entity is the entity name (entity).
	Entity string `yaml:"entity,omitempty"`

	// Deleted is the expected deletion flag (entity).
	Deleted *bool `yaml:"deleted,omitempty"`

	// Commit is the expected owning commit label (entity).
	Commit string `yaml:"commit,omitempty"`

	// Fields are expected payload values, subset match (entity). A null
	// value requires the field to be absent.
	Fields map[string]any `yaml:"fields,omitempty"`

	// EntityType and Count are used by live_count.
	EntityType string `yaml:"entity_type,omitempty"`
	Count      int    `yaml:"count,omitempty"`

	// Commits is the expected log order (commit_order).
	Commits []string `yaml:"commits,omitempty"`
}

// Assertion type constants.
const (
	AssertConverged        = "converged"
	AssertEntity           = "entity"
	AssertLiveCount        = "live_count"
	AssertCommitOrder      = "commit_order"
	AssertChainValid       = "chain_valid"
	AssertReplayEquivalent = "replay_equivalent"
)

// Change operation names.
const (
	OpCreateWord       = "create_word"
	OpEditWord         = "edit_word"
	OpCreateDefinition = "create_definition"
	OpEditDefinition   = "edit_definition"
	OpCreateExample    = "create_example"
	OpCreateCrossRef   = "create_crossref"
	OpSetTarget        = "set_target"
	OpDelete           = "delete"
)

// entityTypes lists the types a live_count assertion may name.
var entityTypes = []string{lexicon.TypeWord, lexicon.TypeDefinition, lexicon.TypeExample, lexicon.TypeCrossRef}

var knownOps = []string{
	OpCreateWord, OpEditWord, OpCreateDefinition, OpEditDefinition,
	OpCreateExample, OpCreateCrossRef, OpSetTarget, OpDelete,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and that every
// replica a step or assertion names is declared.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Replicas) == 0 {
		return fmt.Errorf("replicas list is required and must be non-empty")
	}
	for i, r := range s.Replicas {
		if r == "" {
			return fmt.Errorf("replicas[%d]: name is required", i)
		}
		if slices.Index(s.Replicas, r) != i {
			return fmt.Errorf("replicas[%d]: duplicate replica %q", i, r)
		}
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	known := func(name string) bool { return slices.Contains(s.Replicas, name) }
	labels := make(map[string]bool)

	for i, step := range s.Steps {
		if err := validateStep(i, &step, known); err != nil {
			return err
		}
		if step.Label != "" {
			if labels[step.Label] {
				return fmt.Errorf("steps[%d]: duplicate label %q", i, step.Label)
			}
			labels[step.Label] = true
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion, known); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, step *Step, known func(string) bool) error {
	kinds := 0
	if len(step.Commit) > 0 {
		kinds++
	}
	if len(step.Sync) > 0 {
		kinds++
	}
	if step.Regenerate != "" {
		kinds++
	}
	if kinds != 1 {
		return fmt.Errorf("steps[%d]: exactly one of commit, sync, regenerate is required", index)
	}

	switch {
	case len(step.Commit) > 0:
		if !known(step.Replica) {
			return fmt.Errorf("steps[%d]: unknown replica %q", index, step.Replica)
		}
		if step.At != "" {
			if _, err := time.ParseDuration(step.At); err != nil {
				return fmt.Errorf("steps[%d]: at: %w", index, err)
			}
		}
		for j, ch := range step.Commit {
			if !slices.Contains(knownOps, ch.Op) {
				return fmt.Errorf("steps[%d].commit[%d]: unknown op %q", index, j, ch.Op)
			}
			if ch.ID == "" {
				return fmt.Errorf("steps[%d].commit[%d]: id is required", index, j)
			}
		}
	case len(step.Sync) > 0:
		if len(step.Sync) != 2 || step.Sync[0] == step.Sync[1] {
			return fmt.Errorf("steps[%d]: sync needs two different replicas", index)
		}
		for _, r := range step.Sync {
			if !known(r) {
				return fmt.Errorf("steps[%d]: unknown replica %q", index, r)
			}
		}
	default:
		if !known(step.Regenerate) {
			return fmt.Errorf("steps[%d]: unknown replica %q", index, step.Regenerate)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, known func(string) bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	if a.Type == AssertConverged {
		if len(a.Replicas) < 2 {
			return fmt.Errorf("assertions[%d]: converged needs at least two replicas", index)
		}
		for _, r := range a.Replicas {
			if !known(r) {
				return fmt.Errorf("assertions[%d]: unknown replica %q", index, r)
			}
		}
		return nil
	}

	if !known(a.Replica) {
		return fmt.Errorf("assertions[%d]: unknown replica %q", index, a.Replica)
	}

	switch a.Type {
	case AssertEntity:
		if a.Entity == "" {
			return fmt.Errorf("assertions[%d]: entity is required for entity", index)
		}
	case AssertLiveCount:
		if !slices.Contains(entityTypes, a.EntityType) {
			return fmt.Errorf("assertions[%d]: unknown entity_type %q for live_count", index, a.EntityType)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for live_count", index)
		}
	case AssertCommitOrder:
		if len(a.Commits) == 0 {
			return fmt.Errorf("assertions[%d]: commits list is required for commit_order", index)
		}
	case AssertChainValid, AssertReplayEquivalent:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
