package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// GoldenSnapshot is what golden files record: the step trace and the final
// state of every replica. Both are free of random ids and wall-clock time.
type GoldenSnapshot struct {
	ScenarioName string                   `json:"scenario_name"`
	Trace        []TraceEvent             `json:"trace"`
	State        map[string][]EntityState `json:"state"`
}

// MarshalGolden renders a result in golden file form. Map keys are sorted
// by encoding/json, so equal results render byte-identically.
func MarshalGolden(scenarioName string, result *Result) ([]byte, error) {
	snapshot := GoldenSnapshot{
		ScenarioName: scenarioName,
		Trace:        result.Trace,
		State:        result.State,
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal golden snapshot: %w", err)
	}
	return append(data, '\n'), nil
}

// RunWithGolden executes a scenario, fails the test on any scenario error
// and compares the result against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return err
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an already computed result against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := MarshalGolden(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
