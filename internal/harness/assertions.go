package harness

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"sort"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", event.Seq, describeEvent(event))
		}
	}
	return buf.String()
}

func describeEvent(e TraceEvent) string {
	switch e.Type {
	case EventCommit:
		return fmt.Sprintf("%s commits %s at %dms (%d changes)", e.Replica, e.Commit, e.AtMillis, e.Changes)
	case EventSync:
		return fmt.Sprintf("%s syncs with %s (pulled %d, pushed %d)", e.Replica, e.Peer, e.Pulled, e.Pushed)
	default:
		return fmt.Sprintf("%s regenerates (%d replayed)", e.Replica, e.Replayed)
	}
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(ctx context.Context, h *Harness, result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertConverged:
			err = assertConverged(result, assertion)
		case AssertEntity:
			err = assertEntity(result, assertion)
		case AssertLiveCount:
			err = assertLiveCount(result, assertion)
		case AssertCommitOrder:
			err = h.assertCommitOrder(ctx, result, assertion)
		case AssertChainValid:
			err = h.assertChainValid(ctx, assertion)
		case AssertReplayEquivalent:
			err = h.assertReplayEquivalent(ctx, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

// assertConverged checks that every listed replica holds the same state as
// the first one.
func assertConverged(result *Result, assertion Assertion) error {
	first := assertion.Replicas[0]
	want := result.State[first]
	for _, name := range assertion.Replicas[1:] {
		got := result.State[name]
		if reflect.DeepEqual(want, got) {
			continue
		}
		return &AssertionError{
			Type:     AssertConverged,
			Expected: fmt.Sprintf("%s to match %s", name, first),
			Actual:   diffStates(want, got),
			Trace:    result.Trace,
		}
	}
	return nil
}

// diffStates names the first entity that differs between two states.
func diffStates(want, got []EntityState) string {
	index := func(states []EntityState) map[string]EntityState {
		m := make(map[string]EntityState, len(states))
		for _, s := range states {
			m[s.Name] = s
		}
		return m
	}
	w, g := index(want), index(got)

	names := make([]string, 0, len(w)+len(g))
	for n := range w {
		names = append(names, n)
	}
	for n := range g {
		if _, ok := w[n]; !ok {
			names = append(names, n)
		}
	}
	sort.Strings(names)

	for _, n := range names {
		a, inW := w[n]
		b, inG := g[n]
		switch {
		case !inG:
			return fmt.Sprintf("entity %s missing", n)
		case !inW:
			return fmt.Sprintf("unexpected entity %s", n)
		case !reflect.DeepEqual(a, b):
			return fmt.Sprintf("entity %s is %+v, want %+v", n, b, a)
		}
	}
	return "states differ"
}

func findEntity(result *Result, replica, name string) (EntityState, bool) {
	for _, s := range result.State[replica] {
		if s.Name == name {
			return s, true
		}
	}
	return EntityState{}, false
}

// assertEntity checks one entity's deletion flag, owning commit and fields.
// Fields use subset semantics; a null expected value requires absence.
func assertEntity(result *Result, assertion Assertion) error {
	fail := func(expected, actual string) error {
		return &AssertionError{
			Type:     AssertEntity,
			Expected: fmt.Sprintf("%s on %s: %s", assertion.Entity, assertion.Replica, expected),
			Actual:   actual,
			Trace:    result.Trace,
		}
	}

	s, ok := findEntity(result, assertion.Replica, assertion.Entity)
	if !ok {
		return fail("to exist", "no snapshot")
	}
	if assertion.Deleted != nil && s.Deleted != *assertion.Deleted {
		return fail(fmt.Sprintf("deleted=%t", *assertion.Deleted), fmt.Sprintf("deleted=%t", s.Deleted))
	}
	if assertion.Commit != "" && s.Commit != assertion.Commit {
		return fail(fmt.Sprintf("owned by commit %s", assertion.Commit), fmt.Sprintf("owned by commit %s", s.Commit))
	}

	keys := make([]string, 0, len(assertion.Fields))
	for k := range assertion.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		expected := assertion.Fields[key]
		actual, exists := s.Fields[key]
		if expected == nil {
			if exists {
				return fail(fmt.Sprintf("field %q absent", key), fmt.Sprintf("field %q = %v", key, actual))
			}
			continue
		}
		if !exists {
			return fail(fmt.Sprintf("field %q = %v", key, expected), fmt.Sprintf("field %q not present", key))
		}
		if !valuesEqual(actual, expected) {
			return fail(fmt.Sprintf("field %q = %v", key, expected), fmt.Sprintf("field %q = %v", key, actual))
		}
	}
	return nil
}

// valuesEqual compares a decoded payload value with a YAML value. Scalars
// compare by their printed form since YAML and JSON pick different numeric
// types.
func valuesEqual(actual, expected any) bool {
	if reflect.DeepEqual(actual, expected) {
		return true
	}
	return fmt.Sprint(actual) == fmt.Sprint(expected)
}

// assertLiveCount counts live entities of one type.
func assertLiveCount(result *Result, assertion Assertion) error {
	count := 0
	for _, s := range result.State[assertion.Replica] {
		if s.Type == assertion.EntityType && !s.Deleted {
			count++
		}
	}
	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertLiveCount,
			Expected: fmt.Sprintf("%d live %s on %s", assertion.Count, assertion.EntityType, assertion.Replica),
			Actual:   fmt.Sprintf("%d live", count),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertCommitOrder checks the replica's whole log against a label list.
func (h *Harness) assertCommitOrder(ctx context.Context, result *Result, assertion Assertion) error {
	commits, err := h.replicas[assertion.Replica].dm.Commits(ctx)
	if err != nil {
		return err
	}
	labels := make([]string, len(commits))
	for i, c := range commits {
		labels[i] = h.commitName(c.ID)
	}
	if !slices.Equal(labels, assertion.Commits) {
		return &AssertionError{
			Type:     AssertCommitOrder,
			Expected: fmt.Sprintf("%s log %v", assertion.Replica, assertion.Commits),
			Actual:   fmt.Sprintf("%v", labels),
			Trace:    result.Trace,
		}
	}
	return nil
}

func (h *Harness) assertChainValid(ctx context.Context, assertion Assertion) error {
	if err := h.replicas[assertion.Replica].dm.ValidateCommits(ctx); err != nil {
		return &AssertionError{
			Type:     AssertChainValid,
			Expected: fmt.Sprintf("valid hash chain on %s", assertion.Replica),
			Actual:   err.Error(),
		}
	}
	return nil
}

func (h *Harness) assertReplayEquivalent(ctx context.Context, assertion Assertion) error {
	report, err := h.replicas[assertion.Replica].dm.VerifyReplay(ctx)
	if err != nil {
		return err
	}
	if report.OK() {
		return nil
	}
	var actual []string
	if report.Rechained > 0 {
		actual = append(actual, fmt.Sprintf("%d commits rechained", report.Rechained))
	}
	for _, m := range report.Mismatches {
		actual = append(actual, fmt.Sprintf("%s: %s", h.entityName(m.EntityID), m.Reason))
	}
	return &AssertionError{
		Type:     AssertReplayEquivalent,
		Expected: fmt.Sprintf("stored snapshots on %s to match a replay from scratch", assertion.Replica),
		Actual:   strings.Join(actual, "; "),
	}
}
