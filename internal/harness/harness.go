package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/strata/internal/datamodel"
	"github.com/roach88/strata/internal/lexicon"
	"github.com/roach88/strata/internal/model"
	"github.com/roach88/strata/internal/store"
	"github.com/roach88/strata/internal/testutil"
)

// entityNamespace seeds the name-based entity ids of scenarios.
var entityNamespace = uuid.MustParse("6f1c2a4e-8d3b-4b7a-9e55-0c1d2e3f4a5b")

// EntityID returns the id a scenario uses for the entity called name.
func EntityID(name string) uuid.UUID {
	return uuid.NewSHA1(entityNamespace, []byte(name))
}

// Harness executes one scenario. Each replica runs on its own in-memory
// store with a manual clock and sequential commit ids.
type Harness struct {
	scenario *Scenario
	replicas map[string]*replica
	logger   *slog.Logger

	entityNames map[uuid.UUID]string
	commitNames map[uuid.UUID]string
}

type replica struct {
	name    string
	dm      *datamodel.DataModel
	store   *store.Store
	clock   *testutil.ManualClock
	commits int
}

// Option configures a scenario run.
type Option func(*Harness)

// WithLogger routes replica logs to logger. Logs are discarded by default.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = logger
	}
}

// Run executes a scenario and returns the result.
//
// Execution flow:
// 1. Open a fresh store and DataModel per replica
// 2. Execute steps in order, stopping at the first unexpected failure
// 3. Capture every replica's final state
// 4. Evaluate assertions
//
// An error is returned only when the harness itself cannot run; scenario
// failures are reported through Result.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	h := &Harness{
		scenario:    scenario,
		replicas:    make(map[string]*replica, len(scenario.Replicas)),
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		entityNames: make(map[uuid.UUID]string),
		commitNames: make(map[uuid.UUID]string),
	}
	for _, opt := range opts {
		opt(h)
	}
	defer h.close()

	for i, name := range scenario.Replicas {
		if err := h.openReplica(ctx, i, name); err != nil {
			return nil, err
		}
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		event, err := h.executeStep(ctx, step)
		if step.ExpectError != "" {
			switch {
			case err == nil:
				result.AddError(fmt.Sprintf("steps[%d]: expected error containing %q, step succeeded", i, step.ExpectError))
			case !strings.Contains(err.Error(), step.ExpectError):
				result.AddError(fmt.Sprintf("steps[%d]: expected error containing %q, got: %v", i, step.ExpectError, err))
			default:
				event.Error = step.ExpectError
				result.addEvent(event)
				continue
			}
			break
		}
		if err != nil {
			result.AddError(fmt.Sprintf("steps[%d]: %v", i, err))
			break
		}
		result.addEvent(event)
	}

	for _, name := range scenario.Replicas {
		state, err := h.state(ctx, h.replicas[name])
		if err != nil {
			return nil, fmt.Errorf("read state of %s: %w", name, err)
		}
		result.State[name] = state
	}

	for _, msg := range EvaluateAssertions(ctx, h, result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) openReplica(ctx context.Context, index int, name string) error {
	st, err := store.Open(":memory:")
	if err != nil {
		return fmt.Errorf("open store for %s: %w", name, err)
	}
	clock := testutil.NewManualClock(testutil.Epoch)
	ids := testutil.NewSequentialIDs(uint32(index + 1))

	dm, err := datamodel.Open(ctx, st,
		datamodel.WithClientID(testutil.ID(uint64(index+1))),
		datamodel.WithTimeSource(clock.Now),
		datamodel.WithIDGenerator(ids.New),
		datamodel.WithValidateChain(true),
		datamodel.WithLogger(h.logger.With("replica", name)),
	)
	if err != nil {
		st.Close()
		return fmt.Errorf("open replica %s: %w", name, err)
	}
	h.replicas[name] = &replica{name: name, dm: dm, store: st, clock: clock}
	return nil
}

func (h *Harness) close() {
	for _, r := range h.replicas {
		r.store.Close()
	}
}

func (h *Harness) executeStep(ctx context.Context, step Step) (TraceEvent, error) {
	switch {
	case len(step.Commit) > 0:
		return h.executeCommit(ctx, step)
	case len(step.Sync) > 0:
		return h.executeSync(ctx, step.Sync[0], step.Sync[1])
	default:
		return h.executeRegenerate(ctx, step.Regenerate)
	}
}

func (h *Harness) executeCommit(ctx context.Context, step Step) (TraceEvent, error) {
	r := h.replicas[step.Replica]
	event := TraceEvent{Type: EventCommit, Replica: r.name, Changes: len(step.Commit)}

	if step.At != "" {
		d, err := time.ParseDuration(step.At)
		if err != nil {
			return event, err
		}
		r.clock.Set(testutil.Epoch.Add(d))
	} else {
		r.clock.Advance(time.Second)
	}

	changes := make([]model.Change, 0, len(step.Commit))
	for i, cs := range step.Commit {
		change, err := h.buildChange(cs)
		if err != nil {
			return event, fmt.Errorf("commit[%d]: %w", i, err)
		}
		changes = append(changes, change)
	}

	commit, err := r.dm.AddChanges(ctx, changes...)
	if err != nil {
		return event, err
	}

	r.commits++
	label := step.Label
	if label == "" {
		label = fmt.Sprintf("%s.%d", r.name, r.commits)
	}
	h.commitNames[commit.ID] = label

	event.Commit = label
	event.AtMillis = commit.HybridDateTime.UnixMilli() - testutil.Epoch.UnixMilli()
	h.logger.Debug("commit step completed", "replica", r.name, "commit", label, "hash", commit.Hash)
	return event, nil
}

func (h *Harness) executeSync(ctx context.Context, localName, remoteName string) (TraceEvent, error) {
	local, remote := h.replicas[localName], h.replicas[remoteName]
	event := TraceEvent{Type: EventSync, Replica: localName, Peer: remoteName}

	res, err := local.dm.SyncWith(ctx, remote.dm)
	if err != nil {
		return event, err
	}
	event.Pulled = res.Pulled
	event.Pushed = res.Pushed
	return event, nil
}

func (h *Harness) executeRegenerate(ctx context.Context, name string) (TraceEvent, error) {
	event := TraceEvent{Type: EventRegenerate, Replica: name}
	res, err := h.replicas[name].dm.RegenerateSnapshots(ctx)
	if err != nil {
		return event, err
	}
	if res != nil {
		event.Replayed = res.Replayed
	}
	return event, nil
}

// entity resolves an entity name to its id and remembers the name.
func (h *Harness) entity(name string) uuid.UUID {
	id := EntityID(name)
	h.entityNames[id] = name
	return id
}

func (h *Harness) optionalEntity(name *string) *uuid.UUID {
	if name == nil || *name == "" {
		return nil
	}
	id := h.entity(*name)
	return &id
}

// buildChange turns a scenario change into a lexicon change.
func (h *Harness) buildChange(cs ChangeStep) (model.Change, error) {
	id := h.entity(cs.ID)
	required := func(field, value string) (uuid.UUID, error) {
		if value == "" {
			return uuid.Nil, fmt.Errorf("%s: %s is required", cs.Op, field)
		}
		return h.entity(value), nil
	}

	switch cs.Op {
	case OpCreateWord:
		return &lexicon.CreateWord{ID: id, Text: deref(cs.Text), Note: deref(cs.Note)}, nil
	case OpEditWord:
		return &lexicon.EditWord{ID: id, Text: cs.Text, Note: cs.Note}, nil
	case OpCreateDefinition:
		word, err := required("word", cs.Word)
		if err != nil {
			return nil, err
		}
		return &lexicon.CreateDefinition{ID: id, WordID: word, Gloss: cs.Gloss}, nil
	case OpEditDefinition:
		return &lexicon.EditDefinition{ID: id, Gloss: cs.Gloss}, nil
	case OpCreateExample:
		def, err := required("definition", cs.Definition)
		if err != nil {
			return nil, err
		}
		return &lexicon.CreateExample{ID: id, DefinitionID: def, Sentence: cs.Sentence}, nil
	case OpCreateCrossRef:
		word, err := required("word", cs.Word)
		if err != nil {
			return nil, err
		}
		return &lexicon.CreateCrossRef{ID: id, WordID: word, TargetID: h.optionalEntity(cs.Target)}, nil
	case OpSetTarget:
		return &lexicon.SetCrossRefTarget{ID: id, TargetID: h.optionalEntity(cs.Target)}, nil
	case OpDelete:
		return &lexicon.Delete{ID: id}, nil
	default:
		return nil, fmt.Errorf("unknown op %q", cs.Op)
	}
}

// state returns the name-resolved current state of r sorted by name.
func (h *Harness) state(ctx context.Context, r *replica) ([]EntityState, error) {
	var snaps []*model.ObjectSnapshot
	err := r.store.View(ctx, func(tx *store.Tx) error {
		var err error
		snaps, err = tx.CurrentSnapshots(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]EntityState, 0, len(snaps))
	for _, s := range snaps {
		es, err := h.entityState(s)
		if err != nil {
			return nil, err
		}
		out = append(out, es)
	}
	slices.SortFunc(out, func(a, b EntityState) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out, nil
}

func (h *Harness) entityState(s *model.ObjectSnapshot) (EntityState, error) {
	raw, err := model.EncodeEntity(s.Entity)
	if err != nil {
		return EntityState{}, err
	}
	fields := make(map[string]any)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return EntityState{}, fmt.Errorf("decode %s payload: %w", s.TypeName, err)
	}
	delete(fields, "id")
	delete(fields, "deleted_at")
	for k, v := range fields {
		if str, ok := v.(string); ok {
			if id, err := uuid.Parse(str); err == nil {
				fields[k] = h.entityName(id)
			}
		}
	}

	refs := make([]string, 0, len(s.References))
	for _, ref := range s.References {
		refs = append(refs, h.entityName(ref))
	}
	slices.Sort(refs)

	return EntityState{
		Name:    h.entityName(s.EntityID),
		Type:    s.TypeName,
		Commit:  h.commitName(s.CommitID),
		Deleted: s.EntityIsDeleted,
		Refs:    refs,
		Fields:  fields,
	}, nil
}

func (h *Harness) entityName(id uuid.UUID) string {
	if name, ok := h.entityNames[id]; ok {
		return name
	}
	return id.String()
}

func (h *Harness) commitName(id uuid.UUID) string {
	if name, ok := h.commitNames[id]; ok {
		return name
	}
	return id.String()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
