package harness

// Trace event types.
const (
	EventCommit     = "commit"
	EventSync       = "sync"
	EventRegenerate = "regenerate"
)

// TraceEvent records one executed step.
type TraceEvent struct {
	Seq     int    `json:"seq"`
	Type    string `json:"type"`
	Replica string `json:"replica"`
	// Commit is the label of the commit made by a commit step.
	Commit string `json:"commit,omitempty"`
	// AtMillis is the commit instant relative to the scenario epoch.
	AtMillis int64 `json:"at_ms,omitempty"`
	Changes  int   `json:"changes,omitempty"`
	// Peer is the remote side of a sync step.
	Peer   string `json:"peer,omitempty"`
	Pulled int    `json:"pulled,omitempty"`
	Pushed int    `json:"pushed,omitempty"`
	// Replayed is the number of commits a regenerate step replayed.
	Replayed int `json:"replayed,omitempty"`
	// Error is set when a step failed as the scenario expected.
	Error string `json:"error,omitempty"`
}

// EntityState is the name-resolved current state of one entity.
type EntityState struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Commit  string `json:"commit"`
	Deleted bool   `json:"deleted"`
	// Refs lists the names of referenced entities, sorted.
	Refs []string `json:"refs"`
	// Fields holds the entity payload minus id and deletion mark, with
	// entity ids replaced by names.
	Fields map[string]any `json:"fields"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when no step failed unexpectedly and every assertion held.
	Pass bool `json:"pass"`

	Trace []TraceEvent `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State is the final state per replica, entities sorted by name.
	State map[string][]EntityState `json:"state"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  make(map[string][]EntityState),
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// addEvent appends e to the trace with the next sequence number.
func (r *Result) addEvent(e TraceEvent) {
	e.Seq = len(r.Trace) + 1
	r.Trace = append(r.Trace, e)
}
