package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// NullParentHash is the parent hash of the first commit in a chain.
const NullParentHash = "0000000000000000"

// CommitMetadata is free-form authoring information carried by a commit.
type CommitMetadata struct {
	AuthorName    string            `json:"author_name,omitempty"`
	AuthorID      string            `json:"author_id,omitempty"`
	ClientVersion string            `json:"client_version,omitempty"`
	Extra         map[string]string `json:"extra,omitempty"`
}

// Commit is an ordered group of changes authored by one client at one
// hybrid timestamp. Hash and ParentHash are the only mutable fields: they
// are recomputed whenever an earlier insertion rewrites history.
type Commit struct {
	ID             uuid.UUID       `json:"id"`
	ClientID       uuid.UUID       `json:"client_id"`
	HybridDateTime HybridTimestamp `json:"hybrid_date_time"`
	Hash           string          `json:"hash"`
	ParentHash     string          `json:"parent_hash"`
	Metadata       CommitMetadata  `json:"metadata"`
	ChangeEntities []ChangeEntity  `json:"change_entities"`
}

// DateTime is shorthand for the commit's wall-clock instant.
func (c *Commit) DateTime() time.Time {
	return c.HybridDateTime.DateTime
}

// CompareKey returns the canonical ordering key of the commit.
func (c *Commit) CompareKey() CompareKey {
	return CompareKey{
		DateTime: c.HybridDateTime.DateTime,
		Counter:  c.HybridDateTime.Counter,
		ID:       c.ID,
	}
}

// Clone returns a deep copy of the commit's header and change list.
// The Change values themselves are shared; they are never mutated.
func (c *Commit) Clone() *Commit {
	cp := *c
	cp.ChangeEntities = slices.Clone(c.ChangeEntities)
	if c.Metadata.Extra != nil {
		cp.Metadata.Extra = make(map[string]string, len(c.Metadata.Extra))
		for k, v := range c.Metadata.Extra {
			cp.Metadata.Extra[k] = v
		}
	}
	return &cp
}

func (c *Commit) String() string {
	return fmt.Sprintf("commit %s @ %s", c.ID, c.HybridDateTime)
}

// CompareKey is the total order over commits: instant, counter, then id.
type CompareKey struct {
	DateTime time.Time
	Counter  int64
	ID       uuid.UUID
}

// Compare returns -1, 0 or 1.
func (k CompareKey) Compare(other CompareKey) int {
	if c := k.DateTime.Compare(other.DateTime); c != 0 {
		return c
	}
	switch {
	case k.Counter < other.Counter:
		return -1
	case k.Counter > other.Counter:
		return 1
	}
	return bytes.Compare(k.ID[:], other.ID[:])
}

// CompareCommits orders two commits by CompareKey.
func CompareCommits(a, b *Commit) int {
	return a.CompareKey().Compare(b.CompareKey())
}

// SortCommits sorts commits in place by CompareKey.
func SortCommits(commits []*Commit) {
	slices.SortFunc(commits, CompareCommits)
}

// ChangeEntity binds one Change to its position inside a commit.
type ChangeEntity struct {
	Index    int       `json:"index"`
	CommitID uuid.UUID `json:"commit_id"`
	EntityID uuid.UUID `json:"entity_id"`
	Change   Change    `json:"-"`
}

type changeEntityJSON struct {
	Index    int             `json:"index"`
	CommitID uuid.UUID       `json:"commit_id"`
	EntityID uuid.UUID       `json:"entity_id"`
	Type     string          `json:"type"`
	Change   json.RawMessage `json:"change"`
}

// MarshalJSON writes the change under its registered discriminator.
func (ce ChangeEntity) MarshalJSON() ([]byte, error) {
	if ce.Change == nil {
		return nil, fmt.Errorf("change entity %d of commit %s has no change", ce.Index, ce.CommitID)
	}
	raw, err := EncodeChange(ce.Change)
	if err != nil {
		return nil, err
	}
	return json.Marshal(changeEntityJSON{
		Index:    ce.Index,
		CommitID: ce.CommitID,
		EntityID: ce.EntityID,
		Type:     ce.Change.TypeName(),
		Change:   raw,
	})
}

// UnmarshalJSON resolves the change through the registry.
func (ce *ChangeEntity) UnmarshalJSON(data []byte) error {
	var wire changeEntityJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return &PayloadError{Kind: "change entity", Raw: string(data), Err: err}
	}
	change, err := DecodeChange(wire.Type, wire.Change)
	if err != nil {
		return err
	}
	*ce = ChangeEntity{
		Index:    wire.Index,
		CommitID: wire.CommitID,
		EntityID: wire.EntityID,
		Change:   change,
	}
	return nil
}

// NewCommit assembles a commit from changes, assigning change indexes in order.
// Hash and ParentHash are left empty; they are set when the commit is chained.
func NewCommit(id, clientID uuid.UUID, ts HybridTimestamp, meta CommitMetadata, changes ...Change) *Commit {
	c := &Commit{
		ID:             id,
		ClientID:       clientID,
		HybridDateTime: ts,
		Metadata:       meta,
		ChangeEntities: make([]ChangeEntity, len(changes)),
	}
	for i, ch := range changes {
		c.ChangeEntities[i] = ChangeEntity{
			Index:    i,
			CommitID: id,
			EntityID: ch.EntityID(),
			Change:   ch,
		}
	}
	return c
}
