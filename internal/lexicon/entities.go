package lexicon

import (
	"time"

	"github.com/google/uuid"

	"github.com/roach88/strata/internal/model"
)

// Entity type discriminators.
const (
	TypeWord       = "word"
	TypeDefinition = "definition"
	TypeExample    = "example"
	TypeCrossRef   = "crossref"
)

// tombstone carries the deletion mark shared by every lexicon entity.
type tombstone struct {
	Deleted *time.Time `json:"deleted_at,omitempty"`
}

func (t *tombstone) DeletedAt() *time.Time { return t.Deleted }

func (t *tombstone) SetDeletedAt(at *time.Time) { t.Deleted = copyTime(at) }

// markDeleted sets the deletion mark to the commit instant unless already set.
func (t *tombstone) markDeleted(commit *model.Commit) {
	if t.Deleted == nil {
		at := commit.DateTime()
		t.Deleted = &at
	}
}

// Word is a headword.
type Word struct {
	ID   uuid.UUID `json:"id"`
	Text string    `json:"text"`
	Note string    `json:"note,omitempty"`
	tombstone
}

func (w *Word) EntityID() uuid.UUID     { return w.ID }
func (w *Word) TypeName() string        { return TypeWord }
func (w *Word) References() []uuid.UUID { return nil }

func (w *Word) RemoveReference(id uuid.UUID, commit *model.Commit) {}

func (w *Word) Copy() model.Entity {
	cp := *w
	cp.Deleted = copyTime(w.Deleted)
	return &cp
}

// Definition is one sense of a word.
type Definition struct {
	ID     uuid.UUID `json:"id"`
	WordID uuid.UUID `json:"word_id"`
	Gloss  string    `json:"gloss"`
	tombstone
}

func (d *Definition) EntityID() uuid.UUID     { return d.ID }
func (d *Definition) TypeName() string        { return TypeDefinition }
func (d *Definition) References() []uuid.UUID { return []uuid.UUID{d.WordID} }

func (d *Definition) RemoveReference(id uuid.UUID, commit *model.Commit) {
	if id == d.WordID {
		d.markDeleted(commit)
	}
}

func (d *Definition) Copy() model.Entity {
	cp := *d
	cp.Deleted = copyTime(d.Deleted)
	return &cp
}

// Example is a usage sentence illustrating a definition.
type Example struct {
	ID           uuid.UUID `json:"id"`
	DefinitionID uuid.UUID `json:"definition_id"`
	Sentence     string    `json:"sentence"`
	tombstone
}

func (e *Example) EntityID() uuid.UUID     { return e.ID }
func (e *Example) TypeName() string        { return TypeExample }
func (e *Example) References() []uuid.UUID { return []uuid.UUID{e.DefinitionID} }

func (e *Example) RemoveReference(id uuid.UUID, commit *model.Commit) {
	if id == e.DefinitionID {
		e.markDeleted(commit)
	}
}

func (e *Example) Copy() model.Entity {
	cp := *e
	cp.Deleted = copyTime(e.Deleted)
	return &cp
}

// CrossRef links a word to a related word. TargetID is nil while the
// target is unset or after the target was deleted.
type CrossRef struct {
	ID       uuid.UUID  `json:"id"`
	WordID   uuid.UUID  `json:"word_id"`
	TargetID *uuid.UUID `json:"target_id,omitempty"`
	tombstone
}

func (c *CrossRef) EntityID() uuid.UUID { return c.ID }
func (c *CrossRef) TypeName() string    { return TypeCrossRef }

func (c *CrossRef) References() []uuid.UUID {
	refs := []uuid.UUID{c.WordID}
	if c.TargetID != nil {
		refs = append(refs, *c.TargetID)
	}
	return refs
}

func (c *CrossRef) RemoveReference(id uuid.UUID, commit *model.Commit) {
	if c.TargetID != nil && *c.TargetID == id {
		c.TargetID = nil
	}
	if id == c.WordID {
		c.markDeleted(commit)
	}
}

func (c *CrossRef) Copy() model.Entity {
	cp := *c
	cp.Deleted = copyTime(c.Deleted)
	if c.TargetID != nil {
		target := *c.TargetID
		cp.TargetID = &target
	}
	return &cp
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
