package lexicon

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/strata/internal/model"
)

// Change type discriminators.
const (
	ChangeCreateWord        = "word.create"
	ChangeEditWord          = "word.edit"
	ChangeCreateDefinition  = "definition.create"
	ChangeEditDefinition    = "definition.edit"
	ChangeCreateExample     = "example.create"
	ChangeCreateCrossRef    = "crossref.create"
	ChangeSetCrossRefTarget = "crossref.set_target"
	ChangeDelete            = "delete"
)

// ErrNotCreated is returned when a change that only modifies an entity is
// replayed before any change created it.
var ErrNotCreated = errors.New("entity does not exist")

// WrongTypeError reports a change applied to an entity of another type.
type WrongTypeError struct {
	Change string
	Want   string
	Got    string
}

func (e *WrongTypeError) Error() string {
	return fmt.Sprintf("%s applies to %s, got %s", e.Change, e.Want, e.Got)
}

// IsWrongTypeError returns true if err wraps a *WrongTypeError.
func IsWrongTypeError(err error) bool {
	var we *WrongTypeError
	return errors.As(err, &we)
}

func normalize(s string) string {
	return norm.NFC.String(s)
}

// entityAs asserts the concrete type of entity for change name.
func entityAs[T model.Entity](name, want string, entity model.Entity) (T, error) {
	typed, ok := entity.(T)
	if !ok {
		var zero T
		return zero, &WrongTypeError{Change: name, Want: want, Got: entity.TypeName()}
	}
	return typed, nil
}

// bornDeleted marks t deleted when the entity it depends on is already gone.
func bornDeleted(ctx context.Context, cc model.ChangeContext, t *tombstone, parent uuid.UUID) error {
	deleted, err := cc.IsObjectDeleted(ctx, parent)
	if err != nil {
		return err
	}
	if deleted {
		t.markDeleted(cc.Commit())
	}
	return nil
}

// liveTarget returns target unless it points at a deleted entity.
func liveTarget(ctx context.Context, cc model.ChangeContext, target *uuid.UUID) (*uuid.UUID, error) {
	if target == nil || *target == uuid.Nil {
		return nil, nil
	}
	deleted, err := cc.IsObjectDeleted(ctx, *target)
	if err != nil {
		return nil, err
	}
	if deleted {
		return nil, nil
	}
	id := *target
	return &id, nil
}

// CreateWord creates a word. Replayed against an existing word it
// overwrites the text and note.
type CreateWord struct {
	ID   uuid.UUID `json:"id"`
	Text string    `json:"text"`
	Note string    `json:"note,omitempty"`
}

func (c *CreateWord) TypeName() string    { return ChangeCreateWord }
func (c *CreateWord) EntityID() uuid.UUID { return c.ID }

func (c *CreateWord) NewEntity(ctx context.Context, commit *model.Commit, cc model.ChangeContext) (model.Entity, error) {
	return &Word{ID: c.ID, Text: normalize(c.Text), Note: normalize(c.Note)}, nil
}

func (c *CreateWord) ApplyChange(ctx context.Context, entity model.Entity, cc model.ChangeContext) error {
	w, err := entityAs[*Word](ChangeCreateWord, TypeWord, entity)
	if err != nil {
		return err
	}
	w.Text = normalize(c.Text)
	w.Note = normalize(c.Note)
	return nil
}

// EditWord changes the fields that are set.
type EditWord struct {
	ID   uuid.UUID `json:"id"`
	Text *string   `json:"text,omitempty"`
	Note *string   `json:"note,omitempty"`
}

func (c *EditWord) TypeName() string    { return ChangeEditWord }
func (c *EditWord) EntityID() uuid.UUID { return c.ID }

func (c *EditWord) NewEntity(ctx context.Context, commit *model.Commit, cc model.ChangeContext) (model.Entity, error) {
	return nil, fmt.Errorf("%s %s: %w", ChangeEditWord, c.ID, ErrNotCreated)
}

func (c *EditWord) ApplyChange(ctx context.Context, entity model.Entity, cc model.ChangeContext) error {
	w, err := entityAs[*Word](ChangeEditWord, TypeWord, entity)
	if err != nil {
		return err
	}
	if c.Text != nil {
		w.Text = normalize(*c.Text)
	}
	if c.Note != nil {
		w.Note = normalize(*c.Note)
	}
	return nil
}

// CreateDefinition adds a sense to a word. A definition created for a
// word that is already deleted starts out deleted.
type CreateDefinition struct {
	ID     uuid.UUID `json:"id"`
	WordID uuid.UUID `json:"word_id"`
	Gloss  string    `json:"gloss"`
}

func (c *CreateDefinition) TypeName() string    { return ChangeCreateDefinition }
func (c *CreateDefinition) EntityID() uuid.UUID { return c.ID }

func (c *CreateDefinition) NewEntity(ctx context.Context, commit *model.Commit, cc model.ChangeContext) (model.Entity, error) {
	d := &Definition{ID: c.ID, WordID: c.WordID, Gloss: normalize(c.Gloss)}
	if err := bornDeleted(ctx, cc, &d.tombstone, c.WordID); err != nil {
		return nil, err
	}
	return d, nil
}

func (c *CreateDefinition) ApplyChange(ctx context.Context, entity model.Entity, cc model.ChangeContext) error {
	d, err := entityAs[*Definition](ChangeCreateDefinition, TypeDefinition, entity)
	if err != nil {
		return err
	}
	d.Gloss = normalize(c.Gloss)
	return nil
}

// EditDefinition replaces the gloss.
type EditDefinition struct {
	ID    uuid.UUID `json:"id"`
	Gloss string    `json:"gloss"`
}

func (c *EditDefinition) TypeName() string    { return ChangeEditDefinition }
func (c *EditDefinition) EntityID() uuid.UUID { return c.ID }

func (c *EditDefinition) NewEntity(ctx context.Context, commit *model.Commit, cc model.ChangeContext) (model.Entity, error) {
	return nil, fmt.Errorf("%s %s: %w", ChangeEditDefinition, c.ID, ErrNotCreated)
}

func (c *EditDefinition) ApplyChange(ctx context.Context, entity model.Entity, cc model.ChangeContext) error {
	d, err := entityAs[*Definition](ChangeEditDefinition, TypeDefinition, entity)
	if err != nil {
		return err
	}
	d.Gloss = normalize(c.Gloss)
	return nil
}

// CreateExample attaches a usage sentence to a definition.
type CreateExample struct {
	ID           uuid.UUID `json:"id"`
	DefinitionID uuid.UUID `json:"definition_id"`
	Sentence     string    `json:"sentence"`
}

func (c *CreateExample) TypeName() string    { return ChangeCreateExample }
func (c *CreateExample) EntityID() uuid.UUID { return c.ID }

func (c *CreateExample) NewEntity(ctx context.Context, commit *model.Commit, cc model.ChangeContext) (model.Entity, error) {
	e := &Example{ID: c.ID, DefinitionID: c.DefinitionID, Sentence: normalize(c.Sentence)}
	if err := bornDeleted(ctx, cc, &e.tombstone, c.DefinitionID); err != nil {
		return nil, err
	}
	return e, nil
}

func (c *CreateExample) ApplyChange(ctx context.Context, entity model.Entity, cc model.ChangeContext) error {
	e, err := entityAs[*Example](ChangeCreateExample, TypeExample, entity)
	if err != nil {
		return err
	}
	e.Sentence = normalize(c.Sentence)
	return nil
}

// CreateCrossRef links WordID to TargetID. A deleted target is dropped.
type CreateCrossRef struct {
	ID       uuid.UUID  `json:"id"`
	WordID   uuid.UUID  `json:"word_id"`
	TargetID *uuid.UUID `json:"target_id,omitempty"`
}

func (c *CreateCrossRef) TypeName() string    { return ChangeCreateCrossRef }
func (c *CreateCrossRef) EntityID() uuid.UUID { return c.ID }

func (c *CreateCrossRef) NewEntity(ctx context.Context, commit *model.Commit, cc model.ChangeContext) (model.Entity, error) {
	ref := &CrossRef{ID: c.ID, WordID: c.WordID}
	if err := bornDeleted(ctx, cc, &ref.tombstone, c.WordID); err != nil {
		return nil, err
	}
	target, err := liveTarget(ctx, cc, c.TargetID)
	if err != nil {
		return nil, err
	}
	ref.TargetID = target
	return ref, nil
}

func (c *CreateCrossRef) ApplyChange(ctx context.Context, entity model.Entity, cc model.ChangeContext) error {
	ref, err := entityAs[*CrossRef](ChangeCreateCrossRef, TypeCrossRef, entity)
	if err != nil {
		return err
	}
	target, err := liveTarget(ctx, cc, c.TargetID)
	if err != nil {
		return err
	}
	ref.TargetID = target
	return nil
}

// SetCrossRefTarget re-points or clears a cross reference.
type SetCrossRefTarget struct {
	ID       uuid.UUID  `json:"id"`
	TargetID *uuid.UUID `json:"target_id,omitempty"`
}

func (c *SetCrossRefTarget) TypeName() string    { return ChangeSetCrossRefTarget }
func (c *SetCrossRefTarget) EntityID() uuid.UUID { return c.ID }

func (c *SetCrossRefTarget) NewEntity(ctx context.Context, commit *model.Commit, cc model.ChangeContext) (model.Entity, error) {
	return nil, fmt.Errorf("%s %s: %w", ChangeSetCrossRefTarget, c.ID, ErrNotCreated)
}

func (c *SetCrossRefTarget) ApplyChange(ctx context.Context, entity model.Entity, cc model.ChangeContext) error {
	ref, err := entityAs[*CrossRef](ChangeSetCrossRefTarget, TypeCrossRef, entity)
	if err != nil {
		return err
	}
	target, err := liveTarget(ctx, cc, c.TargetID)
	if err != nil {
		return err
	}
	ref.TargetID = target
	return nil
}

// Delete marks any lexicon entity deleted at the commit instant.
// Deleting an already deleted entity keeps the original instant.
type Delete struct {
	ID uuid.UUID `json:"id"`
}

func (c *Delete) TypeName() string    { return ChangeDelete }
func (c *Delete) EntityID() uuid.UUID { return c.ID }

func (c *Delete) NewEntity(ctx context.Context, commit *model.Commit, cc model.ChangeContext) (model.Entity, error) {
	return nil, fmt.Errorf("%s %s: %w", ChangeDelete, c.ID, ErrNotCreated)
}

func (c *Delete) ApplyChange(ctx context.Context, entity model.Entity, cc model.ChangeContext) error {
	if model.IsDeleted(entity) {
		return nil
	}
	at := cc.Commit().DateTime()
	entity.SetDeletedAt(&at)
	return nil
}
