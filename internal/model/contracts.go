package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Change is an operation targeting exactly one entity.
//
// The reconstruction engine calls NewEntity when no snapshot exists yet for
// the target entity and ApplyChange on a copy of the previous state
// otherwise. Implementations must be deterministic: the same change applied
// to the same state under the same commit must produce the same result.
type Change interface {
	// TypeName is the stable discriminator the change is registered under.
	TypeName() string
	// EntityID is the id of the entity this change targets.
	EntityID() uuid.UUID
	// NewEntity constructs the entity when no prior snapshot exists.
	NewEntity(ctx context.Context, commit *Commit, cc ChangeContext) (Entity, error)
	// ApplyChange mutates an existing entity in place.
	ApplyChange(ctx context.Context, entity Entity, cc ChangeContext) error
}

// Entity is the materialized state of one object.
type Entity interface {
	EntityID() uuid.UUID
	// TypeName is the stable discriminator the entity is registered under.
	TypeName() string
	DeletedAt() *time.Time
	SetDeletedAt(t *time.Time)
	// References lists the ids of other entities this one points to.
	References() []uuid.UUID
	// RemoveReference drops every pointer to id. Entity-specific policy
	// decides whether losing the reference also deletes this entity.
	RemoveReference(id uuid.UUID, commit *Commit)
	// Copy returns an independent copy safe to mutate.
	Copy() Entity
}

// IsDeleted reports whether the entity carries a deletion mark.
func IsDeleted(e Entity) bool {
	return e != nil && e.DeletedAt() != nil
}

// ChangeContext is the read-only view of reconstruction state exposed to a
// Change while it is being applied. Reads see snapshots produced earlier in
// the same pass before falling back to persisted storage.
type ChangeContext interface {
	// Commit is the commit currently being applied.
	Commit() *Commit
	// CommitIndex is the 1-based position of Commit in the replay range.
	CommitIndex() int
	// GetSnapshot returns the current snapshot for id, or nil if none exists.
	GetSnapshot(ctx context.Context, id uuid.UUID) (*ObjectSnapshot, error)
	// IsObjectDeleted is true when id is deleted or has no snapshot at all.
	IsObjectDeleted(ctx context.Context, id uuid.UUID) (bool, error)
	// GetObjectsReferencing returns live entities currently referencing id.
	GetObjectsReferencing(ctx context.Context, id uuid.UUID) ([]Entity, error)
}
