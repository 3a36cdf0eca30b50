package engine

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrWorkerReused is returned when UpdateSnapshots is called twice on one Worker.
var ErrWorkerReused = errors.New("snapshot worker already used; create a new one per reconciliation")

// MissingSnapshotError reports an entity that is known to reference a
// deleted entity but has no current snapshot. It indicates corrupted state.
type MissingSnapshotError struct {
	// EntityID is the referencing entity whose snapshot is missing.
	EntityID uuid.UUID
	// ReferencedID is the entity being deleted.
	ReferencedID uuid.UUID
	// CommitID is the commit whose deletion triggered the cascade.
	CommitID uuid.UUID
}

func (e *MissingSnapshotError) Error() string {
	return fmt.Sprintf("missing snapshot for entity %s while removing reference to %s (commit %s)",
		e.EntityID, e.ReferencedID, e.CommitID)
}

// IsMissingSnapshotError returns true if the error is a missing snapshot error.
// Uses errors.As to handle wrapped errors.
func IsMissingSnapshotError(err error) bool {
	var me *MissingSnapshotError
	return errors.As(err, &me)
}

// ChangeError wraps a failure returned by a Change implementation.
type ChangeError struct {
	CommitID uuid.UUID
	Index    int
	TypeName string
	EntityID uuid.UUID
	Err      error
}

func (e *ChangeError) Error() string {
	return fmt.Sprintf("apply %s (change %d of commit %s, entity %s): %v",
		e.TypeName, e.Index, e.CommitID, e.EntityID, e.Err)
}

func (e *ChangeError) Unwrap() error {
	return e.Err
}
