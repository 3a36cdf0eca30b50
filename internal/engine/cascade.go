package engine

import (
	"bytes"
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/roach88/strata/internal/model"
)

// markDeleted removes every reference to deletedID held by other entities.
// Entities that become deleted as a result are processed the same way, so
// the cascade is transitive. Cycles terminate because an entity is only
// enqueued on its transition into the deleted state.
func (w *Worker) markDeleted(ctx context.Context, deletedID uuid.UUID, cc *changeContext) error {
	queue := []uuid.UUID{deletedID}
	visited := map[uuid.UUID]bool{deletedID: true}

	for len(queue) > 0 {
		target := queue[0]
		queue = queue[1:]

		holders, err := w.referencingEntityIDs(ctx, target)
		if err != nil {
			return fmt.Errorf("cascade delete %s: %w", target, err)
		}
		for _, holder := range holders {
			s, err := w.getSnapshot(ctx, holder)
			if err != nil {
				return fmt.Errorf("cascade delete %s: %w", target, err)
			}
			if s == nil {
				return &MissingSnapshotError{
					EntityID:     holder,
					ReferencedID: target,
					CommitID:     cc.commit.ID,
				}
			}
			// Already removed earlier in this pass.
			if !s.ReferencesEntity(target) {
				continue
			}

			entity := s.Entity.Copy()
			wasDeleted := model.IsDeleted(entity)
			entity.RemoveReference(target, cc.commit)
			w.generateSnapshot(entity, s, cc)
			w.cascaded++

			w.logger.Debug("removed reference",
				"entity", holder,
				"target", target,
				"commit", cc.commit.ID,
			)

			if !wasDeleted && model.IsDeleted(entity) && !visited[holder] {
				visited[holder] = true
				queue = append(queue, holder)
			}
		}
	}
	return nil
}

// referencingEntityIDs lists entities whose current state references id,
// deleted ones included. Snapshots cached in this pass shadow persisted
// ones, so a persisted reference already removed here is not reported.
func (w *Worker) referencingEntityIDs(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	seen := make(map[uuid.UUID]bool)
	var out []uuid.UUID
	add := func(entityID uuid.UUID) {
		if !seen[entityID] {
			seen[entityID] = true
			out = append(out, entityID)
		}
	}

	for entityID, s := range w.pending {
		if s.ReferencesEntity(id) {
			add(entityID)
		}
	}
	for entityID, s := range w.roots {
		if _, shadowed := w.pending[entityID]; shadowed {
			continue
		}
		if s.ReferencesEntity(id) {
			add(entityID)
		}
	}

	persisted, err := w.repo.SnapshotsReferencing(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("snapshots referencing %s: %w", id, err)
	}
	for _, s := range persisted {
		if _, ok := w.cached(s.EntityID); ok {
			continue
		}
		add(s.EntityID)
	}

	slices.SortFunc(out, func(a, b uuid.UUID) int {
		return bytes.Compare(a[:], b[:])
	})
	return out, nil
}
