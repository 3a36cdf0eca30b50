package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/strata/internal/model"
)

// changeContext is the per-commit view handed to Change implementations.
type changeContext struct {
	worker *Worker
	commit *model.Commit
	index  int
	// intermediates collects snapshots displaced while applying commit,
	// keyed by entity so each entity contributes at most one checkpoint.
	intermediates map[uuid.UUID]*model.ObjectSnapshot
}

var _ model.ChangeContext = (*changeContext)(nil)

func newChangeContext(w *Worker, commit *model.Commit, index int) *changeContext {
	return &changeContext{
		worker:        w,
		commit:        commit,
		index:         index,
		intermediates: make(map[uuid.UUID]*model.ObjectSnapshot),
	}
}

func (c *changeContext) Commit() *model.Commit { return c.commit }

func (c *changeContext) CommitIndex() int { return c.index }

func (c *changeContext) GetSnapshot(ctx context.Context, id uuid.UUID) (*model.ObjectSnapshot, error) {
	return c.worker.getSnapshot(ctx, id)
}

func (c *changeContext) IsObjectDeleted(ctx context.Context, id uuid.UUID) (bool, error) {
	s, err := c.worker.getSnapshot(ctx, id)
	if err != nil {
		return false, err
	}
	return s == nil || s.EntityIsDeleted, nil
}

func (c *changeContext) GetObjectsReferencing(ctx context.Context, id uuid.UUID) ([]model.Entity, error) {
	ids, err := c.worker.referencingEntityIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]model.Entity, 0, len(ids))
	for _, holder := range ids {
		s, err := c.worker.getSnapshot(ctx, holder)
		if err != nil {
			return nil, err
		}
		if s == nil {
			return nil, fmt.Errorf("referencing entity %s has no snapshot", holder)
		}
		if s.EntityIsDeleted {
			continue
		}
		out = append(out, s.Entity.Copy())
	}
	return out, nil
}

// flushIntermediates returns the displaced snapshots in entity id order.
func (c *changeContext) flushIntermediates() []*model.ObjectSnapshot {
	if len(c.intermediates) == 0 {
		return nil
	}
	return sortedSnapshots(c.intermediates)
}
