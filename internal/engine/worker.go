package engine

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"github.com/roach88/strata/internal/chain"
	"github.com/roach88/strata/internal/model"
)

// Result is the outcome of one reconciliation pass. Snapshot slices are
// ordered by entity id; Rechained is in CompareKey order.
type Result struct {
	Roots         []*model.ObjectSnapshot
	Intermediates []*model.ObjectSnapshot
	Current       []*model.ObjectSnapshot
	// Rechained lists commits whose Hash/ParentHash were rewritten.
	Rechained []*model.Commit
	// Replayed is the number of commits in the replay range.
	Replayed int
	// Cascaded counts snapshots produced by reference removal.
	Cascaded int
	// Head is the hash of the last replayed commit.
	Head string
}

// SnapshotCount is the total number of snapshots written.
func (r *Result) SnapshotCount() int {
	return len(r.Roots) + len(r.Intermediates) + len(r.Current)
}

// Worker runs exactly one reconciliation pass against a Repository.
//
// Workers are not safe for concurrent use and must not be reused: build a
// new one with NewWorker for every pass.
type Worker struct {
	repo   Repository
	logger *slog.Logger
	used   bool

	pending       map[uuid.UUID]*model.ObjectSnapshot
	roots         map[uuid.UUID]*model.ObjectSnapshot
	intermediates []*model.ObjectSnapshot
	// produced holds the ids of snapshots created during this pass. Only
	// those are candidates for checkpoint retention; persisted ones are
	// already stored.
	produced map[uuid.UUID]bool

	rechained []*model.Commit
	replayed  int
	cascaded  int
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithLogger sets the logger used for debug tracing of the pass.
func WithLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = logger
	}
}

// NewWorker creates a single-use worker bound to repo.
func NewWorker(repo Repository, opts ...WorkerOption) *Worker {
	w := &Worker{
		repo:     repo,
		logger:   slog.Default(),
		pending:  make(map[uuid.UUID]*model.ObjectSnapshot),
		roots:    make(map[uuid.UUID]*model.ObjectSnapshot),
		produced: make(map[uuid.UUID]bool),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// UpdateSnapshots brings snapshots up to date after history changed at
// oldest. newCommits are commits added by this mutation; they may or may
// not already be persisted. Their Hash/ParentHash are rewritten in place.
func (w *Worker) UpdateSnapshots(ctx context.Context, oldest *model.Commit, newCommits []*model.Commit) (*Result, error) {
	if w.used {
		return nil, ErrWorkerReused
	}
	w.used = true

	if err := w.repo.DeleteStaleSnapshots(ctx, oldest); err != nil {
		return nil, fmt.Errorf("update snapshots: delete stale: %w", err)
	}

	previous, err := w.repo.FindPreviousCommit(ctx, oldest)
	if err != nil {
		return nil, fmt.Errorf("update snapshots: find previous commit: %w", err)
	}
	seed := model.NullParentHash
	if previous != nil {
		seed = previous.Hash
	}

	persisted, err := w.repo.GetCommitsAfter(ctx, previous)
	if err != nil {
		return nil, fmt.Errorf("update snapshots: load commits: %w", err)
	}
	commits := unionByID(newCommits, persisted)
	model.SortCommits(commits)

	w.logger.Debug("replaying commits",
		"oldest", oldest.ID,
		"count", len(commits),
		"seed", seed,
	)

	var head string
	w.rechained, head = chain.Rechain(commits, seed)
	if err := w.applyCommitChanges(ctx, commits); err != nil {
		return nil, fmt.Errorf("update snapshots: %w", err)
	}

	if len(w.rechained) > 0 {
		if err := w.repo.UpdateCommitHashes(ctx, w.rechained...); err != nil {
			return nil, fmt.Errorf("update snapshots: rechain: %w", err)
		}
	}

	result := &Result{
		Roots:         sortedSnapshots(w.roots),
		Intermediates: w.intermediates,
		Current:       sortedSnapshots(w.pending),
		Rechained:     w.rechained,
		Replayed:      w.replayed,
		Cascaded:      w.cascaded,
		Head:          head,
	}

	// Roots first: other snapshots may reference them. Current snapshots
	// last so an intermediate never appears newer than the true latest.
	if err := w.repo.AddSnapshots(ctx, result.Roots...); err != nil {
		return nil, fmt.Errorf("update snapshots: add roots: %w", err)
	}
	if err := w.repo.AddSnapshots(ctx, result.Intermediates...); err != nil {
		return nil, fmt.Errorf("update snapshots: add intermediates: %w", err)
	}
	if err := w.repo.AddSnapshots(ctx, result.Current...); err != nil {
		return nil, fmt.Errorf("update snapshots: add current: %w", err)
	}

	w.logger.Debug("snapshots updated",
		"replayed", result.Replayed,
		"roots", len(result.Roots),
		"intermediates", len(result.Intermediates),
		"current", len(result.Current),
		"rechained", len(result.Rechained),
	)
	return result, nil
}

// applyCommitChanges replays commits, which must be in CompareKey order.
func (w *Worker) applyCommitChanges(ctx context.Context, commits []*model.Commit) error {
	for i, commit := range commits {
		cc := newChangeContext(w, commit, i+1)
		changes := slices.Clone(commit.ChangeEntities)
		slices.SortStableFunc(changes, func(a, b model.ChangeEntity) int {
			return a.Index - b.Index
		})
		for _, ce := range changes {
			if err := w.applyChange(ctx, cc, ce); err != nil {
				return err
			}
		}
		w.intermediates = append(w.intermediates, cc.flushIntermediates()...)
		w.replayed++
	}
	return nil
}

func (w *Worker) applyChange(ctx context.Context, cc *changeContext, ce model.ChangeEntity) error {
	wrap := func(err error) error {
		return &ChangeError{
			CommitID: cc.commit.ID,
			Index:    ce.Index,
			TypeName: ce.Change.TypeName(),
			EntityID: ce.EntityID,
			Err:      err,
		}
	}

	prev, err := w.getSnapshot(ctx, ce.EntityID)
	if err != nil {
		return wrap(err)
	}

	var entity model.Entity
	wasDeleted := false
	if prev == nil {
		entity, err = ce.Change.NewEntity(ctx, cc.commit, cc)
		if err != nil {
			return wrap(err)
		}
		if entity == nil {
			return wrap(fmt.Errorf("change constructed no entity"))
		}
		if entity.EntityID() != ce.EntityID {
			return wrap(fmt.Errorf("change constructed entity %s, want %s", entity.EntityID(), ce.EntityID))
		}
	} else {
		entity = prev.Entity.Copy()
		wasDeleted = model.IsDeleted(entity)
		if err := ce.Change.ApplyChange(ctx, entity, cc); err != nil {
			return wrap(err)
		}
	}

	w.generateSnapshot(entity, prev, cc)

	if !wasDeleted && model.IsDeleted(entity) {
		if err := w.markDeleted(ctx, entity.EntityID(), cc); err != nil {
			return err
		}
	}
	return nil
}

// generateSnapshot records entity as the new state produced by cc's commit.
//
// The new snapshot is a root when there is nothing before it, or when it
// replaces a root produced by the same commit: several changes to one
// entity inside a commit collapse into a single root instead of a chain.
func (w *Worker) generateSnapshot(entity model.Entity, prev *model.ObjectSnapshot, cc *changeContext) *model.ObjectSnapshot {
	commit := cc.commit
	isRoot := prev == nil || (prev.IsRoot && prev.CommitID == commit.ID)
	snapshot := model.NewObjectSnapshot(entity, commit, isRoot)

	if w.worthKeeping(prev, commit) {
		cc.intermediates[prev.EntityID] = prev
	}

	w.produced[snapshot.ID] = true
	if isRoot {
		w.roots[snapshot.EntityID] = snapshot
	} else {
		w.pending[snapshot.EntityID] = snapshot
	}
	return snapshot
}

// worthKeeping decides whether a snapshot displaced by commit is persisted
// as an intermediate checkpoint.
//
// Every displaced state from an earlier commit is kept: a later insertion
// between that commit and this one restarts replay after the earlier
// commit and needs its exact state as the base. Snapshots from the same
// commit are superseded, roots are already kept in the root cache, and
// snapshots loaded from the repository are already persisted.
func (w *Worker) worthKeeping(prev *model.ObjectSnapshot, commit *model.Commit) bool {
	if prev == nil || prev.CommitID == commit.ID || prev.IsRoot {
		return false
	}
	return w.produced[prev.ID]
}

// getSnapshot resolves the latest snapshot for an entity: pending, then
// roots produced in this pass, then the repository.
func (w *Worker) getSnapshot(ctx context.Context, entityID uuid.UUID) (*model.ObjectSnapshot, error) {
	if s, ok := w.pending[entityID]; ok {
		return s, nil
	}
	if s, ok := w.roots[entityID]; ok {
		return s, nil
	}
	s, err := w.repo.GetCurrentSnapshotByEntityID(ctx, entityID)
	if err != nil {
		return nil, fmt.Errorf("get snapshot %s: %w", entityID, err)
	}
	return s, nil
}

// cached returns the snapshot produced in this pass for entityID, if any.
func (w *Worker) cached(entityID uuid.UUID) (*model.ObjectSnapshot, bool) {
	if s, ok := w.pending[entityID]; ok {
		return s, true
	}
	s, ok := w.roots[entityID]
	return s, ok
}

func unionByID(first, second []*model.Commit) []*model.Commit {
	seen := make(map[uuid.UUID]bool, len(first)+len(second))
	out := make([]*model.Commit, 0, len(first)+len(second))
	for _, list := range [][]*model.Commit{first, second} {
		for _, c := range list {
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			out = append(out, c)
		}
	}
	return out
}

func sortedSnapshots(m map[uuid.UUID]*model.ObjectSnapshot) []*model.ObjectSnapshot {
	out := make([]*model.ObjectSnapshot, 0, len(m))
	for _, s := range m {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b *model.ObjectSnapshot) int {
		return bytes.Compare(a.EntityID[:], b.EntityID[:])
	})
	return out
}
