// Package memstore is an in-memory engine.Repository.
//
// It backs replay verification (rebuild every snapshot from the commit log
// and compare with what the SQLite store holds) and the engine tests. It
// stores copies of everything it is given and hands out copies, so callers
// observe the same isolation they get from a database.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
package memstore

import (
	"bytes"
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/strata/internal/engine"
	"github.com/roach88/strata/internal/model"
)

// Store holds commits and snapshots in maps.
type Store struct {
	mu        sync.RWMutex
	commits   map[uuid.UUID]*model.Commit
	snapshots map[uuid.UUID]*model.ObjectSnapshot
	// byEntityCommit enforces one snapshot per (entity, commit).
	byEntityCommit map[[2]uuid.UUID]uuid.UUID
}

var _ engine.Repository = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		commits:        make(map[uuid.UUID]*model.Commit),
		snapshots:      make(map[uuid.UUID]*model.ObjectSnapshot),
		byEntityCommit: make(map[[2]uuid.UUID]uuid.UUID),
	}
}

func (s *Store) HasCommit(ctx context.Context, id uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.commits[id]
	return ok, nil
}

func (s *Store) AddCommits(ctx context.Context, commits ...*model.Commit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range commits {
		if _, ok := s.commits[c.ID]; ok {
			continue
		}
		s.commits[c.ID] = c.Clone()
	}
	return nil
}

func (s *Store) UpdateCommitHashes(ctx context.Context, commits ...*model.Commit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range commits {
		stored, ok := s.commits[c.ID]
		if !ok {
			continue
		}
		stored.Hash = c.Hash
		stored.ParentHash = c.ParentHash
	}
	return nil
}

func (s *Store) AddSnapshots(ctx context.Context, snapshots ...*model.ObjectSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, snap := range snapshots {
		if _, ok := s.snapshots[snap.ID]; ok {
			continue
		}
		key := [2]uuid.UUID{snap.EntityID, snap.CommitID}
		if _, ok := s.byEntityCommit[key]; ok {
			continue
		}
		s.snapshots[snap.ID] = cloneSnapshot(snap)
		s.byEntityCommit[key] = snap.ID
	}
	return nil
}

func (s *Store) CurrentCommits(ctx context.Context) ([]*model.Commit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedCommits(nil), nil
}

func (s *Store) CurrentSnapshots(ctx context.Context) ([]*model.ObjectSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	current := s.current()
	out := make([]*model.ObjectSnapshot, 0, len(current))
	for _, snap := range current {
		out = append(out, cloneSnapshot(snap))
	}
	s.sortSnapshots(out)
	return out, nil
}

func (s *Store) FindPreviousCommit(ctx context.Context, c *model.Commit) (*model.Commit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := c.CompareKey()
	var best *model.Commit
	for _, stored := range s.commits {
		if stored.CompareKey().Compare(key) >= 0 {
			continue
		}
		if best == nil || model.CompareCommits(stored, best) > 0 {
			best = stored
		}
	}
	if best == nil {
		return nil, nil
	}
	return best.Clone(), nil
}

func (s *Store) GetCommitsAfter(ctx context.Context, c *model.Commit) ([]*model.Commit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c == nil {
		return s.sortedCommits(nil), nil
	}
	key := c.CompareKey()
	return s.sortedCommits(func(stored *model.Commit) bool {
		return stored.CompareKey().Compare(key) > 0
	}), nil
}

// CommitsFromClientSince returns commits by clientID at or after sinceMillis.
func (s *Store) CommitsFromClientSince(ctx context.Context, clientID uuid.UUID, sinceMillis int64) ([]*model.Commit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedCommits(func(c *model.Commit) bool {
		return c.ClientID == clientID && c.HybridDateTime.UnixMilli() >= sinceMillis
	}), nil
}

// SyncState returns the latest commit instant per client.
func (s *Store) SyncState(ctx context.Context) (model.SyncState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state := model.SyncState{}
	for _, c := range s.commits {
		ms := c.HybridDateTime.UnixMilli()
		if cur, ok := state[c.ClientID]; !ok || ms > cur {
			state[c.ClientID] = ms
		}
	}
	return state, nil
}

func (s *Store) FindCommitByHash(ctx context.Context, hash string) (*model.Commit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, stored := range s.sortedCommits(nil) {
		if stored.Hash == hash {
			return stored, nil
		}
	}
	return nil, nil
}

func (s *Store) FindSnapshot(ctx context.Context, id uuid.UUID) (*model.ObjectSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[id]
	if !ok {
		return nil, nil
	}
	return cloneSnapshot(snap), nil
}

func (s *Store) GetCurrentSnapshotByEntityID(ctx context.Context, entityID uuid.UUID) (*model.ObjectSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *model.ObjectSnapshot
	for _, snap := range s.snapshots {
		if snap.EntityID != entityID {
			continue
		}
		if best == nil || s.compareSnapshots(snap, best) > 0 {
			best = snap
		}
	}
	if best == nil {
		return nil, nil
	}
	return cloneSnapshot(best), nil
}

func (s *Store) SnapshotsReferencing(ctx context.Context, entityID uuid.UUID) ([]*model.ObjectSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.ObjectSnapshot
	for _, snap := range s.current() {
		if snap.ReferencesEntity(entityID) {
			out = append(out, cloneSnapshot(snap))
		}
	}
	s.sortSnapshots(out)
	return out, nil
}

func (s *Store) DeleteStaleSnapshots(ctx context.Context, oldest *model.Commit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := oldest.CompareKey()
	for id, snap := range s.snapshots {
		commit, ok := s.commits[snap.CommitID]
		// Snapshots of commits that are not stored yet belong to the
		// commits being inserted, which are always at or after oldest.
		if ok && commit.CompareKey().Compare(key) < 0 {
			continue
		}
		delete(s.snapshots, id)
		delete(s.byEntityCommit, [2]uuid.UUID{snap.EntityID, snap.CommitID})
	}
	return nil
}

// SnapshotCount returns the number of stored snapshots of every kind.
func (s *Store) SnapshotCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshots)
}

// SnapshotsFor returns every stored snapshot of entityID in commit order.
func (s *Store) SnapshotsFor(entityID uuid.UUID) []*model.ObjectSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.ObjectSnapshot
	for _, snap := range s.snapshots {
		if snap.EntityID == entityID {
			out = append(out, cloneSnapshot(snap))
		}
	}
	s.sortSnapshots(out)
	return out
}

// current picks the latest snapshot per entity. Caller holds the lock.
func (s *Store) current() map[uuid.UUID]*model.ObjectSnapshot {
	out := make(map[uuid.UUID]*model.ObjectSnapshot)
	for _, snap := range s.snapshots {
		best, ok := out[snap.EntityID]
		if !ok || s.compareSnapshots(snap, best) > 0 {
			out[snap.EntityID] = snap
		}
	}
	return out
}

// compareSnapshots orders by owning commit, then entity id, then snapshot id.
func (s *Store) compareSnapshots(a, b *model.ObjectSnapshot) int {
	ca, cb := s.commits[a.CommitID], s.commits[b.CommitID]
	switch {
	case ca != nil && cb != nil:
		if c := model.CompareCommits(ca, cb); c != 0 {
			return c
		}
	case ca != nil:
		return -1
	case cb != nil:
		return 1
	}
	if c := bytes.Compare(a.EntityID[:], b.EntityID[:]); c != 0 {
		return c
	}
	return bytes.Compare(a.ID[:], b.ID[:])
}

func (s *Store) sortSnapshots(snaps []*model.ObjectSnapshot) {
	slices.SortFunc(snaps, s.compareSnapshots)
}

func (s *Store) sortedCommits(keep func(*model.Commit) bool) []*model.Commit {
	out := make([]*model.Commit, 0, len(s.commits))
	for _, c := range s.commits {
		if keep == nil || keep(c) {
			out = append(out, c.Clone())
		}
	}
	model.SortCommits(out)
	return out
}

func cloneSnapshot(snap *model.ObjectSnapshot) *model.ObjectSnapshot {
	cp := *snap
	cp.References = slices.Clone(snap.References)
	if snap.Entity != nil {
		cp.Entity = snap.Entity.Copy()
	}
	return &cp
}
