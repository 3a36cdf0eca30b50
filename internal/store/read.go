package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/strata/internal/engine"
	"github.com/roach88/strata/internal/model"
)

// Tx is a transaction-scoped view of the store. It implements
// engine.Repository plus the history queries the data model needs.
//
// Lookups that find nothing return (nil, nil). List queries return empty
// slices, never nil.
type Tx struct {
	tx *sql.Tx
}

var _ engine.Repository = (*Tx)(nil)

const commitSelect = `
	SELECT c.id, c.client_id, c.date_time, c.counter, c.hash, c.parent_hash, c.metadata,
	       ce.idx, ce.entity_id, ce.change_type, ce.change
	FROM commits c
	LEFT JOIN change_entities ce ON ce.commit_id = c.id
`

const commitOrder = `ORDER BY c.date_time ASC, c.counter ASC, c.id COLLATE BINARY ASC, ce.idx ASC`

// current restricts snapshot rows aliased s (joined to commits c) to the
// latest snapshot of each entity.
const currentOnly = `
	NOT EXISTS (
		SELECT 1 FROM snapshots s2
		JOIN commits c2 ON c2.id = s2.commit_id
		WHERE s2.entity_id = s.entity_id
		  AND (c2.date_time, c2.counter, c2.id) > (c.date_time, c.counter, c.id)
	)
`

const snapshotOrder = `ORDER BY c.date_time ASC, c.counter ASC, c.id COLLATE BINARY ASC, s.entity_id COLLATE BINARY ASC`

// queryCommits runs a commitSelect query and groups change rows per commit.
func (t *Tx) queryCommits(ctx context.Context, where string, args ...any) ([]*model.Commit, error) {
	rows, err := t.tx.QueryContext(ctx, commitSelect+where+"\n"+commitOrder, args...)
	if err != nil {
		return nil, fmt.Errorf("query commits: %w", err)
	}
	defer rows.Close()

	commits := []*model.Commit{}
	var last *model.Commit
	for rows.Next() {
		var r commitRow
		if err := r.scan(rows); err != nil {
			return nil, fmt.Errorf("scan commit: %w", err)
		}
		if last == nil || last.ID.String() != r.id {
			if last, err = r.header(); err != nil {
				return nil, err
			}
			commits = append(commits, last)
		}
		if !r.idx.Valid {
			continue
		}
		ce, err := r.changeEntity(last.ID)
		if err != nil {
			return nil, err
		}
		last.ChangeEntities = append(last.ChangeEntities, ce)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate commits: %w", err)
	}
	return commits, nil
}

func (t *Tx) queryCommit(ctx context.Context, where string, args ...any) (*model.Commit, error) {
	commits, err := t.queryCommits(ctx, where, args...)
	if err != nil {
		return nil, err
	}
	if len(commits) == 0 {
		return nil, nil
	}
	return commits[0], nil
}

func (t *Tx) querySnapshots(ctx context.Context, query string, args ...any) ([]*model.ObjectSnapshot, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := []*model.ObjectSnapshot{}
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return snapshots, nil
}

func (t *Tx) querySnapshot(ctx context.Context, query string, args ...any) (*model.ObjectSnapshot, error) {
	s, err := scanSnapshot(t.tx.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}
	return s, nil
}

func keyArgs(c *model.Commit) []any {
	return []any{c.HybridDateTime.UnixMilli(), c.HybridDateTime.Counter, c.ID.String()}
}

func (t *Tx) HasCommit(ctx context.Context, id uuid.UUID) (bool, error) {
	var n int
	err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM commits WHERE id = ?`, id.String()).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("has commit: %w", err)
	}
	return n > 0, nil
}

// CurrentCommits returns the whole log in CompareKey order.
func (t *Tx) CurrentCommits(ctx context.Context) ([]*model.Commit, error) {
	return t.queryCommits(ctx, "")
}

// LatestCommit returns the last commit in CompareKey order.
func (t *Tx) LatestCommit(ctx context.Context) (*model.Commit, error) {
	var id string
	err := t.tx.QueryRowContext(ctx, `
		SELECT id FROM commits
		ORDER BY date_time DESC, counter DESC, id COLLATE BINARY DESC
		LIMIT 1
	`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest commit: %w", err)
	}
	return t.queryCommit(ctx, "WHERE c.id = ?", id)
}

// FindCommit returns the commit with the given id.
func (t *Tx) FindCommit(ctx context.Context, id uuid.UUID) (*model.Commit, error) {
	return t.queryCommit(ctx, "WHERE c.id = ?", id.String())
}

func (t *Tx) FindPreviousCommit(ctx context.Context, c *model.Commit) (*model.Commit, error) {
	var id string
	err := t.tx.QueryRowContext(ctx, `
		SELECT id FROM commits
		WHERE (date_time, counter, id) < (?, ?, ?)
		ORDER BY date_time DESC, counter DESC, id COLLATE BINARY DESC
		LIMIT 1
	`, keyArgs(c)...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find previous commit: %w", err)
	}
	return t.queryCommit(ctx, "WHERE c.id = ?", id)
}

func (t *Tx) GetCommitsAfter(ctx context.Context, c *model.Commit) ([]*model.Commit, error) {
	if c == nil {
		return t.CurrentCommits(ctx)
	}
	return t.queryCommits(ctx, "WHERE (c.date_time, c.counter, c.id) > (?, ?, ?)", keyArgs(c)...)
}

// CommitsFromClientSince returns commits by clientID at or after sinceMillis.
func (t *Tx) CommitsFromClientSince(ctx context.Context, clientID uuid.UUID, sinceMillis int64) ([]*model.Commit, error) {
	return t.queryCommits(ctx, "WHERE c.client_id = ? AND c.date_time >= ?", clientID.String(), sinceMillis)
}

func (t *Tx) FindCommitByHash(ctx context.Context, hash string) (*model.Commit, error) {
	var id string
	err := t.tx.QueryRowContext(ctx, `
		SELECT id FROM commits WHERE hash = ?
		ORDER BY date_time ASC, counter ASC, id COLLATE BINARY ASC
		LIMIT 1
	`, hash).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find commit by hash: %w", err)
	}
	return t.queryCommit(ctx, "WHERE c.id = ?", id)
}

// SyncState returns the latest commit instant per client.
func (t *Tx) SyncState(ctx context.Context) (model.SyncState, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT client_id, MAX(date_time) FROM commits GROUP BY client_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query sync state: %w", err)
	}
	defer rows.Close()

	state := model.SyncState{}
	for rows.Next() {
		var client string
		var ms int64
		if err := rows.Scan(&client, &ms); err != nil {
			return nil, fmt.Errorf("scan sync state: %w", err)
		}
		id, err := parseID("client id", client)
		if err != nil {
			return nil, err
		}
		state[id] = ms
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sync state: %w", err)
	}
	return state, nil
}

func (t *Tx) FindSnapshot(ctx context.Context, id uuid.UUID) (*model.ObjectSnapshot, error) {
	return t.querySnapshot(ctx, `
		SELECT `+snapshotColumns+`
		FROM snapshots s
		WHERE s.id = ?
	`, id.String())
}

func (t *Tx) GetCurrentSnapshotByEntityID(ctx context.Context, entityID uuid.UUID) (*model.ObjectSnapshot, error) {
	return t.querySnapshot(ctx, `
		SELECT `+snapshotColumns+`
		FROM snapshots s
		JOIN commits c ON c.id = s.commit_id
		WHERE s.entity_id = ?
		ORDER BY c.date_time DESC, c.counter DESC, c.id COLLATE BINARY DESC
		LIMIT 1
	`, entityID.String())
}

// SnapshotAt returns the state of entityID as of commit: the latest
// snapshot whose commit is at or before it.
func (t *Tx) SnapshotAt(ctx context.Context, entityID uuid.UUID, commit *model.Commit) (*model.ObjectSnapshot, error) {
	args := append([]any{entityID.String()}, keyArgs(commit)...)
	return t.querySnapshot(ctx, `
		SELECT `+snapshotColumns+`
		FROM snapshots s
		JOIN commits c ON c.id = s.commit_id
		WHERE s.entity_id = ?
		  AND (c.date_time, c.counter, c.id) <= (?, ?, ?)
		ORDER BY c.date_time DESC, c.counter DESC, c.id COLLATE BINARY DESC
		LIMIT 1
	`, args...)
}

// SnapshotHistory returns every stored snapshot of entityID in commit order.
func (t *Tx) SnapshotHistory(ctx context.Context, entityID uuid.UUID) ([]*model.ObjectSnapshot, error) {
	return t.querySnapshots(ctx, `
		SELECT `+snapshotColumns+`
		FROM snapshots s
		JOIN commits c ON c.id = s.commit_id
		WHERE s.entity_id = ?
		`+snapshotOrder, entityID.String())
}

func (t *Tx) CurrentSnapshots(ctx context.Context) ([]*model.ObjectSnapshot, error) {
	return t.querySnapshots(ctx, `
		SELECT `+snapshotColumns+`
		FROM snapshots s
		JOIN commits c ON c.id = s.commit_id
		WHERE `+currentOnly+`
		`+snapshotOrder)
}

// CurrentSnapshotsOfType returns current snapshots of one entity type.
// Deleted entities are included; callers filter on EntityIsDeleted.
func (t *Tx) CurrentSnapshotsOfType(ctx context.Context, typeName string) ([]*model.ObjectSnapshot, error) {
	return t.querySnapshots(ctx, `
		SELECT `+snapshotColumns+`
		FROM snapshots s
		JOIN commits c ON c.id = s.commit_id
		WHERE s.type_name = ? AND `+currentOnly+`
		`+snapshotOrder, typeName)
}

func (t *Tx) SnapshotsReferencing(ctx context.Context, entityID uuid.UUID) ([]*model.ObjectSnapshot, error) {
	return t.querySnapshots(ctx, `
		SELECT `+snapshotColumns+`
		FROM snapshots s
		JOIN commits c ON c.id = s.commit_id
		JOIN snapshot_references r ON r.snapshot_id = s.id
		WHERE r.entity_id = ? AND `+currentOnly+`
		`+snapshotOrder, entityID.String())
}

// Counts reports the number of stored commits and snapshots.
func (t *Tx) Counts(ctx context.Context) (commits, snapshots int, err error) {
	err = t.tx.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM commits), (SELECT COUNT(*) FROM snapshots)
	`).Scan(&commits, &snapshots)
	if err != nil {
		return 0, 0, fmt.Errorf("count rows: %w", err)
	}
	return commits, snapshots, nil
}
