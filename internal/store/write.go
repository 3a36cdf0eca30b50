package store

import (
	"context"
	"fmt"

	"github.com/roach88/strata/internal/model"
)

// AddCommits inserts commits and their change entities.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - a commit whose id is
// already stored is skipped together with its changes.
func (t *Tx) AddCommits(ctx context.Context, commits ...*model.Commit) error {
	for _, c := range commits {
		if err := t.addCommit(ctx, c); err != nil {
			return fmt.Errorf("add commit %s: %w", c.ID, err)
		}
	}
	return nil
}

func (t *Tx) addCommit(ctx context.Context, c *model.Commit) error {
	meta, err := marshalMetadata(c.Metadata)
	if err != nil {
		return err
	}

	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO commits
		(id, client_id, date_time, counter, hash, parent_hash, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		c.ID.String(),
		c.ClientID.String(),
		c.HybridDateTime.UnixMilli(),
		c.HybridDateTime.Counter,
		c.Hash,
		c.ParentHash,
		meta,
	)
	if err != nil {
		return err
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if inserted == 0 {
		return nil
	}

	for _, ce := range c.ChangeEntities {
		payload, err := model.EncodeChange(ce.Change)
		if err != nil {
			return err
		}
		_, err = t.tx.ExecContext(ctx, `
			INSERT INTO change_entities
			(commit_id, idx, entity_id, change_type, change)
			VALUES (?, ?, ?, ?, ?)
		`,
			c.ID.String(),
			ce.Index,
			ce.EntityID.String(),
			ce.Change.TypeName(),
			string(payload),
		)
		if err != nil {
			return fmt.Errorf("change %d: %w", ce.Index, err)
		}
	}
	return nil
}

// UpdateCommitHashes rewrites Hash and ParentHash of stored commits.
func (t *Tx) UpdateCommitHashes(ctx context.Context, commits ...*model.Commit) error {
	for _, c := range commits {
		_, err := t.tx.ExecContext(ctx, `
			UPDATE commits SET hash = ?, parent_hash = ? WHERE id = ?
		`, c.Hash, c.ParentHash, c.ID.String())
		if err != nil {
			return fmt.Errorf("update hash of %s: %w", c.ID, err)
		}
	}
	return nil
}

// AddSnapshots inserts snapshots in order. A snapshot whose id, or whose
// (entity, commit) pair, is already stored is silently ignored.
func (t *Tx) AddSnapshots(ctx context.Context, snapshots ...*model.ObjectSnapshot) error {
	for _, s := range snapshots {
		if err := t.addSnapshot(ctx, s); err != nil {
			return fmt.Errorf("add snapshot of %s at %s: %w", s.EntityID, s.CommitID, err)
		}
	}
	return nil
}

func (t *Tx) addSnapshot(ctx context.Context, s *model.ObjectSnapshot) error {
	entity, err := model.EncodeEntity(s.Entity)
	if err != nil {
		return err
	}
	refs, err := marshalRefs(s.References)
	if err != nil {
		return err
	}

	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO snapshots
		(id, type_name, entity_id, commit_id, entity, refs, entity_is_deleted, is_root)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		s.ID.String(),
		s.TypeName,
		s.EntityID.String(),
		s.CommitID.String(),
		string(entity),
		refs,
		boolToInt(s.EntityIsDeleted),
		boolToInt(s.IsRoot),
	)
	if err != nil {
		return err
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if inserted == 0 {
		return nil
	}

	for _, ref := range s.References {
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO snapshot_references (snapshot_id, entity_id)
			VALUES (?, ?)
			ON CONFLICT DO NOTHING
		`, s.ID.String(), ref.String())
		if err != nil {
			return fmt.Errorf("reference %s: %w", ref, err)
		}
	}
	return nil
}

// DeleteStaleSnapshots removes snapshots of commits at or after oldest.
// References go with them through ON DELETE CASCADE.
func (t *Tx) DeleteStaleSnapshots(ctx context.Context, oldest *model.Commit) error {
	_, err := t.tx.ExecContext(ctx, `
		DELETE FROM snapshots
		WHERE commit_id IN (
			SELECT id FROM commits
			WHERE (date_time, counter, id) >= (?, ?, ?)
		)
	`, oldest.HybridDateTime.UnixMilli(), oldest.HybridDateTime.Counter, oldest.ID.String())
	if err != nil {
		return fmt.Errorf("delete stale snapshots: %w", err)
	}
	return nil
}

// DeleteAllSnapshots empties the snapshot tables ahead of a full rebuild.
func (t *Tx) DeleteAllSnapshots(ctx context.Context) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM snapshots`); err != nil {
		return fmt.Errorf("delete all snapshots: %w", err)
	}
	return nil
}
