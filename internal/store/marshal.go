package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/strata/internal/model"
)

// marshalMetadata converts commit metadata to JSON TEXT for storage.
func marshalMetadata(meta model.CommitMetadata) (string, error) {
	data, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	return string(data), nil
}

func unmarshalMetadata(data string) (model.CommitMetadata, error) {
	var meta model.CommitMetadata
	if data == "" || data == "{}" {
		return meta, nil
	}
	if err := json.Unmarshal([]byte(data), &meta); err != nil {
		return meta, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return meta, nil
}

// marshalRefs stores snapshot references as a JSON array of id strings.
func marshalRefs(refs []uuid.UUID) (string, error) {
	if refs == nil {
		refs = []uuid.UUID{}
	}
	data, err := json.Marshal(refs)
	if err != nil {
		return "", fmt.Errorf("marshal references: %w", err)
	}
	return string(data), nil
}

func unmarshalRefs(data string) ([]uuid.UUID, error) {
	refs := []uuid.UUID{}
	if data == "" || data == "[]" {
		return refs, nil
	}
	if err := json.Unmarshal([]byte(data), &refs); err != nil {
		return nil, fmt.Errorf("unmarshal references: %w", err)
	}
	return refs, nil
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func parseID(column, value string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse %s %q: %w", column, value, err)
	}
	return id, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

const snapshotColumns = `s.id, s.type_name, s.entity_id, s.commit_id, s.entity, s.refs, s.entity_is_deleted, s.is_root`

// scanSnapshot reads one row selected with snapshotColumns and decodes the
// entity through the model registry.
func scanSnapshot(row scanner) (*model.ObjectSnapshot, error) {
	var (
		id, typeName, entityID, commitID, entity, refs string
		deleted, root                                  int
	)
	if err := row.Scan(&id, &typeName, &entityID, &commitID, &entity, &refs, &deleted, &root); err != nil {
		return nil, err
	}

	snap := &model.ObjectSnapshot{
		TypeName:        typeName,
		EntityIsDeleted: deleted != 0,
		IsRoot:          root != 0,
	}
	var err error
	if snap.ID, err = parseID("snapshot id", id); err != nil {
		return nil, err
	}
	if snap.EntityID, err = parseID("entity id", entityID); err != nil {
		return nil, err
	}
	if snap.CommitID, err = parseID("commit id", commitID); err != nil {
		return nil, err
	}
	if snap.References, err = unmarshalRefs(refs); err != nil {
		return nil, err
	}
	if snap.Entity, err = model.DecodeEntity(typeName, []byte(entity)); err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", id, err)
	}
	return snap, nil
}

// commitRow is one row of the commits LEFT JOIN change_entities query.
type commitRow struct {
	id, clientID, hash, parentHash, metadata string
	dateTime, counter                        int64
	idx                                      sql.NullInt64
	entityID, changeType, change             sql.NullString
}

func (r *commitRow) scan(rows scanner) error {
	return rows.Scan(
		&r.id, &r.clientID, &r.dateTime, &r.counter, &r.hash, &r.parentHash, &r.metadata,
		&r.idx, &r.entityID, &r.changeType, &r.change,
	)
}

func (r *commitRow) header() (*model.Commit, error) {
	c := &model.Commit{
		HybridDateTime: model.HybridTimestamp{DateTime: fromMillis(r.dateTime), Counter: r.counter},
		Hash:           r.hash,
		ParentHash:     r.parentHash,
		ChangeEntities: []model.ChangeEntity{},
	}
	var err error
	if c.ID, err = parseID("commit id", r.id); err != nil {
		return nil, err
	}
	if c.ClientID, err = parseID("client id", r.clientID); err != nil {
		return nil, err
	}
	if c.Metadata, err = unmarshalMetadata(r.metadata); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *commitRow) changeEntity(commitID uuid.UUID) (model.ChangeEntity, error) {
	entityID, err := parseID("entity id", r.entityID.String)
	if err != nil {
		return model.ChangeEntity{}, err
	}
	change, err := model.DecodeChange(r.changeType.String, []byte(r.change.String))
	if err != nil {
		return model.ChangeEntity{}, fmt.Errorf("commit %s change %d: %w", commitID, r.idx.Int64, err)
	}
	return model.ChangeEntity{
		Index:    int(r.idx.Int64),
		CommitID: commitID,
		EntityID: entityID,
		Change:   change,
	}, nil
}
