package model

import (
	"bytes"
	"encoding/json"
	"slices"

	"github.com/google/uuid"
)

// NewSnapshotID generates snapshot ids. Tests may replace it for stable output.
var NewSnapshotID = func() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// ObjectSnapshot is the materialized state of one entity as of one commit.
type ObjectSnapshot struct {
	ID              uuid.UUID   `json:"id"`
	TypeName        string      `json:"type_name"`
	EntityID        uuid.UUID   `json:"entity_id"`
	CommitID        uuid.UUID   `json:"commit_id"`
	Entity          Entity      `json:"-"`
	References      []uuid.UUID `json:"references"`
	EntityIsDeleted bool        `json:"entity_is_deleted"`
	IsRoot          bool        `json:"is_root"`
}

// NewObjectSnapshot captures entity as produced by commit. The entity is
// stored as given; callers hand over ownership and must not mutate it.
func NewObjectSnapshot(entity Entity, commit *Commit, isRoot bool) *ObjectSnapshot {
	return &ObjectSnapshot{
		ID:              NewSnapshotID(),
		TypeName:        entity.TypeName(),
		EntityID:        entity.EntityID(),
		CommitID:        commit.ID,
		Entity:          entity,
		References:      NormalizeReferences(entity.References()),
		EntityIsDeleted: IsDeleted(entity),
		IsRoot:          isRoot,
	}
}

// ReferencesEntity reports whether the snapshot points at id.
func (s *ObjectSnapshot) ReferencesEntity(id uuid.UUID) bool {
	_, found := slices.BinarySearchFunc(s.References, id, compareIDs)
	return found
}

// NormalizeReferences sorts and de-duplicates ids, dropping uuid.Nil.
func NormalizeReferences(ids []uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id != uuid.Nil {
			out = append(out, id)
		}
	}
	slices.SortFunc(out, compareIDs)
	return slices.Compact(out)
}

func compareIDs(a, b uuid.UUID) int {
	return bytes.Compare(a[:], b[:])
}

// MarshalJSON includes the entity payload under "entity".
func (s ObjectSnapshot) MarshalJSON() ([]byte, error) {
	type plain ObjectSnapshot
	var raw json.RawMessage = []byte("null")
	if s.Entity != nil {
		data, err := EncodeEntity(s.Entity)
		if err != nil {
			return nil, err
		}
		raw = data
	}
	return json.Marshal(struct {
		plain
		Entity json.RawMessage `json:"entity"`
	}{plain(s), raw})
}
