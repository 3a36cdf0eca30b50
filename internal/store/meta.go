package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const metaClientID = "client_id"

// GetMeta returns the value stored under key and whether it exists.
func (t *Tx) GetMeta(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := t.tx.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get meta %s: %w", key, err)
	}
	return value, true, nil
}

// SetMeta stores value under key, replacing any previous value.
func (t *Tx) SetMeta(ctx context.Context, key, value string) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("set meta %s: %w", key, err)
	}
	return nil
}

// ClientID returns the replica's client id, persisting want on first use.
// When want is uuid.Nil a new random id is generated. A stored id always
// wins over want, except that a non-nil want that differs is an error.
func (t *Tx) ClientID(ctx context.Context, want uuid.UUID) (uuid.UUID, error) {
	value, ok, err := t.GetMeta(ctx, metaClientID)
	if err != nil {
		return uuid.Nil, err
	}
	if ok {
		stored, err := parseID("client id", value)
		if err != nil {
			return uuid.Nil, err
		}
		if want != uuid.Nil && want != stored {
			return uuid.Nil, fmt.Errorf("database belongs to client %s, configured client is %s", stored, want)
		}
		return stored, nil
	}

	id := want
	if id == uuid.Nil {
		id = uuid.New()
	}
	if err := t.SetMeta(ctx, metaClientID, id.String()); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}
