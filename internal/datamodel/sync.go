package datamodel

import (
	"context"
	"fmt"

	"github.com/roach88/strata/internal/model"
	"github.com/roach88/strata/internal/store"
	"github.com/roach88/strata/internal/syncer"
)

var _ syncer.Syncable = (*DataModel)(nil)

// GetSyncState returns the latest commit instant per client.
func (dm *DataModel) GetSyncState(ctx context.Context) (model.SyncState, error) {
	var state model.SyncState
	err := dm.store.View(ctx, func(tx *store.Tx) error {
		var err error
		state, err = tx.SyncState(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get sync state: %w", err)
	}
	return state, nil
}

// GetChanges returns the commits a replica with remote state lacks,
// together with this replica's state.
func (dm *DataModel) GetChanges(ctx context.Context, remote model.SyncState) (*model.ChangesResult, error) {
	result := &model.ChangesResult{}
	err := dm.store.View(ctx, func(tx *store.Tx) error {
		local, err := tx.SyncState(ctx)
		if err != nil {
			return err
		}
		missing, err := syncer.ComputeMissing(ctx, tx, local, remote)
		if err != nil {
			return err
		}
		result.MissingFromClient = missing
		result.ServerSyncState = local
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get changes: %w", err)
	}
	return result, nil
}

// SyncWith exchanges commits with remote in both directions.
func (dm *DataModel) SyncWith(ctx context.Context, remote syncer.Syncable) (syncer.SyncResult, error) {
	result, err := syncer.Sync(ctx, dm, remote)
	if err != nil {
		return result, err
	}
	dm.logger.Info("synced", "client_id", dm.clientID, "pulled", result.Pulled, "pushed", result.Pushed)
	return result, nil
}
