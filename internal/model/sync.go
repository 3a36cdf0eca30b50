package model

import "github.com/google/uuid"

// SyncState maps each client id to the latest commit instant (epoch
// milliseconds) observed from that client.
type SyncState map[uuid.UUID]int64

// Clone returns an independent copy.
func (s SyncState) Clone() SyncState {
	out := make(SyncState, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// ChangesResult is the reply to a sync request: the commits the requester
// is missing plus the responder's own SyncState, so the requester can
// compute the reverse gap.
type ChangesResult struct {
	MissingFromClient []*Commit `json:"missing_from_client"`
	ServerSyncState   SyncState `json:"server_sync_state"`
}
