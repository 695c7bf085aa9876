package store

import "time"

const (
	// MaxOperationHistory bounds SyncState.Operations; the oldest entries
	// are evicted once the bound is exceeded.
	MaxOperationHistory = 100
	// MaxErrorHistory bounds SyncState.Errors.
	MaxErrorHistory = 50

	syncStateDoc = "sync_state"
)

// OperationRecord is an append-only log entry for a completed sync
// operation, independent of the Sync Engine's in-memory Operation type.
type OperationRecord struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	ContentKey string    `json:"content_key"`
	Outcome    string    `json:"outcome"`
	Timestamp  time.Time `json:"timestamp"`
}

// ErrorRecord is an append-only log entry for a sync-time error.
type ErrorRecord struct {
	ContentKey string    `json:"content_key,omitempty"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
}

// SyncState is the State Store's run-history document: last sync
// timestamp plus bounded operation and error queues.
type SyncState struct {
	LastSync   *time.Time        `json:"last_sync"`
	Operations []OperationRecord `json:"operations"`
	Errors     []ErrorRecord     `json:"errors"`
}

// LoadSyncState reads the sync state document, returning a zero-value
// SyncState (not an error) when it has not yet been created.
func (s *Store) LoadSyncState() (*SyncState, error) {
	var state SyncState
	if err := s.Load(syncStateDoc, &state); err != nil {
		if !s.Exists(syncStateDoc) {
			return &SyncState{}, nil
		}
		return nil, err
	}
	return &state, nil
}

// SaveSyncState persists the sync state document.
func (s *Store) SaveSyncState(state *SyncState) error {
	return s.Save(syncStateDoc, state)
}

// AppendOperation appends a record, evicting the oldest entries beyond
// MaxOperationHistory.
func (state *SyncState) AppendOperation(rec OperationRecord) {
	state.Operations = append(state.Operations, rec)
	if len(state.Operations) > MaxOperationHistory {
		state.Operations = state.Operations[len(state.Operations)-MaxOperationHistory:]
	}
}

// AppendError appends a record, evicting the oldest entries beyond
// MaxErrorHistory.
func (state *SyncState) AppendError(rec ErrorRecord) {
	state.Errors = append(state.Errors, rec)
	if len(state.Errors) > MaxErrorHistory {
		state.Errors = state.Errors[len(state.Errors)-MaxErrorHistory:]
	}
}

// MarkSynced records the completion timestamp of a sync run.
func (state *SyncState) MarkSynced(at time.Time) {
	state.LastSync = &at
}
