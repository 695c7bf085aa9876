// Package conflict detects divergence between local and remote states
// for the same content key and resolves it via custom rules, a learned
// suggester, built-in patterns, three-way merge, or manual field-level
// selection, per spec §4.6.
package conflict

import (
	"time"

	"github.com/google/uuid"
)

// StateConflict is one queued divergence between local and remote
// state for a content key.
type StateConflict struct {
	ID            string    `json:"id"`
	ContentKey    string    `json:"content_key"`
	Type          string    `json:"type"`
	LocalState    string    `json:"local_state"`
	LocalUpdated  time.Time `json:"local_updated"`
	RemoteState   string    `json:"remote_state"`
	RemoteUpdated time.Time `json:"remote_updated"`
	DetectedAt    time.Time `json:"detected_at"`
	Resolved      bool      `json:"resolved"`
}

// NewConflict builds a StateConflict with a fresh id.
func NewConflict(contentKey, contentType, localState, remoteState string, localUpdated, remoteUpdated, now time.Time) StateConflict {
	return StateConflict{
		ID:            uuid.NewString(),
		ContentKey:    contentKey,
		Type:          contentType,
		LocalState:    localState,
		LocalUpdated:  localUpdated,
		RemoteState:   remoteState,
		RemoteUpdated: remoteUpdated,
		DetectedAt:    now,
	}
}

// StrategyKind tags which resolution strategy produced an outcome.
type StrategyKind string

const (
	KeepLocal        StrategyKind = "keep-local"
	KeepRemote       StrategyKind = "keep-remote"
	RecentWins       StrategyKind = "recent-wins"
	ManualFieldLevel StrategyKind = "manual-field-level"
)

// Strategy is a tagged sum: Kind selects which fields are meaningful.
// Fields carries the per-field side selection for ManualFieldLevel.
type Strategy struct {
	Kind   StrategyKind
	Fields map[string]string
}

// ResolutionRecord is one append-only entry in the resolution history.
type ResolutionRecord struct {
	ID           string       `json:"id"`
	ConflictID   string       `json:"conflict_id"`
	Strategy     StrategyKind `json:"strategy"`
	BeforeLocal  string       `json:"before_local"`
	BeforeRemote string       `json:"before_remote"`
	AfterState   string       `json:"after_state"`
	ResolvedAt   time.Time    `json:"resolved_at"`
	By           string       `json:"by"`
	Auto         bool         `json:"auto"`
	Confidence   float64      `json:"confidence"`
}

// EffectivenessRecord is one append-only entry in the resolution
// effectiveness metrics store.
type EffectivenessRecord struct {
	Auto         bool         `json:"auto"`
	Confidence   float64      `json:"confidence"`
	Strategy     StrategyKind `json:"strategy"`
	TimeSeconds  float64      `json:"time_seconds"`
	Overridden   bool         `json:"overridden"`
	Satisfaction *int         `json:"satisfaction,omitempty"`
}
