// Package history persists the per-content-key state change log (spec
// §3 StateHistory) and derives the "ancestor" state the conflict
// engine's three-way merge needs: the most recent historic state that
// equals neither side of a current divergence.
package history

import "time"

// Source distinguishes which side produced a StateChange.
type Source string

const (
	SourceLocal  Source = "local"
	SourceRemote Source = "remote"
)

// StateChange is one entry in a content key's change log.
type StateChange struct {
	From        string    `json:"from"`
	To          string    `json:"to"`
	Timestamp   time.Time `json:"timestamp"`
	Source      Source    `json:"source"`
	Operation   string    `json:"operation"`
	User        string    `json:"user"`
	ContentType string    `json:"content_type"`
}

// History is the persisted state_history.json document.
type History struct {
	Entries map[string][]StateChange `json:"entries"`
}

// documentLoader/documentSaver mirror pkg/store's Load/Save, duck-typed
// so this package doesn't import store directly.
type documentLoader interface {
	Load(name string, out interface{}) error
	Exists(name string) bool
}

type documentSaver interface {
	Save(name string, v interface{}) error
}

const doc = "state_history"

// Load reads the state history document, returning an empty History
// when none exists yet.
func Load(s documentLoader) (*History, error) {
	if !s.Exists(doc) {
		return &History{Entries: make(map[string][]StateChange)}, nil
	}
	var h History
	if err := s.Load(doc, &h); err != nil {
		return nil, err
	}
	if h.Entries == nil {
		h.Entries = make(map[string][]StateChange)
	}
	return &h, nil
}

// Save persists the state history document.
func Save(s documentSaver, h *History) error {
	return s.Save(doc, h)
}

// Append records a state change for contentKey.
func (h *History) Append(contentKey string, change StateChange) {
	h.Entries[contentKey] = append(h.Entries[contentKey], change)
}

// Prune removes entries older than retentionDays, relative to now.
func (h *History) Prune(retentionDays int, now time.Time) {
	cutoff := now.AddDate(0, 0, -retentionDays)
	for key, changes := range h.Entries {
		kept := changes[:0:0]
		for _, c := range changes {
			if c.Timestamp.After(cutoff) {
				kept = append(kept, c)
			}
		}
		if len(kept) == 0 {
			delete(h.Entries, key)
		} else {
			h.Entries[key] = kept
		}
	}
}

// FindAncestor returns the most recent historic state for contentKey
// that equals neither excludeA nor excludeB, implementing
// conflict.AncestorFinder. Changes are walked newest first, checking
// each change's "to" state and then its "from" state.
func (h *History) FindAncestor(contentKey, excludeA, excludeB string) (string, bool) {
	changes := h.Entries[contentKey]
	for i := len(changes) - 1; i >= 0; i-- {
		for _, state := range []string{changes[i].To, changes[i].From} {
			if state != "" && state != excludeA && state != excludeB {
				return state, true
			}
		}
	}
	return "", false
}
