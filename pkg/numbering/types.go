// Package numbering reserves contiguous integer ID ranges per epic and
// assigns individual story numbers within an epic's range, mirroring the
// identifiers the remote tracker will eventually assign.
package numbering

import "time"

// DefaultEpicBase and DefaultBlockSize match the spec's reference
// configuration; real values come from the project config.
const (
	DefaultEpicBase  = 360
	DefaultBlockSize = 20
)

// EpicRange is the reserved [start, end] window for one epic.
type EpicRange struct {
	Epic          int       `json:"epic"`
	Base          int       `json:"base"`
	Start         int       `json:"start"`
	End           int       `json:"end"`
	ReservedCount int       `json:"reserved_count"`
	ReservedAt    time.Time `json:"reserved_at"`
}

// StoryAssignment binds a content key to a tracker id within its epic's
// range.
type StoryAssignment struct {
	ContentKey string    `json:"content_key"`
	TrackerID  int       `json:"tracker_id"`
	Epic       int       `json:"epic"`
	Story      int       `json:"story"`
	AssignedAt time.Time `json:"assigned_at"`
}

// RenumberEntry records a content key moving from one tracker id to
// another, keeping the old key resolvable.
type RenumberEntry struct {
	ContentKey string    `json:"content_key"`
	OldID      int       `json:"old_id"`
	NewID      int       `json:"new_id"`
	Reason     string    `json:"reason"`
	At         time.Time `json:"at"`
}

// ConflictEntry logs a numbering collision encountered during
// assignment, for audit and troubleshooting.
type ConflictEntry struct {
	ContentKey string    `json:"content_key"`
	Requested  int       `json:"requested"`
	Resolved   int       `json:"resolved"`
	Reason     string    `json:"reason"`
	At         time.Time `json:"at"`
}

// Registry is the persisted shape of the number registry document.
type Registry struct {
	EpicBase           int                        `json:"epic_base"`
	BlockSize          int                        `json:"block_size"`
	Epics              map[int]EpicRange          `json:"epics"`
	Stories            map[string]StoryAssignment `json:"stories"`
	RenumberingHistory []RenumberEntry            `json:"renumbering_history"`
	Conflicts          []ConflictEntry            `json:"conflicts"`
}

// NewRegistry builds an empty registry with the given base/block size.
func NewRegistry(epicBase, blockSize int) *Registry {
	return &Registry{
		EpicBase:  epicBase,
		BlockSize: blockSize,
		Epics:     make(map[int]EpicRange),
		Stories:   make(map[string]StoryAssignment),
	}
}

// RangeFor computes the deterministic [start, end] window for epic n:
// base + (n-1)*block .. base + n*block - 1.
func (r *Registry) RangeFor(epic int) (start, end int) {
	start = r.EpicBase + (epic-1)*r.BlockSize
	end = r.EpicBase + epic*r.BlockSize - 1
	return start, end
}
