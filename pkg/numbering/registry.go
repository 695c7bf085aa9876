package numbering

import (
	"strconv"
	"time"
)

// RemoteLookup checks whether a tracker id is already known to the
// remote tracker, so story assignment can skip ids that exist there but
// were never recorded locally (e.g. after a partial prior sync).
type RemoteLookup interface {
	IssueExists(id int) bool
}

// noRemoteLookup is used when no tracker is wired in (tests, preview
// mode); nothing is considered to pre-exist remotely.
type noRemoteLookup struct{}

func (noRemoteLookup) IssueExists(int) bool { return false }

// NoRemoteLookup is the default RemoteLookup for callers that have no
// tracker available.
var NoRemoteLookup RemoteLookup = noRemoteLookup{}

// ReserveEpic reserves epic n's deterministic range, verifying it does
// not overlap any other epic's already-reserved range.
func (r *Registry) ReserveEpic(epic int, now time.Time) (EpicRange, error) {
	start, end := r.RangeFor(epic)

	for other, rng := range r.Epics {
		if other == epic {
			continue
		}
		if start <= rng.End && rng.Start <= end {
			return EpicRange{}, &NumberingError{
				Type:    "range_overlap",
				Message: "epic range overlaps an existing reservation",
				Context: fmtEpicOverlap(epic, other),
			}
		}
	}

	rng := EpicRange{
		Epic:          epic,
		Base:          r.EpicBase,
		Start:         start,
		End:           end,
		ReservedCount: end - start + 1,
		ReservedAt:    now,
	}
	r.Epics[epic] = rng
	return rng, nil
}

// AssignStory assigns a tracker id to contentKey within epic's range.
// If preferred is out of range, already locally assigned, or known to
// exist remotely, the first free slot in the range is used instead and
// a ConflictEntry is logged.
func (r *Registry) AssignStory(contentKey string, epic, preferred int, lookup RemoteLookup, now time.Time) (StoryAssignment, error) {
	if lookup == nil {
		lookup = NoRemoteLookup
	}

	rng, ok := r.Epics[epic]
	if !ok {
		var err error
		rng, err = r.ReserveEpic(epic, now)
		if err != nil {
			return StoryAssignment{}, err
		}
	}

	assigned := make(map[int]bool, len(r.Stories))
	for _, a := range r.Stories {
		assigned[a.TrackerID] = true
	}

	id := preferred
	needsFallback := id < rng.Start || id > rng.End || assigned[id] || lookup.IssueExists(id)
	if needsFallback {
		var found bool
		for candidate := rng.Start; candidate <= rng.End; candidate++ {
			if !assigned[candidate] && !lookup.IssueExists(candidate) {
				id = candidate
				found = true
				break
			}
		}
		if !found {
			return StoryAssignment{}, &NumberingError{
				Type:    "no_slot_available",
				Message: "no free slot in epic range",
				Context: contentKey,
			}
		}
		// Only an actual collision is a conflict; an absent preference
		// falling through to the first free slot is the normal path.
		if preferred != 0 {
			r.Conflicts = append(r.Conflicts, ConflictEntry{
				ContentKey: contentKey,
				Requested:  preferred,
				Resolved:   id,
				Reason:     "preferred number unavailable",
				At:         now,
			})
		}
	}

	assignment := StoryAssignment{
		ContentKey: contentKey,
		TrackerID:  id,
		Epic:       epic,
		Story:      id - rng.Start,
		AssignedAt: now,
	}
	r.Stories[contentKey] = assignment
	return assignment, nil
}

// Renumber removes contentKey's prior assignment and assigns it a new
// slot under newEpic, recording the old->new mapping so the old key
// remains resolvable via RenumberingHistory.
func (r *Registry) Renumber(contentKey string, newEpic, preferred int, reason string, lookup RemoteLookup, now time.Time) (StoryAssignment, error) {
	old, existed := r.Stories[contentKey]
	delete(r.Stories, contentKey)

	next, err := r.AssignStory(contentKey, newEpic, preferred, lookup, now)
	if err != nil {
		if existed {
			r.Stories[contentKey] = old
		}
		return StoryAssignment{}, err
	}

	oldID := 0
	if existed {
		oldID = old.TrackerID
	}
	r.RenumberingHistory = append(r.RenumberingHistory, RenumberEntry{
		ContentKey: contentKey,
		OldID:      oldID,
		NewID:      next.TrackerID,
		Reason:     reason,
		At:         now,
	})
	return next, nil
}

// Rekey moves an assignment to a new content key after a post-create
// file rename, preserving the tracker id and recording the move in
// RenumberingHistory so the old key stays resolvable.
func (r *Registry) Rekey(oldKey, newKey string, now time.Time) {
	a, ok := r.Stories[oldKey]
	if !ok || oldKey == newKey {
		return
	}
	delete(r.Stories, oldKey)
	a.ContentKey = newKey
	r.Stories[newKey] = a
	r.RenumberingHistory = append(r.RenumberingHistory, RenumberEntry{
		ContentKey: oldKey,
		OldID:      a.TrackerID,
		NewID:      a.TrackerID,
		Reason:     "renamed to " + newKey,
		At:         now,
	})
}

// ResolveRenumbered returns the most recent new id a content key was
// renumbered to, if any, so old keys found in stale references remain
// resolvable.
func (r *Registry) ResolveRenumbered(contentKey string) (int, bool) {
	for i := len(r.RenumberingHistory) - 1; i >= 0; i-- {
		if r.RenumberingHistory[i].ContentKey == contentKey {
			return r.RenumberingHistory[i].NewID, true
		}
	}
	return 0, false
}

func fmtEpicOverlap(epic, other int) string {
	return "epic-" + strconv.Itoa(epic) + " vs epic-" + strconv.Itoa(other)
}
