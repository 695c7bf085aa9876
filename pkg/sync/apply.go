package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/afero"

	"github.com/chambrid/bmad-sync/pkg/hierarchy"
	"github.com/chambrid/bmad-sync/pkg/numbering"
	"github.com/chambrid/bmad-sync/pkg/tracker"
)

// snapshotter is the subset of pkg/store.Store the applier needs,
// duck-typed so this package does not import pkg/store directly.
type snapshotter interface {
	Snapshot() (string, error)
	Restore(label string) error
}

// Applier executes a Plan's operations against the tracker CLI,
// registering new assignments and renaming/marking local artefacts for
// newly created issues, per spec §4.7 step 3. A failure at any point
// rolls every persisted document back to the pre-apply snapshot (spec
// §8 law 6: atomic apply).
type Applier struct {
	FS               afero.Fs
	Root             string
	SprintStatusPath string
	Tracker          *tracker.Wrapper
	Store            snapshotter
	Registry         *numbering.Registry
	Hierarchy        *hierarchy.Map
	Now              func() time.Time
}

// ApplyResult is the outcome of applying one Operation.
type ApplyResult struct {
	Operation Operation
	IssueID   string
	Error     error
}

// ApplyError aggregates every operation failure encountered during an
// Apply call, after which the store has already been rolled back.
type ApplyError struct {
	Results []ApplyResult
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("sync: apply failed for %d operation(s), state rolled back", len(e.Results))
}

func (a *Applier) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// Apply runs every operation in plan serially. On the first failure it
// restores the pre-apply snapshot and returns an *ApplyError describing
// every operation that failed (spec §4.7 step 3, §8 law 6). On full
// success it returns the per-operation results (each with a resolved
// IssueID) and a nil error.
func (a *Applier) Apply(ctx context.Context, plan *Plan) ([]ApplyResult, error) {
	label, err := a.Store.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("sync: failed to snapshot state before apply: %w", err)
	}

	results := make([]ApplyResult, 0, len(plan.Operations))
	var failures []ApplyResult

	for _, op := range plan.Operations {
		// Cancellation takes effect at the operation boundary.
		if err := ctx.Err(); err != nil {
			res := ApplyResult{Operation: op, Error: err}
			results = append(results, res)
			failures = append(failures, res)
			break
		}
		res := a.applyOne(ctx, op)
		results = append(results, res)
		if res.Error != nil {
			failures = append(failures, res)
			break
		}
	}

	if len(failures) > 0 {
		if restoreErr := a.Store.Restore(label); restoreErr != nil {
			failures = append(failures, ApplyResult{Error: fmt.Errorf("sync: rollback also failed: %w", restoreErr)})
		}
		return results, &ApplyError{Results: failures}
	}

	return results, nil
}

func (a *Applier) applyOne(ctx context.Context, op Operation) ApplyResult {
	switch op.Action {
	case ActionCreate:
		return a.applyCreate(ctx, op)
	case ActionUpdate:
		return a.applyUpdate(ctx, op)
	default:
		return ApplyResult{Operation: op, Error: fmt.Errorf("sync: unknown action %q", op.Action)}
	}
}

// markerTitle prefixes the tracker title with its content-type marker.
func markerTitle(op Operation) string {
	title := op.Title
	if title == "" {
		title = op.ContentKey
	}
	if op.ContentType == ContentEpic {
		return "\U0001F4E6 EPIC: " + title
	}
	return "\U0001F4CB STORY: " + title
}

func (a *Applier) applyCreate(ctx context.Context, op Operation) ApplyResult {
	issue, err := a.Tracker.CreateIssue(ctx, tracker.CreatePayload{
		Title:   markerTitle(op),
		Team:    op.Team,
		Project: op.Project,
		Labels:  op.AddLabels,
	})
	if err != nil {
		return ApplyResult{Operation: op, Error: err}
	}

	// The human-readable key ("WID-361") is preferred over the UUID for
	// every subsequent call.
	ref := issue.Key
	if ref == "" {
		ref = issue.ID
	}

	numericID, err := StripTeamPrefix(ref)
	if err != nil {
		numericID, err = StripTeamPrefix(issue.ID)
		if err != nil {
			return ApplyResult{Operation: op, Error: fmt.Errorf("sync: could not derive numeric id from issue %q/%q: %w", issue.ID, issue.Key, err)}
		}
	}

	// Move the freshly created issue to its desired mapped state.
	// Some CLI versions only accept one id form, so the UUID is retried
	// when the key form fails; a refusal on both is tolerated (the issue
	// exists, it just starts in the tracker's default state).
	if op.MappedState != "" {
		if _, err := a.Tracker.UpdateIssue(ctx, tracker.UpdatePayload{ID: ref, State: op.MappedState}); err != nil {
			if issue.ID != "" && issue.ID != ref {
				_, _ = a.Tracker.UpdateIssue(ctx, tracker.UpdatePayload{ID: issue.ID, State: op.MappedState})
			}
		}
	}

	if err := a.registerAndRename(op, numericID, ref); err != nil {
		return ApplyResult{Operation: op, Error: err}
	}

	return ApplyResult{Operation: op, IssueID: ref}
}

func (a *Applier) applyUpdate(ctx context.Context, op Operation) ApplyResult {
	_, err := a.Tracker.UpdateIssue(ctx, tracker.UpdatePayload{
		ID:           op.IssueID,
		State:        op.MappedState,
		Project:      op.Project,
		AddLabels:    op.AddLabels,
		RemoveLabels: op.RemoveLabels,
	})
	if err != nil {
		return ApplyResult{Operation: op, Error: err}
	}
	return ApplyResult{Operation: op, IssueID: op.IssueID}
}

// registerAndRename performs the post-create bookkeeping for a freshly
// created epic or story: registering its numbering assignment and
// hierarchy entry, then renaming/marking its local file and updating
// any stale cross-references (spec §4.7).
func (a *Applier) registerAndRename(op Operation, numericID int, issueID string) error {
	now := a.now()

	switch op.ContentType {
	case ContentEpic:
		if _, err := a.Registry.ReserveEpic(op.Epic, now); err != nil && !numbering.IsRangeOverlap(err) {
			return err
		}
		a.Hierarchy.SetEpic(op.ContentKey, issueID)

		if op.FilePath != "" {
			newPath, err := RenameEpicFile(a.FS, op.FilePath, numericID)
			if err != nil {
				return fmt.Errorf("sync: failed to rename epic file %s: %w", op.FilePath, err)
			}
			if err := InsertEpicMarker(a.FS, newPath, issueID); err != nil {
				return fmt.Errorf("sync: failed to mark epic file %s: %w", newPath, err)
			}
		}
		// Re-register under the tracker-assigned key so stories renamed
		// into the new numbering resolve their parent.
		a.Hierarchy.SetEpic(fmt.Sprintf("epic-%d", numericID), issueID)
		return nil

	case ContentStory:
		assignment, err := a.Registry.AssignStory(op.ContentKey, op.Epic, numericID, numbering.NoRemoteLookup, now)
		if err != nil {
			return err
		}
		a.Hierarchy.SetStory(op.ContentKey, issueID, "")

		epicNumericID := assignment.TrackerID - assignment.Story
		if op.FilePath != "" {
			slug := storySlug(op.FilePath)
			newPath, err := RenameStoryFile(a.FS, op.FilePath, epicNumericID, assignment.TrackerID, slug)
			if err != nil {
				return fmt.Errorf("sync: failed to rename story file %s: %w", op.FilePath, err)
			}
			if err := InsertStoryMarker(a.FS, newPath, issueID); err != nil {
				return fmt.Errorf("sync: failed to mark story file %s: %w", newPath, err)
			}
			if err := UpdateCrossReferences(a.FS, a.Root, op.Epic, op.Story, epicNumericID, assignment.TrackerID); err != nil {
				return fmt.Errorf("sync: failed to update cross references for %s: %w", op.ContentKey, err)
			}

			newKey := fmt.Sprintf("%d-%d-%s", epicNumericID, assignment.TrackerID, slug)
			if newKey != op.ContentKey {
				a.Registry.Rekey(op.ContentKey, newKey, now)
				a.Hierarchy.SetStory(newKey, issueID, "")
				if a.SprintStatusPath != "" {
					if ok, _ := afero.Exists(a.FS, a.SprintStatusPath); ok {
						if err := RenameSprintStatusKey(a.FS, a.SprintStatusPath, op.ContentKey, newKey); err != nil {
							return fmt.Errorf("sync: failed to rename sprint-status key %s: %w", op.ContentKey, err)
						}
					}
				}
			}
		}
		return nil
	}

	return nil
}

func storySlug(filePath string) string {
	base := filePath
	for i := len(base) - 1; i >= 0; i-- {
		if base[i] == '/' {
			base = base[i+1:]
			break
		}
	}
	if len(base) > 3 && base[len(base)-3:] == ".md" {
		base = base[:len(base)-3]
	}
	parts := splitN(base, '-', 3)
	if len(parts) == 3 {
		return parts[2]
	}
	return base
}

func splitN(s string, sep byte, n int) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s) && len(parts) < n-1; i++ {
		if s[i] == sep {
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	parts = append(parts, s[start:])
	return parts
}
