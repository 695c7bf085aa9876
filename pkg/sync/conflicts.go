package sync

import (
	"context"
	"time"

	"github.com/spf13/afero"

	"github.com/chambrid/bmad-sync/pkg/conflict"
	"github.com/chambrid/bmad-sync/pkg/mapping"
	"github.com/chambrid/bmad-sync/pkg/tracker"
)

// contentTypeToMapping narrows an Operation's ContentType down to the
// State Mapper's two content kinds (sprint-status rows never carry a
// tracker issue, so they never reach conflict detection).
func contentTypeToMapping(ct ContentType) mapping.ContentType {
	if ct == ContentEpic {
		return mapping.Epic
	}
	return mapping.Story
}

// mapperAdapter narrows pkg/mapping.Mapper's context-aware
// RemoteToLocal down to pkg/conflict.RemoteMapper's single-argument
// shape, since conflict detection already knows both sides' raw states
// and needs no context-file disambiguation.
type mapperAdapter struct {
	mapper *mapping.Mapper
	ct     mapping.ContentType
}

func (a mapperAdapter) RemoteToLocal(state string) (string, error) {
	return a.mapper.RemoteToLocal(state, a.ct, nil)
}

// DetectConflicts checks every update operation in ops against the
// tracker's current remote state, per spec §4.6: a conflict exists when
// local differs from map(remote) and both sides changed after lastSync.
// It returns any detected conflicts plus the subset of ops that are
// safe to apply (operations whose content key has a detected,
// unresolved conflict are held back rather than silently overwritten).
func DetectConflicts(ctx context.Context, fs afero.Fs, ops []Operation, trk *tracker.Wrapper, mapper *mapping.Mapper, lastSync, now time.Time) ([]conflict.StateConflict, []Operation, error) {
	var conflicts []conflict.StateConflict
	var safe []Operation

	for _, op := range ops {
		if op.Action != ActionUpdate || op.IssueID == "" {
			safe = append(safe, op)
			continue
		}

		issue, err := trk.GetIssue(ctx, op.IssueID)
		if err != nil {
			return nil, nil, err
		}

		localUpdated := now
		if info, err := fs.Stat(op.FilePath); err == nil {
			localUpdated = info.ModTime()
		}
		remoteUpdated, err := conflict.ParseTimestamp(issue.Updated)
		if err != nil {
			return nil, nil, err
		}

		adapter := mapperAdapter{mapper: mapper, ct: contentTypeToMapping(op.ContentType)}
		c, err := conflict.Detect(op.ContentKey, string(op.ContentType), op.LocalState, localUpdated, issue.State, remoteUpdated, lastSync, adapter, now)
		if err != nil {
			return nil, nil, err
		}
		if c != nil {
			conflicts = append(conflicts, *c)
			continue
		}
		safe = append(safe, op)
	}

	return conflicts, safe, nil
}
