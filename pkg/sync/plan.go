package sync

import (
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/chambrid/bmad-sync/pkg/discovery"
	"github.com/chambrid/bmad-sync/pkg/mapping"
	"github.com/chambrid/bmad-sync/pkg/numbering"
	"github.com/chambrid/bmad-sync/pkg/scan"
)

// PlanOptions filters and controls operation planning. CreateOnly and
// UpdateOnly are from spec §4.7; EpicFilter and KeyPattern are the
// selective_sync.py supplement (SPEC_FULL "Supplemented Features"),
// filtering the changed-key set down to a subset before operations are
// built.
type PlanOptions struct {
	ForceRefresh bool
	CreateOnly   bool
	UpdateOnly   bool
	EpicFilter   []int
	KeyPattern   string
}

// Summary is the operation-count rollup written into the sync report.
type Summary struct {
	Create int `json:"create"`
	Update int `json:"update"`
	Total  int `json:"total"`
}

// Plan is the full planning output: filtered operations plus their
// summary and any epic-aggregation warnings.
type Plan struct {
	Operations []Operation
	Summary    Summary
	Warnings   []string
}

// Planner builds Operations from a content index diff, the numbering
// registry (to decide create vs update), and the state mapper (to
// compute each operation's mapped tracker state).
type Planner struct {
	Mapper   *mapping.Mapper
	Registry *numbering.Registry
	Team     string
	Project  string
}

// Build produces a Plan from idx's changes (added+modified; deleted
// content keys are never synced, per spec §4.7 silence on deletion —
// BMAD content is never deleted from the tracker automatically) and the
// project's sprint status for epic aggregation.
func (p *Planner) Build(idx *discovery.Index, status *scan.SprintStatus, opts PlanOptions) (*Plan, error) {
	plan := &Plan{}

	changedKeys := make(map[string]Reason)
	for _, k := range idx.Changes.Added {
		changedKeys[k] = ReasonAdded
	}
	for _, k := range idx.Changes.Modified {
		changedKeys[k] = ReasonModified
	}

	for key, reason := range changedKeys {
		if !opts.keyAllowed(key) {
			continue
		}

		if discovery.IsStoryKey(key) {
			entry, ok := idx.Stories[key]
			if !ok {
				continue
			}
			op, err := p.planStory(key, entry, reason)
			if err != nil {
				return nil, err
			}
			if opts.actionAllowed(op.Action) {
				plan.Operations = append(plan.Operations, op)
			}
			continue
		}

		entry, ok := idx.Epics[key]
		if !ok {
			continue
		}
		op, warning := p.planEpic(key, entry, reason, idx, status)
		if warning != "" {
			plan.Warnings = append(plan.Warnings, warning)
		}
		if opts.actionAllowed(op.Action) {
			plan.Operations = append(plan.Operations, op)
		}
	}

	// Epics before stories, then by epic/story number, so a freshly
	// created epic is registered before its stories apply and the order
	// is stable across runs regardless of map iteration.
	sort.SliceStable(plan.Operations, func(i, j int) bool {
		a, b := plan.Operations[i], plan.Operations[j]
		if (a.ContentType == ContentEpic) != (b.ContentType == ContentEpic) {
			return a.ContentType == ContentEpic
		}
		if a.Epic != b.Epic {
			return a.Epic < b.Epic
		}
		if a.Story != b.Story {
			return a.Story < b.Story
		}
		return a.ContentKey < b.ContentKey
	})

	for _, op := range plan.Operations {
		if op.Action == ActionCreate {
			plan.Summary.Create++
		} else {
			plan.Summary.Update++
		}
	}
	plan.Summary.Total = len(plan.Operations)

	return plan, nil
}

func (o PlanOptions) actionAllowed(a Action) bool {
	if o.CreateOnly {
		return a == ActionCreate
	}
	if o.UpdateOnly {
		return a == ActionUpdate
	}
	return true
}

func (o PlanOptions) keyAllowed(key string) bool {
	if o.KeyPattern != "" {
		if ok, _ := path.Match(o.KeyPattern, key); !ok {
			return false
		}
	}
	if len(o.EpicFilter) == 0 {
		return true
	}
	epic := epicNumberFromKey(key)
	for _, e := range o.EpicFilter {
		if e == epic {
			return true
		}
	}
	return false
}

func epicNumberFromKey(key string) int {
	if strings.HasPrefix(key, "epic-") {
		n := 0
		for _, r := range key[len("epic-"):] {
			if r < '0' || r > '9' {
				break
			}
			n = n*10 + int(r-'0')
		}
		return n
	}
	idx := strings.Index(key, "-")
	if idx < 0 {
		return 0
	}
	n := 0
	for _, r := range key[:idx] {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}

func (p *Planner) planStory(key string, entry discovery.Entry, reason Reason) (Operation, error) {
	mappedState, err := p.Mapper.LocalToRemote(entry.Status, mapping.Story)
	if err != nil {
		return Operation{}, err
	}
	add, remove := ContextLabels(entry.Status)

	action := ActionCreate
	issueID := ""
	if assignment, ok := p.Registry.Stories[key]; ok {
		action = ActionUpdate
		issueID = formatTrackerID(assignment.TrackerID)
	}

	return Operation{
		Action:       action,
		ContentKey:   key,
		ContentType:  ContentStory,
		Reason:       reason,
		Title:        entry.Title,
		LocalState:   entry.Status,
		CurrentHash:  entry.Hash,
		IssueID:      issueID,
		MappedState:  mappedState,
		Team:         p.Team,
		Project:      p.Project,
		AddLabels:    add,
		RemoveLabels: remove,
		Epic:         entry.EpicNumber,
		Story:        entry.StoryNumber,
		FilePath:     entry.FilePath,
	}, nil
}

func (p *Planner) planEpic(key string, entry discovery.Entry, reason Reason, idx *discovery.Index, status *scan.SprintStatus) (Operation, string) {
	var storyStatuses []string
	for storyKey, s := range idx.Stories {
		if s.EpicNumber == entry.EpicNumber {
			storyStatuses = append(storyStatuses, s.Status)
			_ = storyKey
		}
	}

	retro := ""
	explicit := ""
	if status != nil {
		if v, ok := status.RetrospectiveFor(entry.EpicNumber); ok {
			retro = v
		}
		if v, ok := status.StatusFor(key); ok {
			explicit = v
		}
	}

	agg := AggregateEpicState(storyStatuses, retro, explicit)
	mappedState, err := p.Mapper.LocalToRemote(agg.State, mapping.Epic)
	if err != nil {
		mappedState = agg.State
	}

	action := ActionCreate
	issueID := ""
	if id, ok := p.Registry.Epics[entry.EpicNumber]; ok {
		action = ActionUpdate
		issueID = formatTrackerID(id.Start)
	}

	op := Operation{
		Action:      action,
		ContentKey:  key,
		ContentType: ContentEpic,
		Reason:      reason,
		Title:       entry.Title,
		LocalState:  agg.State,
		CurrentHash: entry.Hash,
		IssueID:     issueID,
		MappedState: mappedState,
		Team:        p.Team,
		Project:     p.Project,
		Epic:        entry.EpicNumber,
		FilePath:    entry.FilePath,
	}
	return op, agg.Warning
}

func formatTrackerID(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}
