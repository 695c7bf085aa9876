package sync

// doneLike states count toward the "all done-like" and "mixed" epic
// aggregation rules.
func doneLike(status string) bool {
	return status == "done" || status == "wont-do"
}

// EpicAggregation is the result of rolling up an epic's story statuses
// and retrospective entry into a single mapped local epic state, per
// spec §4.7.
type EpicAggregation struct {
	State   string
	Warning string
}

// AggregateEpicState implements the epic state rules from spec §4.7:
//
//   - retrospective completed -> done (overrides everything else)
//   - all stories ready-for-dev -> ready-for-dev
//   - all stories done-like (done or wont-do) and retrospective not
//     completed -> review
//   - any in-progress/review, or a mix of done-like and non-done-like
//     -> in-progress
//   - else -> backlog (warn if an explicit sprint-status entry other
//     than "backlog" contradicts that story progression)
func AggregateEpicState(storyStatuses []string, retrospective string, explicitEpicStatus string) EpicAggregation {
	if retrospective == "done" || retrospective == "completed" {
		return EpicAggregation{State: "done"}
	}

	if len(storyStatuses) == 0 {
		return EpicAggregation{State: "backlog"}
	}

	allReadyForDev := true
	allDoneLike := true
	anyInProgressOrReview := false
	anyDoneLike := false
	anyNonDoneLike := false

	for _, s := range storyStatuses {
		if s != "ready-for-dev" {
			allReadyForDev = false
		}
		if doneLike(s) {
			anyDoneLike = true
		} else {
			allDoneLike = false
			anyNonDoneLike = true
		}
		if s == "in-progress" || s == "review" {
			anyInProgressOrReview = true
		}
	}

	switch {
	case allReadyForDev:
		return EpicAggregation{State: "ready-for-dev"}
	case allDoneLike:
		return EpicAggregation{State: "review"}
	case anyInProgressOrReview || (anyDoneLike && anyNonDoneLike):
		return EpicAggregation{State: "in-progress"}
	default:
		agg := EpicAggregation{State: "backlog"}
		if explicitEpicStatus != "" && explicitEpicStatus != "backlog" {
			agg.Warning = "sprint-status declares " + explicitEpicStatus + " but story progression implies backlog"
		}
		return agg
	}
}
