package conflict

import "time"

// Outcome is the result of running the automated resolution pipeline
// against one conflict: either a strategy was chosen (Resolved=true) or
// every stage missed and the conflict is deferred to manual review.
type Outcome struct {
	Resolved    bool
	Strategy    StrategyKind
	Confidence  float64
	Source      string // "rule", "suggester", "pattern"
	Explanation string
}

// Pipeline runs the automated resolution priority order from spec
// §4.6: custom rules, then the learned suggester (if present), then
// built-in patterns. If none clears Threshold, the conflict is deferred
// to manual resolution.
type Pipeline struct {
	Rules     *Engine
	Suggester Suggester
	Threshold float64
}

// DefaultThreshold is used when the caller does not configure one.
const DefaultThreshold = 0.8

// Resolve evaluates the pipeline against a conflict's features.
func (p *Pipeline) Resolve(f Features) Outcome {
	threshold := p.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}

	if p.Rules != nil {
		if strategy, confidence, ok := p.Rules.Evaluate(f, threshold); ok {
			return Outcome{Resolved: true, Strategy: strategy, Confidence: confidence, Source: "rule"}
		}
	}

	if p.Suggester != nil {
		if strategy, confidence, explanation, ok := p.Suggester.Predict(f); ok && confidence >= threshold {
			return Outcome{Resolved: true, Strategy: strategy, Confidence: confidence, Source: "suggester", Explanation: explanation}
		}
	}

	if strategy, confidence, ok := EvaluatePatterns(f.LocalState, f.RemoteState, threshold); ok {
		return Outcome{Resolved: true, Strategy: strategy, Confidence: confidence, Source: "pattern"}
	}

	return Outcome{Resolved: false}
}

// ThreeWayRecommendation is the merge recommendation computed from an
// ancestor state, per spec §4.6.
type ThreeWayRecommendation struct {
	Strategy    StrategyKind
	Confidence  float64
	Ancestor    string
	HasAncestor bool
}

// AncestorFinder resolves the most recent historic state for a content
// key that equals neither the current local nor remote state (spec
// §4.6, GLOSSARY "Ancestor").
type AncestorFinder interface {
	FindAncestor(contentKey, excludeA, excludeB string) (state string, ok bool)
}

// ThreeWayMerge computes the merge recommendation for a conflict using
// history to find the common ancestor.
func ThreeWayMerge(contentKey, localState, remoteState string, history AncestorFinder) ThreeWayRecommendation {
	ancestor, ok := history.FindAncestor(contentKey, localState, remoteState)
	if !ok {
		return ThreeWayRecommendation{Strategy: RecentWins, Confidence: 0.5}
	}

	switch {
	case localState == ancestor:
		return ThreeWayRecommendation{Strategy: KeepRemote, Confidence: 0.9, Ancestor: ancestor, HasAncestor: true}
	case remoteState == ancestor:
		return ThreeWayRecommendation{Strategy: KeepLocal, Confidence: 0.9, Ancestor: ancestor, HasAncestor: true}
	default:
		return ThreeWayRecommendation{Strategy: RecentWins, Confidence: 0.7, Ancestor: ancestor, HasAncestor: true}
	}
}

// Metrics accumulates resolution effectiveness records and derives the
// aggregate statistics spec §4.6 expects reports to expose: auto
// success rate, override rate, and time saved.
type Metrics struct {
	Records []EffectivenessRecord
}

// Record appends one effectiveness entry.
func (m *Metrics) Record(rec EffectivenessRecord) {
	m.Records = append(m.Records, rec)
}

// Summary is the aggregate view of accumulated metrics.
type Summary struct {
	Total            int
	AutoCount        int
	OverriddenCount  int
	AutoSuccessRate  float64
	OverrideRate     float64
	TimeSavedSeconds float64
}

// Summarize computes the aggregate statistics. manualAvgSeconds is the
// average time a manual resolution takes, used to estimate time saved
// by every auto-resolved, non-overridden record.
func (m *Metrics) Summarize(manualAvgSeconds float64) Summary {
	s := Summary{Total: len(m.Records)}
	if s.Total == 0 {
		return s
	}

	var savedAuto int
	for _, r := range m.Records {
		if r.Auto {
			s.AutoCount++
			if r.Overridden {
				s.OverriddenCount++
			} else {
				savedAuto++
			}
		}
	}
	s.AutoSuccessRate = float64(s.AutoCount) / float64(s.Total)
	if s.AutoCount > 0 {
		s.OverrideRate = float64(s.OverriddenCount) / float64(s.AutoCount)
	}
	s.TimeSavedSeconds = float64(savedAuto) * manualAvgSeconds
	return s
}

// nowFunc is overridden in tests; production always uses time.Now.
var nowFunc = time.Now
