package conflict

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMapper struct {
	m map[string]string
}

func (f fakeMapper) RemoteToLocal(state string) (string, error) {
	if v, ok := f.m[state]; ok {
		return v, nil
	}
	return state, nil
}

func TestDetect_OnlyWhenBothSidesChangedSinceLastSync(t *testing.T) {
	lastSync := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mapper := fakeMapper{m: map[string]string{"Done": "done"}}

	c, err := Detect("1-1-setup", "story", "review", lastSync.Add(time.Hour), "Done", lastSync.Add(2*time.Hour), lastSync, mapper, lastSync.Add(3*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "review", c.LocalState)

	// remote unchanged since last sync -> no conflict even though states differ
	c2, err := Detect("1-1-setup", "story", "review", lastSync.Add(time.Hour), "Done", lastSync.Add(-time.Hour), lastSync, mapper, lastSync.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Nil(t, c2)

	// states equal after mapping -> no conflict
	c3, err := Detect("1-1-setup", "story", "done", lastSync.Add(time.Hour), "Done", lastSync.Add(2*time.Hour), lastSync, mapper, lastSync.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Nil(t, c3)
}

func TestResolveRecentWins(t *testing.T) {
	mapper := fakeMapper{m: map[string]string{"Done": "done"}}
	c := StateConflict{
		LocalState:    "review",
		LocalUpdated:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		RemoteState:   "Done",
		RemoteUpdated: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	state, strategy, err := ResolveRecentWins(c, mapper)
	require.NoError(t, err)
	assert.Equal(t, "done", state)
	assert.Equal(t, RecentWins, strategy.Kind)
}

func TestRuleEngine_PriorityOrderAndThreshold(t *testing.T) {
	rules := []Rule{
		{Name: "low-priority", Enabled: true, Priority: 1, Strategy: KeepLocal, Confidence: 0.9,
			Predicates: []Predicate{{Field: "local_state", Operator: OpEquals, Value: "review"}}},
		{Name: "high-priority", Enabled: true, Priority: 10, Strategy: KeepRemote, Confidence: 0.85,
			Predicates: []Predicate{{Field: "remote_state", Operator: OpEquals, Value: "Done"}}},
	}
	engine := NewEngine(rules)

	strategy, confidence, ok := engine.Evaluate(Features{LocalState: "review", RemoteState: "Done"}, 0.85)
	require.True(t, ok)
	assert.Equal(t, KeepRemote, strategy)
	assert.Equal(t, 0.85, confidence)
}

func TestParseRules_FromMappingDocument(t *testing.T) {
	doc := `
story_states:
  local_to_remote:
    done: Done
auto_resolution:
  confidence_threshold: 0.85
  rules:
    - name: remote-done-wins
      enabled: true
      priority: 10
      strategy: keep-remote
      confidence: 0.9
      predicates:
        - field: remote_state
          operator: equals
          value: Done
`
	rules, threshold, err := ParseRules([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, 0.85, threshold)
	require.Len(t, rules, 1)
	assert.Equal(t, "remote-done-wins", rules[0].Name)
	assert.Equal(t, KeepRemote, rules[0].Strategy)

	rules, threshold, err = ParseRules([]byte("story_states: {}\n"))
	require.NoError(t, err)
	assert.Empty(t, rules)
	assert.Zero(t, threshold)
}

func TestBuiltinPatterns(t *testing.T) {
	strategy, confidence, ok := EvaluatePatterns("review", "Done", 0.85)
	require.True(t, ok)
	assert.Equal(t, KeepRemote, strategy)
	assert.Equal(t, 0.85, confidence)

	_, _, ok = EvaluatePatterns("review", "Done", 0.9)
	assert.False(t, ok)
}

func TestPipeline_FallsThroughToPatternWhenRulesAndSuggesterMiss(t *testing.T) {
	engine := NewEngine(nil)
	p := &Pipeline{Rules: engine, Threshold: 0.8}

	outcome := p.Resolve(Features{LocalState: "review", RemoteState: "Done"})
	require.True(t, outcome.Resolved)
	assert.Equal(t, "pattern", outcome.Source)
	assert.Equal(t, KeepRemote, outcome.Strategy)
}

func TestPipeline_DefersToManualWhenNothingMatches(t *testing.T) {
	p := &Pipeline{Rules: NewEngine(nil), Threshold: 0.8}
	outcome := p.Resolve(Features{LocalState: "backlog", RemoteState: "In Progress"})
	assert.False(t, outcome.Resolved)
}

type fakeAncestorFinder struct {
	ancestor string
	ok       bool
}

func (f fakeAncestorFinder) FindAncestor(contentKey, a, b string) (string, bool) {
	return f.ancestor, f.ok
}

func TestThreeWayMerge_RemoteEqualsAncestorKeepsLocal(t *testing.T) {
	rec := ThreeWayMerge("1-1-setup", "review", "Todo", fakeAncestorFinder{ancestor: "Todo", ok: true})
	assert.Equal(t, KeepLocal, rec.Strategy)
	assert.Equal(t, 0.9, rec.Confidence)
}

func TestThreeWayMerge_LocalEqualsAncestorKeepsRemote(t *testing.T) {
	rec := ThreeWayMerge("1-1-setup", "ready-for-dev", "Done", fakeAncestorFinder{ancestor: "ready-for-dev", ok: true})
	assert.Equal(t, KeepRemote, rec.Strategy)
	assert.Equal(t, 0.9, rec.Confidence)
}

func TestThreeWayMerge_NoAncestorRecommendsRecentWins(t *testing.T) {
	rec := ThreeWayMerge("1-1-setup", "review", "Done", fakeAncestorFinder{ok: false})
	assert.Equal(t, RecentWins, rec.Strategy)
	assert.Equal(t, 0.5, rec.Confidence)
	assert.False(t, rec.HasAncestor)
}

func TestMetrics_Summarize(t *testing.T) {
	m := &Metrics{}
	m.Record(EffectivenessRecord{Auto: true, Confidence: 0.9, Strategy: KeepRemote, TimeSeconds: 0.1})
	m.Record(EffectivenessRecord{Auto: true, Confidence: 0.9, Strategy: KeepRemote, TimeSeconds: 0.1, Overridden: true})
	m.Record(EffectivenessRecord{Auto: false})

	summary := m.Summarize(60)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.AutoCount)
	assert.Equal(t, 1, summary.OverriddenCount)
	assert.InDelta(t, 0.5, summary.OverrideRate, 0.001)
	assert.InDelta(t, 60, summary.TimeSavedSeconds, 0.001)
}

func TestFrequencyTable_PredictsNearestMatch(t *testing.T) {
	ft := NewFrequencyTable()
	ft.Train([]ResolutionRecord{
		{Strategy: KeepRemote},
	}, func(r ResolutionRecord) Features {
		return Features{LocalState: "review", RemoteState: "Done", ContentKey: "1-1-setup"}
	})

	strategy, confidence, _, ok := ft.Predict(Features{LocalState: "review", RemoteState: "Done", ContentKey: "1-2-wire"})
	require.True(t, ok)
	assert.Equal(t, KeepRemote, strategy)
	assert.Greater(t, confidence, 0.5)
}
