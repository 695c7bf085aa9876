package conflict

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Features is the predicate input for custom rules and the learned
// suggester, per spec §4.6.
type Features struct {
	LocalState    string
	RemoteState   string
	LocalAgeHours float64
	DiffType      string
	ContentKey    string
}

// Operator is one of the custom rule engine's comparison operators.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpLessThan    Operator = "less_than"
	OpGreaterThan Operator = "greater_than"
	OpContains    Operator = "contains"
	OpRegex       Operator = "regex"
)

// Predicate is one condition in a rule: Field names a Features member
// ("local_state", "remote_state", "local_age_hours", "diff_type",
// "content_key"), Operator is the comparison, Value is the operand.
type Predicate struct {
	Field    string   `yaml:"field"`
	Operator Operator `yaml:"operator"`
	Value    string   `yaml:"value"`
}

// Rule is a YAML-defined custom resolution rule, sorted by Priority
// descending; the first enabled rule whose predicates all match and
// whose Confidence meets the caller's threshold wins.
type Rule struct {
	Name       string       `yaml:"name"`
	Enabled    bool         `yaml:"enabled"`
	Priority   int          `yaml:"priority"`
	Predicates []Predicate  `yaml:"predicates"`
	Strategy   StrategyKind `yaml:"strategy"`
	Confidence float64      `yaml:"confidence"`
}

func (p Predicate) matches(f Features) bool {
	actual, ok := fieldValue(f, p.Field)
	if !ok {
		return false
	}
	switch p.Operator {
	case OpEquals:
		return actual == p.Value
	case OpContains:
		return strings.Contains(actual, p.Value)
	case OpRegex:
		re, err := regexp.Compile(p.Value)
		if err != nil {
			return false
		}
		return re.MatchString(actual)
	case OpLessThan, OpGreaterThan:
		actualF, err1 := strconv.ParseFloat(actual, 64)
		wantF, err2 := strconv.ParseFloat(p.Value, 64)
		if err1 != nil || err2 != nil {
			return false
		}
		if p.Operator == OpLessThan {
			return actualF < wantF
		}
		return actualF > wantF
	default:
		return false
	}
}

func fieldValue(f Features, field string) (string, bool) {
	switch field {
	case "local_state":
		return f.LocalState, true
	case "remote_state":
		return f.RemoteState, true
	case "local_age_hours":
		return fmt.Sprintf("%g", f.LocalAgeHours), true
	case "diff_type":
		return f.DiffType, true
	case "content_key":
		return f.ContentKey, true
	default:
		return "", false
	}
}

func (r Rule) matches(f Features) bool {
	if !r.Enabled {
		return false
	}
	for _, p := range r.Predicates {
		if !p.matches(f) {
			return false
		}
	}
	return true
}

// rulesDocument is the auto_resolution section of the state mapping
// YAML (spec §6), the one place custom rules are declared.
type rulesDocument struct {
	AutoResolution struct {
		ConfidenceThreshold float64 `yaml:"confidence_threshold"`
		Rules               []Rule  `yaml:"rules"`
	} `yaml:"auto_resolution"`
}

// ParseRules extracts the auto_resolution rules and confidence
// threshold from a state mapping YAML document. A document without an
// auto_resolution section yields no rules and a zero threshold (the
// pipeline then falls back to its default).
func ParseRules(raw []byte) ([]Rule, float64, error) {
	var doc rulesDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, 0, err
	}
	return doc.AutoResolution.Rules, doc.AutoResolution.ConfidenceThreshold, nil
}

// Engine evaluates a set of custom rules sorted by priority descending.
type Engine struct {
	rules []Rule
}

// NewEngine builds an Engine from rules, sorting a copy by priority
// descending so evaluation order is deterministic regardless of the
// YAML declaration order.
func NewEngine(rules []Rule) *Engine {
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority > sorted[j].Priority })
	return &Engine{rules: sorted}
}

// Evaluate returns the first matching enabled rule whose confidence
// meets threshold, or ok=false if none do.
func (e *Engine) Evaluate(f Features, threshold float64) (StrategyKind, float64, bool) {
	for _, r := range e.rules {
		if r.matches(f) && r.Confidence >= threshold {
			return r.Strategy, r.Confidence, true
		}
	}
	return "", 0, false
}

// Pattern is one built-in fallback pattern, matched after the custom
// rule engine and learned suggester both miss.
type Pattern struct {
	Name       string
	Confidence float64
	Match      func(local, remote string) bool
}

// BuiltinPatterns implements the three fallback patterns from spec
// §4.6: whitespace_only, case_only, remote_done_vs_local_review.
var BuiltinPatterns = []Pattern{
	{
		Name:       "whitespace_only",
		Confidence: 0.95,
		Match: func(local, remote string) bool {
			return strings.TrimSpace(local) == strings.TrimSpace(remote) && local != remote
		},
	},
	{
		Name:       "case_only",
		Confidence: 0.90,
		Match: func(local, remote string) bool {
			return strings.EqualFold(local, remote) && local != remote
		},
	},
	{
		Name:       "remote_done_vs_local_review",
		Confidence: 0.85,
		Match: func(local, remote string) bool {
			return strings.EqualFold(local, "review") && strings.EqualFold(remote, "done")
		},
	},
}

// EvaluatePatterns returns the first matching built-in pattern's
// strategy (always KeepRemote per spec: these patterns describe the
// remote side having caught up or normalised) and confidence.
func EvaluatePatterns(local, remote string, threshold float64) (StrategyKind, float64, bool) {
	for _, p := range BuiltinPatterns {
		if p.Match(local, remote) && p.Confidence >= threshold {
			return KeepRemote, p.Confidence, true
		}
	}
	return "", 0, false
}
