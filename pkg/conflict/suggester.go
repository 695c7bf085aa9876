package conflict

import "strings"

// Suggester is the optional learned-resolution collaborator (spec §9):
// the engine calls it only if a non-nil implementation was injected.
type Suggester interface {
	Predict(f Features) (strategy StrategyKind, confidence float64, explanation string, ok bool)
}

// trainingExample is one historical resolution the FrequencyTable
// suggester learns from.
type trainingExample struct {
	features Features
	strategy StrategyKind
}

// FrequencyTable is a frequency-table baseline suggester grounded in the
// spec's feature list (states, timestamp delta side, case/whitespace
// equivalence, bag-of-words of states and content key): it is not a
// production ML library, since none appears anywhere in the retrieved
// pack, but it satisfies the same Suggester interface a real classifier
// would.
type FrequencyTable struct {
	examples []trainingExample
}

// NewFrequencyTable builds an empty suggester; Train populates it from
// ResolutionHistory.
func NewFrequencyTable() *FrequencyTable {
	return &FrequencyTable{}
}

// Train replays resolution history records paired with the Features
// that produced them, building the nearest-match training set.
func (ft *FrequencyTable) Train(records []ResolutionRecord, featuresOf func(ResolutionRecord) Features) {
	for _, rec := range records {
		ft.examples = append(ft.examples, trainingExample{features: featuresOf(rec), strategy: rec.Strategy})
	}
}

// Predict finds the closest training example by bag-of-words overlap
// across local_state, remote_state, and content_key, and returns its
// strategy with a confidence scaled by match quality.
func (ft *FrequencyTable) Predict(f Features) (StrategyKind, float64, string, bool) {
	if len(ft.examples) == 0 {
		return "", 0, "", false
	}

	bestScore := -1.0
	var best trainingExample
	for _, ex := range ft.examples {
		score := similarity(f, ex.features)
		if score > bestScore {
			bestScore = score
			best = ex
		}
	}
	if bestScore <= 0 {
		return "", 0, "", false
	}
	confidence := 0.5 + 0.5*bestScore
	if confidence > 0.99 {
		confidence = 0.99
	}
	explanation := "nearest historical resolution with matching states/content key"
	return best.strategy, confidence, explanation, true
}

func similarity(a, b Features) float64 {
	score := 0.0
	total := 0.0

	total++
	if strings.EqualFold(a.LocalState, b.LocalState) {
		score++
	}
	total++
	if strings.EqualFold(a.RemoteState, b.RemoteState) {
		score++
	}
	total++
	if bagOfWordsOverlap(a.ContentKey, b.ContentKey) {
		score++
	}
	return score / total
}

func bagOfWordsOverlap(a, b string) bool {
	wa := strings.FieldsFunc(strings.ToLower(a), func(r rune) bool { return r == '-' || r == '_' || r == ' ' })
	wb := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToLower(b), func(r rune) bool { return r == '-' || r == '_' || r == ' ' }) {
		wb[w] = true
	}
	for _, w := range wa {
		if wb[w] {
			return true
		}
	}
	return false
}
