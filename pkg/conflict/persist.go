package conflict

type documentLoader interface {
	Load(name string, out interface{}) error
	Exists(name string) bool
}

type documentSaver interface {
	Save(name string, v interface{}) error
}

const (
	queueDoc      = "conflicts/pending"
	resolutionDoc = "resolution_history"
	metricsDoc    = "metrics/resolution_effectiveness"
)

// Queue is the persisted conflicts/pending.json document: an ordered
// append of unresolved conflicts.
type Queue struct {
	Conflicts []StateConflict `json:"conflicts"`
}

// LoadQueue reads the conflict queue, returning an empty Queue when
// none exists yet.
func LoadQueue(s documentLoader) (*Queue, error) {
	if !s.Exists(queueDoc) {
		return &Queue{}, nil
	}
	var q Queue
	if err := s.Load(queueDoc, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

// SaveQueue persists the conflict queue.
func SaveQueue(s documentSaver, q *Queue) error {
	return s.Save(queueDoc, q)
}

// Append adds a new unresolved conflict.
func (q *Queue) Append(c StateConflict) {
	q.Conflicts = append(q.Conflicts, c)
}

// Remove deletes the conflict with the given id, per spec §8 law 9
// ("the associated conflict is removed from the queue"); it reports
// whether an entry was found.
func (q *Queue) Remove(id string) bool {
	for i, c := range q.Conflicts {
		if c.ID == id {
			q.Conflicts = append(q.Conflicts[:i], q.Conflicts[i+1:]...)
			return true
		}
	}
	return false
}

// ResolutionHistory is the persisted resolution_history.json document.
type ResolutionHistory struct {
	Records []ResolutionRecord `json:"records"`
}

// LoadResolutionHistory reads the resolution history document.
func LoadResolutionHistory(s documentLoader) (*ResolutionHistory, error) {
	if !s.Exists(resolutionDoc) {
		return &ResolutionHistory{}, nil
	}
	var h ResolutionHistory
	if err := s.Load(resolutionDoc, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// SaveResolutionHistory persists the resolution history document.
func SaveResolutionHistory(s documentSaver, h *ResolutionHistory) error {
	return s.Save(resolutionDoc, h)
}

// Append records one resolution, satisfying spec §8 law 9: exactly one
// entry appended per resolution applied.
func (h *ResolutionHistory) Append(rec ResolutionRecord) {
	h.Records = append(h.Records, rec)
}

// LoadMetrics reads the resolution effectiveness metrics document.
func LoadMetrics(s documentLoader) (*Metrics, error) {
	if !s.Exists(metricsDoc) {
		return &Metrics{}, nil
	}
	var m Metrics
	if err := s.Load(metricsDoc, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// SaveMetrics persists the resolution effectiveness metrics document.
func SaveMetrics(s documentSaver, m *Metrics) error {
	return s.Save(metricsDoc, m)
}
