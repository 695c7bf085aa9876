package scan

import (
	"fmt"
	"regexp"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

var (
	sprintStoryKeyRe  = regexp.MustCompile(`^\d+-\d+-[a-z0-9-]+$`)
	sprintEpicKeyRe   = regexp.MustCompile(`^epic-\d+$`)
	sprintRetroKeyRe  = regexp.MustCompile(`^epic-(\d+)-retrospective$`)
)

// SprintStatus holds the top-level development_status mapping from
// sprint-status.yaml, preserving declaration order so epic aggregation
// (sync engine) can reason about each epic's stories and retrospective
// together.
type SprintStatus struct {
	DevelopmentStatus map[string]string
	Order             []string
}

// StatusFor returns the status token for key and whether it was present.
func (s *SprintStatus) StatusFor(key string) (string, bool) {
	v, ok := s.DevelopmentStatus[key]
	return v, ok
}

// RetrospectiveFor returns the retrospective status token for epic n, if
// an "epic-<n>-retrospective" entry exists.
func (s *SprintStatus) RetrospectiveFor(epic int) (string, bool) {
	key := fmt.Sprintf("epic-%d-retrospective", epic)
	return s.StatusFor(key)
}

// StoryKeysForEpic returns, in document order, every development_status
// key that belongs to the given epic (its leading number matches).
func (s *SprintStatus) StoryKeysForEpic(epic int) []string {
	prefix := fmt.Sprintf("%d-", epic)
	var out []string
	for _, k := range s.Order {
		if !sprintStoryKeyRe.MatchString(k) {
			continue
		}
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			out = append(out, k)
		}
	}
	return out
}

// ParseSprintStatus reads and parses sprint-status.yaml at path,
// preserving the development_status key order via the yaml.Node API so
// the numbering/epic-aggregation rules can walk stories in file order.
func ParseSprintStatus(fs afero.Fs, path string) (*SprintStatus, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}
	return ParseSprintStatusBytes(data)
}

// ParseSprintStatusBytes parses sprint-status YAML from an in-memory
// byte slice.
func ParseSprintStatusBytes(data []byte) (*SprintStatus, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing sprint-status yaml: %w", err)
	}

	root := &doc
	if len(doc.Content) > 0 {
		root = doc.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("sprint-status: expected a mapping at the document root")
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		key, val := root.Content[i], root.Content[i+1]
		if key.Kind != yaml.ScalarNode || key.Value != "development_status" {
			continue
		}
		if val.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("sprint-status: development_status must be a mapping")
		}
		status := &SprintStatus{DevelopmentStatus: make(map[string]string)}
		for j := 0; j+1 < len(val.Content); j += 2 {
			k, v := val.Content[j], val.Content[j+1]
			if k.Kind != yaml.ScalarNode || v.Kind != yaml.ScalarNode {
				continue
			}
			status.DevelopmentStatus[k.Value] = v.Value
			status.Order = append(status.Order, k.Value)
		}
		return status, nil
	}
	return nil, fmt.Errorf("sprint-status: development_status key not found")
}
