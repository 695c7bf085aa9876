// Package hierarchy persists the mapping from content keys to tracker
// ids and the parent-epic/child-stories relationships between them
// (spec §3 HierarchyMap).
package hierarchy

import (
	"fmt"
	"regexp"
)

var storyKeyLeadingNumberRe = regexp.MustCompile(`^(\d+)-\d+-`)

// Map is the persisted hierarchy.json document.
type Map struct {
	Epics    map[string]string   `json:"epics"`    // epic key -> tracker id
	Stories  map[string]string   `json:"stories"`  // story key -> tracker id
	Parents  map[string]string   `json:"parents"`  // story key -> parent epic key
	Children map[string][]string `json:"children"` // epic key -> child story keys
}

// New builds an empty hierarchy map.
func New() *Map {
	return &Map{
		Epics:    make(map[string]string),
		Stories:  make(map[string]string),
		Parents:  make(map[string]string),
		Children: make(map[string][]string),
	}
}

type documentLoader interface {
	Load(name string, out interface{}) error
	Exists(name string) bool
}

type documentSaver interface {
	Save(name string, v interface{}) error
}

const doc = "hierarchy"

// Load reads the hierarchy document, returning an empty Map when none
// exists yet.
func Load(s documentLoader) (*Map, error) {
	if !s.Exists(doc) {
		return New(), nil
	}
	var m Map
	if err := s.Load(doc, &m); err != nil {
		return nil, err
	}
	if m.Epics == nil {
		m.Epics = make(map[string]string)
	}
	if m.Stories == nil {
		m.Stories = make(map[string]string)
	}
	if m.Parents == nil {
		m.Parents = make(map[string]string)
	}
	if m.Children == nil {
		m.Children = make(map[string][]string)
	}
	return &m, nil
}

// Save persists the hierarchy document.
func Save(s documentSaver, m *Map) error {
	return s.Save(doc, m)
}

// SetEpic records an epic's tracker id.
func (m *Map) SetEpic(epicKey, trackerID string) {
	m.Epics[epicKey] = trackerID
}

// SetStory records a story's tracker id and links it to its parent epic,
// deriving the parent from the story key's leading number when
// explicitParent is empty, and keeping the epic's child list free of
// duplicates (spec §3 invariant: the child list contains the story
// exactly once).
func (m *Map) SetStory(storyKey, trackerID, explicitParent string) {
	m.Stories[storyKey] = trackerID

	parent := explicitParent
	if parent == "" {
		if match := storyKeyLeadingNumberRe.FindStringSubmatch(storyKey); match != nil {
			parent = fmt.Sprintf("epic-%s", match[1])
		}
	}
	if parent == "" {
		return
	}
	m.Parents[storyKey] = parent

	for _, child := range m.Children[parent] {
		if child == storyKey {
			return
		}
	}
	m.Children[parent] = append(m.Children[parent], storyKey)
}

// Validate checks the invariant that every story with a parent has that
// parent present in Epics and listed in Children exactly once.
func (m *Map) Validate() error {
	for storyKey, parent := range m.Parents {
		if _, ok := m.Epics[parent]; !ok {
			return fmt.Errorf("hierarchy: story %s references missing parent epic %s", storyKey, parent)
		}
		count := 0
		for _, child := range m.Children[parent] {
			if child == storyKey {
				count++
			}
		}
		if count != 1 {
			return fmt.Errorf("hierarchy: epic %s child list contains %s %d times, want 1", parent, storyKey, count)
		}
	}
	return nil
}
