// Package mapping implements the bidirectional state vocabulary
// translation between BMAD local states and tracker remote states, per
// spec §4.3: base + overlay YAML configuration, context-aware
// disambiguation, and a transition validator.
package mapping

import (
	"os"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// ContentType distinguishes the state vocabulary a mapping rule applies
// to.
type ContentType string

const (
	Story ContentType = "story"
	Epic  ContentType = "epic"
)

// contentTypeConfig is one content type's mapping rules, matching the
// YAML shape in spec §6.
type contentTypeConfig struct {
	LocalToRemote map[string]string `yaml:"local_to_remote"`
	RemoteToLocal map[string]string `yaml:"remote_to_local"`
}

// contextRule is one "for content_type=X, if context flag F is set, map
// S->T; else S->U" rule (spec §4.3, §9 Open Questions: the one
// enumerated context flag is "context_file_exists", used to disambiguate
// remote "Todo" into drafted vs ready-for-dev).
type contextRule struct {
	ContentType string `yaml:"content_type"`
	Flag        string `yaml:"flag"`
	State       string `yaml:"state"`
	IfSet       string `yaml:"if_set"`
	IfUnset     string `yaml:"if_unset"`
}

// document is the full YAML document shape: story_states, epic_states,
// valid_transitions, context_aware_mapping, validation, history,
// auto_resolution.
type document struct {
	StoryStates         contentTypeConfig    `yaml:"story_states"`
	EpicStates          contentTypeConfig    `yaml:"epic_states"`
	ValidTransitions    map[string][]string  `yaml:"valid_transitions"`
	ContextAwareMapping []contextRule        `yaml:"context_aware_mapping"`
	Validation          struct {
		StrictMode bool `yaml:"strict_mode"`
	} `yaml:"validation"`
	History struct {
		RetentionDays int `yaml:"retention_days"`
	} `yaml:"history"`
}

// MappingError signals an unknown state encountered in strict mode.
type MappingError struct {
	Message string
	State   string
}

func (e *MappingError) Error() string {
	return "mapping: " + e.Message + ": " + e.State
}

// Mapper translates states between local and remote vocabularies and
// validates transitions.
type Mapper struct {
	doc           document
	backoffLocal  string
	backoffRemote string
}

// DefaultRetentionDays is used when history.retention_days is unset.
const DefaultRetentionDays = 90

// Load reads the base mapping YAML at basePath and, if overlayPath is
// non-empty and exists, deep-merges the overlay on top using
// mergo.WithOverride so overlay keys replace base keys at the same path.
func Load(basePath, overlayPath string) (*Mapper, error) {
	var doc document
	baseBytes, err := os.ReadFile(basePath)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(baseBytes, &doc); err != nil {
		return nil, err
	}

	if overlayPath != "" {
		if overlayBytes, err := os.ReadFile(overlayPath); err == nil {
			var overlay document
			if err := yaml.Unmarshal(overlayBytes, &overlay); err != nil {
				return nil, err
			}
			if err := mergo.Merge(&doc, overlay, mergo.WithOverride); err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	if doc.History.RetentionDays == 0 {
		doc.History.RetentionDays = DefaultRetentionDays
	}

	return &Mapper{doc: doc, backoffLocal: "backlog", backoffRemote: "Backlog"}, nil
}

// NewFromBytes builds a Mapper directly from YAML bytes (base only), for
// tests and callers that already have the document in memory.
func NewFromBytes(base []byte) (*Mapper, error) {
	var doc document
	if err := yaml.Unmarshal(base, &doc); err != nil {
		return nil, err
	}
	if doc.History.RetentionDays == 0 {
		doc.History.RetentionDays = DefaultRetentionDays
	}
	return &Mapper{doc: doc, backoffLocal: "backlog", backoffRemote: "Backlog"}, nil
}

func (m *Mapper) configFor(ct ContentType) contentTypeConfig {
	if ct == Epic {
		return m.doc.EpicStates
	}
	return m.doc.StoryStates
}

// RetentionDays returns the configured state-history retention window.
func (m *Mapper) RetentionDays() int { return m.doc.History.RetentionDays }

// StrictMode reports whether unknown states should raise instead of
// backing off to a safe default.
func (m *Mapper) StrictMode() bool { return m.doc.Validation.StrictMode }

// LocalToRemote translates a local state to its remote equivalent.
func (m *Mapper) LocalToRemote(state string, ct ContentType) (string, error) {
	cfg := m.configFor(ct)
	if v, ok := cfg.LocalToRemote[state]; ok {
		return v, nil
	}
	if m.StrictMode() {
		return "", &MappingError{Message: "unknown local state", State: state}
	}
	return m.backoffRemote, nil
}

// RemoteToLocal translates a remote state to its local equivalent,
// applying context-aware disambiguation rules matching ct when context
// flags are supplied.
func (m *Mapper) RemoteToLocal(state string, ct ContentType, context map[string]bool) (string, error) {
	for _, rule := range m.doc.ContextAwareMapping {
		if ContentType(rule.ContentType) != ct || rule.State != state {
			continue
		}
		if context != nil && context[rule.Flag] {
			if rule.IfSet != "" {
				return rule.IfSet, nil
			}
		} else if rule.IfUnset != "" {
			return rule.IfUnset, nil
		}
	}

	cfg := m.configFor(ct)
	if v, ok := cfg.RemoteToLocal[state]; ok {
		return v, nil
	}
	if m.StrictMode() {
		return "", &MappingError{Message: "unknown remote state", State: state}
	}
	return m.backoffLocal, nil
}

// ValidateTransition reports whether moving from "from" to "to" is
// permitted by the configured transition graph.
func (m *Mapper) ValidateTransition(from, to string) (bool, string) {
	allowed, ok := m.doc.ValidTransitions[from]
	if !ok {
		return false, "no transitions defined from state " + from
	}
	for _, a := range allowed {
		if a == to {
			return true, ""
		}
	}
	return false, "transition " + from + " -> " + to + " is not permitted"
}
