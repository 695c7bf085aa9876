// Package portfolio runs the sync pipeline across many BMAD projects
// concurrently: a bounded worker pool, per-project progress counters and
// Prometheus metrics, cooperative cancellation, and optional cron
// scheduling of recurring runs (spec §4.8, §5).
package portfolio

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Meta identifies the portfolio document itself.
type Meta struct {
	Name    string    `yaml:"name"`
	Version string    `yaml:"version"`
	Created time.Time `yaml:"created,omitempty"`
}

// ProjectSettings is one project's portfolio entry: where its BMAD
// content and config live, whether it participates in portfolio runs,
// and its own schedule override.
type ProjectSettings struct {
	Path       string    `yaml:"path"`
	Name       string    `yaml:"name,omitempty"`
	Config     string    `yaml:"config,omitempty"`
	Registered time.Time `yaml:"registered,omitempty"`
	Enabled    *bool     `yaml:"enabled,omitempty"`
	Schedule   string    `yaml:"schedule,omitempty"`
}

// IsEnabled treats an absent enabled flag as enabled, so a hand-written
// minimal entry participates without ceremony.
func (p ProjectSettings) IsEnabled() bool { return p.Enabled == nil || *p.Enabled }

// Discovery configures the optional filesystem scan that finds
// unregistered projects under the configured search paths.
type Discovery struct {
	Enabled     bool     `yaml:"enabled"`
	SearchPaths []string `yaml:"search_paths"`
	Patterns    []string `yaml:"patterns"`
	ExcludeDirs []string `yaml:"exclude_dirs"`
}

// Config is the portfolio.yaml document: portfolio metadata, defaults
// merged into each project's settings, the project registry itself,
// discovery settings, and persisted per-project schedules.
type Config struct {
	Portfolio  Meta                       `yaml:"portfolio"`
	MaxWorkers int                        `yaml:"max_workers"`
	Defaults   ProjectSettings            `yaml:"defaults"`
	Projects   map[string]ProjectSettings `yaml:"projects"`
	Discovery  Discovery                  `yaml:"discovery"`
	Schedules  map[string]string          `yaml:"schedules,omitempty"`
}

// DefaultMaxWorkers matches spec §4.8/§5.
const DefaultMaxWorkers = 4

// defaultDiscoveryPattern is the per-project config filename Discover
// looks for when discovery.patterns is empty.
const defaultDiscoveryPattern = "bmad-sync.yaml"

// LoadConfig reads a portfolio.yaml file and deep-merges Defaults into
// every project entry that doesn't already set a field, using a plain
// mergo.Merge (no WithOverride) so only empty project fields are filled
// and a project-specific value always wins.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = DefaultMaxWorkers
	}
	for key, settings := range cfg.Projects {
		merged := settings
		if err := mergo.Merge(&merged, cfg.Defaults); err != nil {
			return nil, err
		}
		cfg.Projects[key] = merged
	}
	return &cfg, nil
}

// SaveConfig writes cfg back to path.
func SaveConfig(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks the portfolio invariant from spec §3: every
// registered project's path exists on disk.
func (c *Config) Validate() error {
	keys := make([]string, 0, len(c.Projects))
	for k := range c.Projects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		p := c.Projects[key]
		if p.Path == "" {
			return fmt.Errorf("portfolio: project %q has no path", key)
		}
		info, err := os.Stat(p.Path)
		if err != nil {
			return fmt.Errorf("portfolio: project %q path %s is not accessible: %w", key, p.Path, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("portfolio: project %q path %s is not a directory", key, p.Path)
		}
	}
	return nil
}

// EnabledProjects returns the subset of projects that participate in
// portfolio runs.
func (c *Config) EnabledProjects() map[string]ProjectSettings {
	out := make(map[string]ProjectSettings, len(c.Projects))
	for key, p := range c.Projects {
		if p.IsEnabled() {
			out[key] = p
		}
	}
	return out
}

// Register adds a project under key, rejecting duplicates (spec §3:
// portfolio keys are unique).
func (c *Config) Register(key, path, name string, now time.Time) error {
	if _, exists := c.Projects[key]; exists {
		return fmt.Errorf("portfolio: project %q is already registered", key)
	}
	if c.Projects == nil {
		c.Projects = make(map[string]ProjectSettings)
	}
	c.Projects[key] = ProjectSettings{Path: path, Name: name, Registered: now}
	return nil
}

// Discover walks Discovery.SearchPaths for directories containing a
// file matching one of Discovery.Patterns, skipping ExcludeDirs, and
// returns candidate key -> path for every hit not already registered.
// The candidate key is the containing directory's base name.
func (c *Config) Discover() (map[string]string, error) {
	if !c.Discovery.Enabled {
		return nil, nil
	}
	patterns := c.Discovery.Patterns
	if len(patterns) == 0 {
		patterns = []string{defaultDiscoveryPattern}
	}

	registered := make(map[string]bool, len(c.Projects))
	for _, p := range c.Projects {
		registered[filepath.Clean(p.Path)] = true
	}

	found := make(map[string]string)
	for _, root := range c.Discovery.SearchPaths {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				for _, ex := range c.Discovery.ExcludeDirs {
					if d.Name() == ex {
						return filepath.SkipDir
					}
				}
				return nil
			}
			for _, pat := range patterns {
				if ok, _ := filepath.Match(pat, d.Name()); ok {
					dir := filepath.Dir(path)
					if !registered[filepath.Clean(dir)] {
						found[filepath.Base(dir)] = dir
					}
					return nil
				}
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("portfolio: discovery walk of %s failed: %w", root, err)
		}
	}
	return found, nil
}
