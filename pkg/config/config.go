// Package config loads the per-project sync configuration: BMAD root
// paths, tracker team/project identity, numbering defaults, and sync
// behaviour flags, with environment variable overrides layered on top
// of the YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the fully resolved per-project configuration.
type Config struct {
	Project   ProjectConfig   `yaml:"project"`
	Linear    TrackerConfig   `yaml:"linear"`
	Numbering NumberingConfig `yaml:"numbering"`
	Sync      SyncConfig      `yaml:"sync"`
}

// ProjectConfig describes where the BMAD content for this project lives.
type ProjectConfig struct {
	Name       string `yaml:"name"`
	BMADRoot   string `yaml:"bmad_root"`
	DocsBMAD   string `yaml:"docs_bmad"`
	StoriesDir string `yaml:"stories_dir"`
}

// TrackerConfig identifies the remote tracker team/project this
// project's content syncs to.
type TrackerConfig struct {
	TeamPrefix  string `yaml:"team_prefix"`
	TeamName    string `yaml:"team_name"`
	ProjectName string `yaml:"project_name"`
}

// NumberingConfig configures the epic ID block reservation scheme.
type NumberingConfig struct {
	EpicBase      int `yaml:"epic_base"`
	EpicBlockSize int `yaml:"epic_block_size"`
	StoryOffset   int `yaml:"story_offset"`
}

// SyncConfig toggles sync behaviour.
type SyncConfig struct {
	AutoSync               bool `yaml:"auto_sync"`
	PreserveLinearComments bool `yaml:"preserve_linear_comments"`
}

// EnvLoader abstracts environment variable access so tests can inject a
// fixed environment without mutating the process's real one.
type EnvLoader interface {
	Getenv(key string) string
	LookupEnv(key string) (string, bool)
}

// OSEnvLoader implements EnvLoader against the process environment.
type OSEnvLoader struct{}

func (OSEnvLoader) Getenv(key string) string { return os.Getenv(key) }

func (OSEnvLoader) LookupEnv(key string) (string, bool) { return os.LookupEnv(key) }

// Provider loads and validates a project configuration from a path.
type Provider interface {
	Load(path string) (*Config, error)
	Validate(cfg *Config) error
}

// Loader implements Provider by reading a YAML file and layering env
// overrides and `{root}`/`{docs}` placeholder resolution on top.
type Loader struct {
	env EnvLoader
}

// NewLoader creates a loader against the real process environment.
func NewLoader() *Loader {
	return &Loader{env: OSEnvLoader{}}
}

// NewLoaderWithEnv creates a loader with an injected environment, for tests.
func NewLoaderWithEnv(env EnvLoader) *Loader {
	return &Loader{env: env}
}

// Load reads, env-overrides, placeholder-resolves, and validates the
// configuration at path.
func (l *Loader) Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Type: "read_error", Message: fmt.Sprintf("failed to read config %s", path), Err: err}
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &ConfigError{Type: "parse_error", Message: fmt.Sprintf("failed to parse config %s", path), Err: err}
	}

	l.applyEnvOverrides(&cfg)
	l.resolvePlaceholders(&cfg)

	if err := l.Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnvOverrides implements the BMAD_PROJECT_ROOT|BMAD_ROOT,
// BMAD_DOCS_BMAD, BMAD_STORIES_DIR overrides from spec §6, and fills
// team_name/project_name from LINEAR_TEAM/LINEAR_PROJECT only when the
// file leaves them empty.
func (l *Loader) applyEnvOverrides(cfg *Config) {
	if v := l.firstNonEmpty("BMAD_PROJECT_ROOT", "BMAD_ROOT"); v != "" {
		cfg.Project.BMADRoot = v
	}
	if v := l.env.Getenv("BMAD_DOCS_BMAD"); v != "" {
		cfg.Project.DocsBMAD = v
	}
	if v := l.env.Getenv("BMAD_STORIES_DIR"); v != "" {
		cfg.Project.StoriesDir = v
	}
	if v := l.env.Getenv("LINEAR_TEAM"); v != "" && cfg.Linear.TeamName == "" {
		cfg.Linear.TeamName = v
	}
	if v := l.env.Getenv("LINEAR_PROJECT"); v != "" && cfg.Linear.ProjectName == "" {
		cfg.Linear.ProjectName = v
	}
}

func (l *Loader) firstNonEmpty(keys ...string) string {
	for _, k := range keys {
		if v, ok := l.env.LookupEnv(k); ok && v != "" {
			return v
		}
	}
	return ""
}

// resolvePlaceholders substitutes `{root}` with Project.BMADRoot and
// `{docs}` with Project.DocsBMAD across path-shaped fields.
func (l *Loader) resolvePlaceholders(cfg *Config) {
	replacer := strings.NewReplacer(
		"{root}", cfg.Project.BMADRoot,
		"{docs}", cfg.Project.DocsBMAD,
	)
	cfg.Project.DocsBMAD = replacer.Replace(cfg.Project.DocsBMAD)
	cfg.Project.StoriesDir = replacer.Replace(cfg.Project.StoriesDir)

	// Re-run once more in case DocsBMAD itself referenced {root} and
	// StoriesDir references {docs}.
	replacer2 := strings.NewReplacer("{root}", cfg.Project.BMADRoot, "{docs}", cfg.Project.DocsBMAD)
	cfg.Project.StoriesDir = replacer2.Replace(cfg.Project.StoriesDir)
}

// Validate checks required fields and numeric bounds per spec §6.
func (l *Loader) Validate(cfg *Config) error {
	var errs []string

	if cfg.Project.Name == "" {
		errs = append(errs, "project.name is required")
	}
	if cfg.Project.BMADRoot == "" {
		errs = append(errs, "project.bmad_root is required")
	} else if _, err := os.Stat(cfg.Project.BMADRoot); err != nil {
		errs = append(errs, fmt.Sprintf("project.bmad_root %q is not accessible: %v", cfg.Project.BMADRoot, err))
	}
	if cfg.Project.DocsBMAD == "" {
		errs = append(errs, "project.docs_bmad is required")
	}
	if cfg.Project.StoriesDir == "" {
		errs = append(errs, "project.stories_dir is required")
	}

	if cfg.Linear.TeamPrefix == "" {
		errs = append(errs, "linear.team_prefix is required")
	}

	if cfg.Numbering.EpicBase < 1 {
		errs = append(errs, "numbering.epic_base must be >= 1")
	}
	if cfg.Numbering.EpicBlockSize < 1 {
		errs = append(errs, "numbering.epic_block_size must be >= 1")
	}
	if cfg.Numbering.StoryOffset < 0 {
		errs = append(errs, "numbering.story_offset must be >= 0")
	}

	if len(errs) > 0 {
		return &ConfigError{Type: "validation_error", Message: strings.Join(errs, "; ")}
	}
	return nil
}

// ResolvedStoriesDir returns the absolute stories directory, joining
// against BMADRoot if StoriesDir was left relative.
func (cfg *Config) ResolvedStoriesDir() string {
	if filepath.IsAbs(cfg.Project.StoriesDir) {
		return cfg.Project.StoriesDir
	}
	return filepath.Join(cfg.Project.BMADRoot, cfg.Project.StoriesDir)
}
