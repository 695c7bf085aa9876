package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// DotEnvLoader wraps Loader with .env file support: any matching env files
// are loaded into the process environment (overriding pre-existing values)
// before the project YAML is read and env-overridden.
type DotEnvLoader struct {
	*Loader
	envFiles []string
}

// NewDotEnvLoader creates a loader that reads the given .env files (default
// ".env" in the current directory) before loading the project config.
func NewDotEnvLoader(envFiles ...string) *DotEnvLoader {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	return &DotEnvLoader{Loader: NewLoader(), envFiles: envFiles}
}

// NewDotEnvLoaderWithEnv creates a DotEnvLoader with an injected EnvLoader,
// for tests.
func NewDotEnvLoaderWithEnv(env EnvLoader, envFiles ...string) *DotEnvLoader {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	return &DotEnvLoader{Loader: NewLoaderWithEnv(env), envFiles: envFiles}
}

// Load layers any existing .env files onto the process environment, then
// loads and validates the project config at path.
func (d *DotEnvLoader) Load(path string) (*Config, error) {
	existing := make([]string, 0, len(d.envFiles))
	for _, f := range d.envFiles {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}

	if len(existing) > 0 {
		if err := godotenv.Overload(existing...); err != nil {
			return nil, &ConfigError{
				Type:    "env_file_error",
				Message: "failed to load .env file",
				Err:     err,
				Context: strings.Join(existing, ", "),
			}
		}
	}

	return d.Loader.Load(path)
}
