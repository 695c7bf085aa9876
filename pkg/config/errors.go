package config

import "fmt"

// ConfigError is a tagged error describing a config loading or validation
// failure. Type is a short machine-checkable category ("read_error",
// "parse_error", "validation_error"); Context carries the file path or
// field name involved, when known.
type ConfigError struct {
	Type    string
	Message string
	Err     error
	Context string
}

func (e *ConfigError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("config: %s (%s): %s", e.Type, e.Context, e.Message)
	}
	return fmt.Sprintf("config: %s: %s", e.Type, e.Message)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// IsReadError reports whether err is a ConfigError caused by a failure to
// read the configuration file.
func IsReadError(err error) bool {
	var ce *ConfigError
	return asConfigError(err, &ce) && ce.Type == "read_error"
}

// IsParseError reports whether err is a ConfigError caused by invalid YAML.
func IsParseError(err error) bool {
	var ce *ConfigError
	return asConfigError(err, &ce) && ce.Type == "parse_error"
}

// IsValidationError reports whether err is a ConfigError caused by one or
// more failed field validations.
func IsValidationError(err error) bool {
	var ce *ConfigError
	return asConfigError(err, &ce) && ce.Type == "validation_error"
}

func asConfigError(err error, target **ConfigError) bool {
	ce, ok := err.(*ConfigError)
	if !ok {
		return false
	}
	*target = ce
	return true
}
