package bpe_prep

import (
	"errors"
	"fmt"
)

var (
	ErrConfigInvalid        = errors.New("configuration not valid")
	ErrStageFailed          = errors.New("stage failed")
	ErrDuplicateStage       = errors.New("duplicate stage name")
	ErrMalformedArtifact    = errors.New("malformed artifact")
	ErrOutOfRange           = errors.New("window out of range")
	ErrStreamTooShort       = errors.New("token stream shorter than model input")
	ErrMissingControlSymbol = errors.New("control symbol missing from token map")
)

// ConfigError reports a configuration problem detected before any stage
// runs.
type ConfigError struct {
	Pipeline string
	Key      string
	Message  string
}

func (e *ConfigError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s::ConfigurationNotValid: %s", e.Pipeline,
			e.Message)
	}
	return fmt.Sprintf("%s::ConfigurationNotValid: %s: %s", e.Pipeline,
		e.Key, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return ErrConfigInvalid
}

// StageError wraps the failure of a named pipeline stage.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() []error {
	return []error{ErrStageFailed, e.Err}
}

func malformed(path string, line int, format string, args ...any) error {
	return fmt.Errorf("%w: %s:%d: %s", ErrMalformedArtifact, path, line,
		fmt.Sprintf(format, args...))
}
