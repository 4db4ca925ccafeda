package gapfill

import (
	"errors"
	"fmt"
)

// ErrConfiguration is matched by every error that prevents a run from starting.
var ErrConfiguration = errors.New("invalid gap-fill configuration")

// ConfigError describes a rejected run parameter.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid gap-fill configuration: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return ErrConfiguration
}

// Status is the terminal state of a run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusStopped   Status = "stopped"
)
