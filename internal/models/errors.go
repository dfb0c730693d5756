package models

import (
	"fmt"
	"strings"
)

// UnknownModelError reports a model name that is not in the registry.
type UnknownModelError struct {
	Name  string
	Known []string
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("unknown model %q (known: %s)", e.Name, strings.Join(e.Known, ", "))
}

// ConfigurationError reports an invalid numeric or structural parameter.
// It is raised before any device work starts.
type ConfigurationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s=%v %s", e.Field, e.Value, e.Reason)
}
