package types

import "fmt"

// ConfigurationError indicates invalid desired state: a non-replicable
// service with more than one replica, duplicate service names, or a missing
// required setting. It is always raised before any backend mutation.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "invalid configuration: " + e.Reason
}

// NewConfigurationError builds a ConfigurationError from a format string.
func NewConfigurationError(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}
