package core

import (
	"fmt"
	"strings"
)

// ConfigurationError reports a missing, ambiguous or invalid data source
// definition.
type ConfigurationError struct {
	Name   string
	Reason string
	Hint   string
}

func (e *ConfigurationError) Error() string {
	var b strings.Builder
	if e.Name != "" {
		fmt.Fprintf(&b, "data source %q: %s", e.Name, e.Reason)
	} else {
		fmt.Fprintf(&b, "data source configuration: %s", e.Reason)
	}
	if e.Hint != "" {
		b.WriteString("\nHint: ")
		b.WriteString(e.Hint)
	}
	return b.String()
}

// NotConfiguredError is returned when a data source name cannot be resolved.
// Name is DefaultDataSourceName when the default was requested and none exists.
type NotConfiguredError struct {
	Name      string
	Available []string
}

func (e *NotConfiguredError) Error() string {
	if e.Name == DefaultDataSourceName {
		return fmt.Sprintf("no default data source configured\nAvailable data sources: %v\nHint: Set default: true on one entry in datasources", e.Available)
	}
	return fmt.Sprintf("data source %q is not configured\nAvailable data sources: %v", e.Name, e.Available)
}
