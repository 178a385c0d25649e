package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/leapdata/pkg/core"
)

// Validate checks the settings that do not depend on registered adapters.
// Data source kinds are checked when the registry is built.
func (c *Config) Validate() error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return fmt.Errorf("invalid log_level %q\nHint: Use debug, info, warn or error", c.LogLevel)
	}

	switch c.Output {
	case "table", "yaml", "json":
	default:
		return fmt.Errorf("invalid output %q\nHint: Use table, yaml or json", c.Output)
	}

	return ValidateDataSources(c.DataSources)
}

// ValidateDataSources rejects unnamed entries, duplicate names and more than
// one default.
func ValidateDataSources(cfgs []core.DataSourceConfig) error {
	seen := make(map[string]string, len(cfgs))
	var defaults []string
	for i, ds := range cfgs {
		name := strings.TrimSpace(ds.Name)
		if name == "" {
			return &core.ConfigurationError{
				Reason: fmt.Sprintf("datasources[%d] has no name", i),
				Hint:   "Every entry in datasources needs a unique name",
			}
		}
		key := core.NormalizeName(name)
		if prev, ok := seen[key]; ok {
			return &core.ConfigurationError{
				Name:   name,
				Reason: fmt.Sprintf("defined more than once (also as %q)", prev),
			}
		}
		seen[key] = name
		if ds.Default {
			defaults = append(defaults, name)
		}
	}
	if len(defaults) > 1 {
		return &core.ConfigurationError{
			Reason: fmt.Sprintf("%d data sources are marked default: %s", len(defaults), strings.Join(defaults, ", ")),
			Hint:   "Set default: true on exactly one entry in datasources",
		}
	}
	return nil
}
