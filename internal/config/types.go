// Package config loads the leapdata configuration file.
//
// Configuration is read once at startup. It provides the named data source
// descriptors, the decryption provider and the ambient settings of the CLI.
// It never participates in command execution.
package config

import (
	"github.com/leapstack-labs/leapdata/pkg/core"
)

// Config holds all configuration options.
type Config struct {
	LogLevel    string                  `koanf:"log_level"`
	Verbose     bool                    `koanf:"verbose"`
	Output      string                  `koanf:"output"` // table, yaml or json
	Journal     string                  `koanf:"journal"`
	NoJournal   bool                    `koanf:"no_journal"`
	Decryption  DecryptionConfig        `koanf:"decryption"`
	DataSources []core.DataSourceConfig `koanf:"datasources"`

	// File is the config file that was loaded, empty if none.
	File string `koanf:"-"`

	// ProjectRoot anchors relative paths such as Journal.
	ProjectRoot string `koanf:"-"`
}

// DecryptionConfig selects the decryption provider for connection strings
// and credentials.
type DecryptionConfig struct {
	Provider string         `koanf:"provider"` // none, xchacha20poly1305
	Options  map[string]any `koanf:"options"`

	// FailClosed makes a failed decrypt an error instead of continuing with
	// the encrypted value.
	FailClosed bool `koanf:"fail_closed"`
}

// Encrypted reports whether data source secrets are stored encrypted.
func (d DecryptionConfig) Encrypted() bool {
	return d.Provider != "" && d.Provider != "none"
}
