package core

import (
	"os"
	"regexp"
	"strings"

	"github.com/leapstack-labs/leapdata/pkg/secret"
)

// DefaultDataSourceName is the sentinel reported when no name was given and
// no default data source is configured.
const DefaultDataSourceName = "(default)"

// DataSourceConfig is one data source entry as it appears in configuration.
type DataSourceConfig struct {
	Name string `koanf:"name"`
	Kind string `koanf:"kind"` // postgres, mysql, sqlite, duckdb

	// ConnectionString and Credentials are ciphertext when a decryption
	// provider is configured, plaintext otherwise.
	ConnectionString string `koanf:"connection_string"`
	Credentials      string `koanf:"credentials"` // user:password or DOMAIN\user:password

	Default bool `koanf:"default"`

	// Params holds adapter-specific options.
	Params map[string]any `koanf:"params"`
}

// NamedDataSource is an immutable, resolved data source descriptor.
type NamedDataSource struct {
	Name             string
	Kind             string
	ConnectionString *secret.Secret
	Credentials      *secret.Secret
	IsDefault        bool
	Params           map[string]any
}

// HasCredentials reports whether the data source carries delegated credentials.
func (ds *NamedDataSource) HasCredentials() bool {
	return ds.Credentials != nil && !ds.Credentials.IsZero()
}

// NamedDataSource converts the config entry. When encrypted is true the
// connection string and credentials are wrapped as still-encrypted secrets.
// ${VAR} references are expanded before wrapping.
func (c DataSourceConfig) NamedDataSource(encrypted bool) *NamedDataSource {
	wrap := secret.Plain
	if encrypted {
		wrap = secret.New
	}
	ds := &NamedDataSource{
		Name:             strings.TrimSpace(c.Name),
		Kind:             strings.ToLower(strings.TrimSpace(c.Kind)),
		ConnectionString: wrap(ExpandEnvVars(c.ConnectionString)),
		IsDefault:        c.Default,
		Params:           c.Params,
	}
	if c.Credentials != "" {
		ds.Credentials = wrap(ExpandEnvVars(c.Credentials))
	}
	return ds
}

// NormalizeName returns the lookup key for a data source name.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ExpandEnvVars replaces ${VAR} references with environment values.
// Unset variables are left as-is.
func ExpandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
}
