package duckdb

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// Params holds DuckDB-specific configuration.
// Parsed from adapter.Config.Params using mapstructure.
type Params struct {
	// Extensions to install and load on every connection (e.g. "json", "httpfs").
	Extensions []string `mapstructure:"extensions"`

	// Settings applied at session level (e.g. memory_limit, threads).
	Settings map[string]string `mapstructure:"settings"`
}

func parseParams(raw map[string]any) (*Params, error) {
	p := &Params{}
	if len(raw) == 0 {
		return p, nil
	}
	if err := mapstructure.WeakDecode(raw, p); err != nil {
		return nil, fmt.Errorf("invalid duckdb params: %w", err)
	}
	return p, nil
}

// bootStatements returns the statements run on each new connection.
// Settings are emitted in key order so connections are configured identically.
func (p *Params) bootStatements() []string {
	var stmts []string
	for _, ext := range p.Extensions {
		ext = strings.TrimSpace(ext)
		if ext == "" {
			continue
		}
		stmts = append(stmts, "INSTALL "+ext, "LOAD "+ext)
	}

	keys := make([]string, 0, len(p.Settings))
	for k := range p.Settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		stmts = append(stmts, fmt.Sprintf("SET %s = '%s'", k, strings.ReplaceAll(p.Settings[k], "'", "''")))
	}
	return stmts
}
