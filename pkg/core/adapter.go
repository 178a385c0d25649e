package core

// AdapterConfig holds what an adapter needs to open a connection pool.
// DSN is already decrypted when it reaches an adapter.
type AdapterConfig struct {
	Kind   string
	Name   string
	DSN    string
	Params map[string]any
}

// Param returns a string parameter or def when unset.
func (c AdapterConfig) Param(key, def string) string {
	if v, ok := c.Params[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return def
}
