package adapter

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Factory creates an adapter. A nil logger means a discard logger.
type Factory func(*slog.Logger) Adapter

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register adds an adapter factory to the registry.
// Called by adapter implementations in their init() functions.
func Register(kind string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(kind)] = factory
}

// Get retrieves an adapter factory by kind.
func Get(kind string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[strings.ToLower(kind)]
	return f, ok
}

// New creates an adapter for kind.
func New(kind string, logger *slog.Logger) (Adapter, error) {
	if kind == "" {
		return nil, fmt.Errorf("data source kind not specified")
	}

	factory, ok := Get(kind)
	if !ok {
		return nil, &UnknownAdapterError{
			Kind:      kind,
			Available: ListAdapters(),
		}
	}
	return factory(logger), nil
}

// ListAdapters returns all registered kinds (sorted).
func ListAdapters() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered checks if a kind is registered.
func IsRegistered(kind string) bool {
	_, ok := Get(kind)
	return ok
}

// UnknownAdapterError is returned when an unknown kind is requested.
type UnknownAdapterError struct {
	Kind      string
	Available []string
}

func (e *UnknownAdapterError) Error() string {
	return fmt.Sprintf("unknown data source kind %q\nAvailable kinds: %v\nHint: Check datasources[].kind in leapdata.yaml", e.Kind, e.Available)
}
