package secret

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Decrypter turns at-rest ciphertext into plaintext.
type Decrypter interface {
	// DecryptString decrypts one value.
	DecryptString(ctx context.Context, ciphertext string) (string, error)

	// Name identifies the decrypter in logs and errors.
	Name() string
}

// Factory builds a Decrypter from provider options.
type Factory func(opts map[string]any) (Decrypter, error)

// NoopName is the registry name of the pass-through decrypter.
const NoopName = "none"

// Noop returns ciphertext unchanged. It is the fallback decrypter.
type Noop struct{}

// DecryptString returns ciphertext as-is.
func (Noop) DecryptString(_ context.Context, ciphertext string) (string, error) {
	return ciphertext, nil
}

// Name returns "none".
func (Noop) Name() string { return NoopName }

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{
		NoopName: func(map[string]any) (Decrypter, error) { return Noop{}, nil },
	}
)

// RegisterDecrypter adds a decrypter factory under name.
// Called by decrypter implementations in their init() functions.
func RegisterDecrypter(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(name)] = factory
}

// ListDecrypters returns all registered decrypter names (sorted).
func ListDecrypters() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewDecrypter resolves a decrypter by name. An empty name resolves to Noop.
// An unknown name also falls back to Noop and is reported on logger.
func NewDecrypter(name string, opts map[string]any, logger *slog.Logger) (Decrypter, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if name == "" {
		return Noop{}, nil
	}

	registryMu.RLock()
	factory, ok := registry[strings.ToLower(name)]
	registryMu.RUnlock()
	if !ok {
		logger.Warn("unknown decryption provider, falling back to none",
			slog.String("provider", name),
			slog.Any("available", ListDecrypters()))
		return Noop{}, nil
	}

	d, err := factory(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create decryption provider %q: %w", name, err)
	}
	return d, nil
}
