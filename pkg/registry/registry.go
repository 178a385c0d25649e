// Package registry maps data source names to their clients.
//
// A Registry is built once at startup, usually with FromConfig, and read
// afterwards. Names are case-insensitive. An empty name resolves to the single
// data source marked as default.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/leapstack-labs/leapdata/pkg/adapter"
	"github.com/leapstack-labs/leapdata/pkg/core"
	"github.com/leapstack-labs/leapdata/pkg/dataaccess"
	"github.com/leapstack-labs/leapdata/pkg/secret"
)

// Registry resolves data source names to clients.
type Registry struct {
	mu sync.RWMutex

	// clients maps normalized names to clients: "orders" → *Client
	clients map[string]*dataaccess.Client

	// order keeps registration order for Names
	order []string

	// defaultKey is the normalized name of the default data source, if any
	defaultKey string

	secrets    *secret.Store
	logger     *slog.Logger
	adapters   map[string]adapter.Adapter
	clientOpts []dataaccess.Option
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger handed to adapters and clients.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithSecretStore sets the store clients decrypt secrets with.
func WithSecretStore(s *secret.Store) Option {
	return func(r *Registry) {
		if s != nil {
			r.secrets = s
		}
	}
}

// WithAdapter serves kind with adp instead of the global adapter registry.
func WithAdapter(kind string, adp adapter.Adapter) Option {
	return func(r *Registry) {
		r.adapters[strings.ToLower(kind)] = adp
	}
}

// WithClientOptions adds options applied to every client built by Register.
func WithClientOptions(opts ...dataaccess.Option) Option {
	return func(r *Registry) {
		r.clientOpts = append(r.clientOpts, opts...)
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		clients:  make(map[string]*dataaccess.Client),
		secrets:  secret.NewStore(nil),
		logger:   slog.New(slog.DiscardHandler),
		adapters: make(map[string]adapter.Adapter),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FromConfig validates every entry and then registers them all. Nothing is
// constructed when validation fails. A nil store means values are plaintext.
func FromConfig(cfgs []core.DataSourceConfig, store *secret.Store, opts ...Option) (*Registry, error) {
	if store != nil {
		opts = append(opts, WithSecretStore(store))
	}
	r := New(opts...)
	if err := r.validate(cfgs); err != nil {
		return nil, err
	}

	encrypted := store != nil && store.Decrypter().Name() != secret.NoopName
	for _, cfg := range cfgs {
		if err := r.Register(cfg.NamedDataSource(encrypted)); err != nil {
			_ = r.Close()
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) validate(cfgs []core.DataSourceConfig) error {
	seen := make(map[string]bool, len(cfgs))
	var defaultName string
	for i, cfg := range cfgs {
		name := strings.TrimSpace(cfg.Name)
		if name == "" {
			return &core.ConfigurationError{
				Reason: fmt.Sprintf("datasources[%d] has no name", i),
				Hint:   "Every entry in datasources needs a unique name",
			}
		}
		key := core.NormalizeName(name)
		if seen[key] {
			return &core.ConfigurationError{Name: name, Reason: "defined more than once"}
		}
		seen[key] = true

		if cfg.Default {
			if defaultName != "" {
				return multipleDefaults(defaultName, name)
			}
			defaultName = name
		}
		if err := r.checkKind(name, cfg.Kind); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) checkKind(name, kind string) error {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind == "" {
		return &core.ConfigurationError{Name: name, Reason: "kind not specified"}
	}
	if _, ok := r.adapters[kind]; ok || adapter.IsRegistered(kind) {
		return nil
	}
	return &core.ConfigurationError{
		Name:   name,
		Reason: fmt.Sprintf("unknown kind %q", kind),
		Hint:   fmt.Sprintf("Available kinds: %v", adapter.ListAdapters()),
	}
}

func multipleDefaults(existing, name string) error {
	return &core.ConfigurationError{
		Name:   name,
		Reason: fmt.Sprintf("cannot be default, %q is already the default data source", existing),
		Hint:   "Set default: true on exactly one entry in datasources",
	}
}

// Register builds a client for ds and adds it.
func (r *Registry) Register(ds *core.NamedDataSource) error {
	if ds == nil || strings.TrimSpace(ds.Name) == "" {
		return &core.ConfigurationError{Reason: "data source has no name"}
	}
	if err := r.checkKind(ds.Name, ds.Kind); err != nil {
		return err
	}

	adp, ok := r.adapters[strings.ToLower(ds.Kind)]
	if !ok {
		var err error
		adp, err = adapter.New(ds.Kind, r.logger)
		if err != nil {
			return &core.ConfigurationError{Name: ds.Name, Reason: err.Error()}
		}
	}

	opts := append([]dataaccess.Option{
		dataaccess.WithLogger(r.logger),
		dataaccess.WithSecretStore(r.secrets),
	}, r.clientOpts...)
	return r.RegisterClient(dataaccess.NewClient(ds, adp, opts...))
}

// RegisterClient adds a prepared client. A duplicate name or a second
// default is rejected and leaves the registry unchanged.
func (r *Registry) RegisterClient(c *dataaccess.Client) error {
	ds := c.DataSource()
	key := core.NormalizeName(ds.Name)
	if key == "" {
		return &core.ConfigurationError{Reason: "data source has no name"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.clients[key]; ok {
		return &core.ConfigurationError{
			Name:   ds.Name,
			Reason: fmt.Sprintf("already registered as %q", existing.Name()),
		}
	}
	if ds.IsDefault && r.defaultKey != "" {
		return multipleDefaults(r.clients[r.defaultKey].Name(), ds.Name)
	}

	r.clients[key] = c
	r.order = append(r.order, ds.Name)
	if ds.IsDefault {
		r.defaultKey = key
	}
	r.logger.Debug("registered data source",
		slog.String("name", ds.Name),
		slog.String("kind", ds.Kind),
		slog.Bool("default", ds.IsDefault))
	return nil
}

// Resolve returns the client for name. An empty name resolves to the
// default data source.
func (r *Registry) Resolve(name string) (*dataaccess.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := core.NormalizeName(name)
	if key == "" {
		if r.defaultKey == "" {
			return nil, &core.NotConfiguredError{Name: core.DefaultDataSourceName, Available: r.names()}
		}
		key = r.defaultKey
	}
	c, ok := r.clients[key]
	if !ok {
		return nil, &core.NotConfiguredError{Name: name, Available: r.names()}
	}
	return c, nil
}

// Default returns the default client.
func (r *Registry) Default() (*dataaccess.Client, error) {
	return r.Resolve("")
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.names()
}

func (r *Registry) names() []string {
	return append([]string(nil), r.order...)
}

// Len returns the number of registered data sources.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Close closes every client pool and empties the registry.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, name := range r.order {
		c := r.clients[core.NormalizeName(name)]
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	r.clients = make(map[string]*dataaccess.Client)
	r.order = nil
	r.defaultKey = ""
	return errors.Join(errs...)
}
