package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapdata/internal/cli/output"
	"github.com/leapstack-labs/leapdata/internal/config"
	"github.com/leapstack-labs/leapdata/internal/journal"
	"github.com/leapstack-labs/leapdata/pkg/dataaccess"
	"github.com/leapstack-labs/leapdata/pkg/registry"
	"github.com/leapstack-labs/leapdata/pkg/txn"
)

// App holds the dependencies shared by commands for one invocation.
type App struct {
	Cfg         *config.Config
	Logger      *slog.Logger
	Registry    *registry.Registry
	Coordinator *txn.Coordinator
	Journal     *journal.Store // nil when the journal is disabled
	Renderer    *output.Renderer

	coordOpts []txn.Option
}

// NewApp builds the registry, coordinator and journal described by cfg.
// The caller must Close the result.
func NewApp(cfg *config.Config, logger *slog.Logger, r *output.Renderer) (*App, error) {
	app := &App{Cfg: cfg, Logger: logger, Renderer: r}

	store, err := cfg.SecretStore(logger)
	if err != nil {
		return nil, fmt.Errorf("invalid decryption settings: %w", err)
	}

	var clientOpts []dataaccess.Option
	coordOpts := []txn.Option{txn.WithLogger(logger)}
	if !cfg.NoJournal && cfg.Journal != "" {
		j, err := journal.Open(cfg.Journal, logger)
		if err != nil {
			return nil, err
		}
		app.Journal = j
		clientOpts = append(clientOpts, dataaccess.WithObserver(j))
		coordOpts = append(coordOpts, txn.WithObserver(j.TxObserver()))
	}

	reg, err := registry.FromConfig(cfg.DataSources, store,
		registry.WithLogger(logger),
		registry.WithClientOptions(clientOpts...))
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.Registry = reg
	app.coordOpts = coordOpts
	app.Coordinator = txn.New(reg, coordOpts...)
	return app, nil
}

// CoordinatorWith returns a coordinator like Coordinator with extra options.
func (a *App) CoordinatorWith(opts ...txn.Option) *txn.Coordinator {
	all := append([]txn.Option{}, a.coordOpts...)
	return txn.New(a.Registry, append(all, opts...)...)
}

// Close releases every pool and the journal.
func (a *App) Close() error {
	var errs []error
	if a.Registry != nil {
		errs = append(errs, a.Registry.Close())
	}
	if a.Journal != nil {
		errs = append(errs, a.Journal.Close())
	}
	return errors.Join(errs...)
}

// Client resolves name, or the default data source when name is empty.
func (a *App) Client(name string) (*dataaccess.Client, error) {
	return a.Registry.Resolve(name)
}

type appKey struct{}

// WithApp stores app in ctx.
func WithApp(ctx context.Context, app *App) context.Context {
	return context.WithValue(ctx, appKey{}, app)
}

// GetApp returns the App stored in the command context.
func GetApp(cmd *cobra.Command) (*App, error) {
	if app, ok := cmd.Context().Value(appKey{}).(*App); ok {
		return app, nil
	}
	return nil, errors.New("no configuration loaded")
}
