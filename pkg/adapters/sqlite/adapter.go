package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/leapstack-labs/leapdata/pkg/adapter"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	_ "modernc.org/sqlite" // sqlite driver (pure Go)
)

// Kind is the configuration name of this adapter.
const Kind = "sqlite"

// MainCatalog is the only catalog a SQLite connection can switch to.
const MainCatalog = "main"

// Params holds SQLite-specific configuration.
type Params struct {
	// Pragmas are applied to every new connection, e.g. foreign_keys: "on".
	Pragmas map[string]string `mapstructure:"pragmas"`
}

// Adapter implements adapter.Adapter for SQLite.
// Parameters bind by name; stored procedures are not supported.
type Adapter struct {
	adapter.Base
}

// New creates a new SQLite adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	return &Adapter{
		Base: adapter.NewBase(Kind, adapter.Named, sqlitedialect.New(), logger),
	}
}

// Open opens a database file. An empty connection string opens an
// in-memory database.
func (a *Adapter) Open(ctx context.Context, cfg adapter.Config) (*sql.DB, error) {
	var params Params
	if err := mapstructure.WeakDecode(cfg.Params, &params); err != nil {
		return nil, fmt.Errorf("invalid sqlite params: %w", err)
	}

	dsn := buildDSN(cfg.DSN, params)
	a.Logger.Debug("opening sqlite database", slog.String("datasource", cfg.Name))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	return a.VerifyPool(ctx, db, cfg)
}

// buildDSN appends pragmas as _pragma query parameters.
func buildDSN(dsn string, p Params) string {
	if strings.TrimSpace(dsn) == "" {
		dsn = ":memory:"
	}
	if len(p.Pragmas) == 0 {
		return dsn
	}

	names := make([]string, 0, len(p.Pragmas))
	for name := range p.Pragmas {
		names = append(names, name)
	}
	sort.Strings(names)

	q := url.Values{}
	for _, name := range names {
		q.Add("_pragma", fmt.Sprintf("%s(%s)", name, p.Pragmas[name]))
	}

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + q.Encode()
}

// CurrentDatabase always reports the main catalog.
func (a *Adapter) CurrentDatabase(context.Context, *sql.Conn) (string, error) {
	return MainCatalog, nil
}

// ChangeDatabase accepts only the main catalog.
func (a *Adapter) ChangeDatabase(ctx context.Context, conn *sql.Conn, name string) error {
	if strings.EqualFold(name, MainCatalog) {
		return nil
	}
	return a.Base.ChangeDatabase(ctx, conn, name)
}

// Ensure Adapter implements adapter.Adapter interface
var _ adapter.Adapter = (*Adapter)(nil)
