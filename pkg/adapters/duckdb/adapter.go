package duckdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/leapdata/pkg/adapter"
	"github.com/marcboeker/go-duckdb"
	"github.com/uptrace/bun/dialect/pgdialect"
)

// Kind is the configuration name of this adapter.
const Kind = "duckdb"

// Adapter implements adapter.Adapter for DuckDB.
// DuckDB quotes identifiers like PostgreSQL, so the pg dialect is reused.
type Adapter struct {
	adapter.Base
}

// New creates a new DuckDB adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	return &Adapter{
		Base: adapter.NewBase(Kind, adapter.Positional, pgdialect.New(), logger),
	}
}

// Open opens a DuckDB database. An empty connection string opens an
// in-memory database. Extensions and settings from params are applied to
// every new connection.
func (a *Adapter) Open(ctx context.Context, cfg adapter.Config) (*sql.DB, error) {
	params, err := parseParams(cfg.Params)
	if err != nil {
		return nil, err
	}

	path := strings.TrimSpace(cfg.DSN)
	if path == "" {
		path = ":memory:"
	}

	boot := params.bootStatements()
	connector, err := duckdb.NewConnector(path, func(execer driver.ExecerContext) error {
		for _, stmt := range boot {
			if _, err := execer.ExecContext(context.Background(), stmt, nil); err != nil {
				return fmt.Errorf("failed to run %q: %w", stmt, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb connection: %w", err)
	}

	a.Logger.Debug("opening duckdb database",
		slog.String("datasource", cfg.Name),
		slog.Int("boot_statements", len(boot)))

	return a.VerifyPool(ctx, sql.OpenDB(connector), cfg)
}

// CurrentDatabase returns the attached database in use.
func (a *Adapter) CurrentDatabase(ctx context.Context, conn *sql.Conn) (string, error) {
	return adapter.QueryString(ctx, conn, "SELECT current_database()")
}

// ChangeDatabase switches conn to another attached database.
func (a *Adapter) ChangeDatabase(ctx context.Context, conn *sql.Conn, name string) error {
	_, err := conn.ExecContext(ctx, "USE "+a.QuoteIdent(name))
	return err
}

// Ensure Adapter implements adapter.Adapter interface
var _ adapter.Adapter = (*Adapter)(nil)
