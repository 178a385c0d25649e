package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/leapstack-labs/leapdata/pkg/adapter"
	"github.com/uptrace/bun/dialect/pgdialect"
)

// Kind is the configuration name of this adapter.
const Kind = "postgres"

// Params holds PostgreSQL-specific configuration.
// Used to build a DSN when the connection string is empty.
type Params struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`

	// SearchPath is applied to every new connection.
	SearchPath string `mapstructure:"search_path"`

	// ConnectTimeout overrides connect_timeout of the connection string.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// Adapter implements adapter.Adapter for PostgreSQL.
// Catalog switching maps to the schema search path.
type Adapter struct {
	adapter.Base
}

// New creates a new PostgreSQL adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	return &Adapter{
		Base: adapter.NewBase(Kind, adapter.Positional, pgdialect.New(), logger),
	}
}

// Open creates a pgx-backed pool. A Principal in the acquisition context
// replaces the user and password of new connections.
func (a *Adapter) Open(ctx context.Context, cfg adapter.Config) (*sql.DB, error) {
	connCfg, err := connConfig(cfg)
	if err != nil {
		return nil, err
	}

	a.Logger.Debug("connecting to postgres",
		slog.String("host", connCfg.Host),
		slog.String("database", connCfg.Database))

	db := stdlib.OpenDB(*connCfg, stdlib.OptionBeforeConnect(applyPrincipal))
	return a.VerifyPool(ctx, db, cfg)
}

// connConfig parses the connection string, or builds one from params, and
// layers the params over it.
func connConfig(cfg adapter.Config) (*pgx.ConnConfig, error) {
	params, err := parseParams(cfg.Params)
	if err != nil {
		return nil, err
	}

	dsn := cfg.DSN
	if strings.TrimSpace(dsn) == "" {
		dsn = buildPostgresDSN(params)
	}

	connCfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres connection string: %w", err)
	}
	if params.SearchPath != "" {
		connCfg.RuntimeParams["search_path"] = params.SearchPath
	}
	if params.ConnectTimeout > 0 {
		connCfg.ConnectTimeout = params.ConnectTimeout
	}
	return connCfg, nil
}

func applyPrincipal(ctx context.Context, cc *pgx.ConnConfig) error {
	if p, ok := adapter.PrincipalFrom(ctx); ok {
		cc.User = p.Account()
		cc.Password = p.Password
	}
	return nil
}

// Placeholder returns the i-th (1-based) positional placeholder.
func Placeholder(i int) string {
	return fmt.Sprintf("$%d", i)
}

// ProcedureCall renders CALL "name"($1, ..., $n).
func (a *Adapter) ProcedureCall(name string, argc int) (string, error) {
	return a.CallStatement(name, argc, Placeholder)
}

// CurrentDatabase returns the current schema.
func (a *Adapter) CurrentDatabase(ctx context.Context, conn *sql.Conn) (string, error) {
	return adapter.QueryString(ctx, conn, "SELECT current_schema()")
}

// ChangeDatabase sets the search path of conn to the given schema.
func (a *Adapter) ChangeDatabase(ctx context.Context, conn *sql.Conn, name string) error {
	_, err := conn.ExecContext(ctx, "SET search_path TO "+a.QuoteIdent(name))
	return err
}

func parseParams(raw map[string]any) (Params, error) {
	var p Params
	if len(raw) == 0 {
		return p, nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &p,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return p, err
	}
	if err := dec.Decode(raw); err != nil {
		return p, fmt.Errorf("invalid postgres params: %w", err)
	}
	return p, nil
}

// buildPostgresDSN constructs a key=value connection string.
func buildPostgresDSN(p Params) string {
	host := p.Host
	if host == "" {
		host = "localhost"
	}

	port := p.Port
	if port == 0 {
		port = 5432
	}

	sslmode := p.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%d sslmode=%s", host, port, sslmode)
	if p.Database != "" {
		dsn += fmt.Sprintf(" dbname=%s", p.Database)
	}
	return dsn
}

// Ensure Adapter implements adapter.Adapter interface
var _ adapter.Adapter = (*Adapter)(nil)
