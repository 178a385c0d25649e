package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/go-viper/mapstructure/v2"
	"github.com/leapstack-labs/leapdata/pkg/adapter"
	"github.com/uptrace/bun/dialect/mysqldialect"
)

// Kind is the configuration name of this adapter.
const Kind = "mysql"

// Params holds MySQL-specific configuration layered over the DSN.
type Params struct {
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	ParseTime      *bool         `mapstructure:"parse_time"`
	Collation      string        `mapstructure:"collation"`
	Database       string        `mapstructure:"database"`
}

// Adapter implements adapter.Adapter for MySQL and MariaDB.
type Adapter struct {
	adapter.Base
}

// New creates a new MySQL adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	return &Adapter{
		Base: adapter.NewBase(Kind, adapter.Positional, mysqldialect.New(), logger),
	}
}

// Open creates a pool from a go-sql-driver DSN. A Principal in the
// acquisition context replaces the user and password of new connections.
func (a *Adapter) Open(ctx context.Context, cfg adapter.Config) (*sql.DB, error) {
	mc, err := mysqlConfig(cfg)
	if err != nil {
		return nil, err
	}

	a.Logger.Debug("connecting to mysql",
		slog.String("addr", mc.Addr),
		slog.String("database", mc.DBName))

	connector, err := mysql.NewConnector(mc)
	if err != nil {
		return nil, fmt.Errorf("failed to create mysql connector: %w", err)
	}
	return a.VerifyPool(ctx, sql.OpenDB(connector), cfg)
}

func mysqlConfig(cfg adapter.Config) (*mysql.Config, error) {
	mc, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("invalid mysql connection string: %w", err)
	}

	params, err := parseParams(cfg.Params)
	if err != nil {
		return nil, err
	}
	if params.ConnectTimeout > 0 {
		mc.Timeout = params.ConnectTimeout
	}
	if params.ParseTime != nil {
		mc.ParseTime = *params.ParseTime
	}
	if params.Collation != "" {
		mc.Collation = params.Collation
	}
	if params.Database != "" && mc.DBName == "" {
		mc.DBName = params.Database
	}

	if err := mc.Apply(mysql.BeforeConnect(applyPrincipal)); err != nil {
		return nil, fmt.Errorf("failed to configure mysql connector: %w", err)
	}
	return mc, nil
}

func applyPrincipal(ctx context.Context, c *mysql.Config) error {
	if p, ok := adapter.PrincipalFrom(ctx); ok {
		c.User = p.Account()
		c.Passwd = p.Password
	}
	return nil
}

// ProcedureCall renders CALL `name`(?, ..., ?).
func (a *Adapter) ProcedureCall(name string, argc int) (string, error) {
	return a.CallStatement(name, argc, func(int) string { return "?" })
}

// CurrentDatabase returns the default database of conn.
func (a *Adapter) CurrentDatabase(ctx context.Context, conn *sql.Conn) (string, error) {
	return adapter.QueryString(ctx, conn, "SELECT DATABASE()")
}

// ChangeDatabase switches conn to another database.
func (a *Adapter) ChangeDatabase(ctx context.Context, conn *sql.Conn, name string) error {
	_, err := conn.ExecContext(ctx, "USE "+a.QuoteIdent(name))
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
		return p, fmt.Errorf("invalid mysql params: %w", err)
	}
	return p, nil
}

// Ensure Adapter implements adapter.Adapter interface
var _ adapter.Adapter = (*Adapter)(nil)
