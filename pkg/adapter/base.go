package adapter

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/schema"
)

// Base provides common functionality for adapters.
// Embed it in concrete adapters and override what differs.
type Base struct {
	KindName string
	Style    BindStyle

	// Dialect supplies identifier quoting.
	Dialect schema.Dialect

	Logger *slog.Logger
}

// NewBase returns a Base with a discard logger when logger is nil.
func NewBase(kind string, style BindStyle, d schema.Dialect, logger *slog.Logger) Base {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return Base{KindName: kind, Style: style, Dialect: d, Logger: logger}
}

// Kind returns the client kind name.
func (b *Base) Kind() string { return b.KindName }

// BindStyle returns the parameter binding style.
func (b *Base) BindStyle() BindStyle { return b.Style }

// QuoteIdent quotes a possibly schema-qualified identifier.
func (b *Base) QuoteIdent(name string) string {
	return string(dialect.AppendIdent(nil, name, b.Dialect.IdentQuote()))
}

// TableQuery renders SELECT * FROM <quoted table>.
func (b *Base) TableQuery(table string) (string, error) {
	table = strings.TrimSpace(table)
	if table == "" {
		return "", fmt.Errorf("table name is empty")
	}
	return "SELECT * FROM " + b.QuoteIdent(table), nil
}

// ProcedureCall is unsupported unless overridden.
func (b *Base) ProcedureCall(string, int) (string, error) {
	return "", fmt.Errorf("stored procedures on %s: %w", b.KindName, ErrUnsupported)
}

// CurrentDatabase is unsupported unless overridden.
func (b *Base) CurrentDatabase(context.Context, *sql.Conn) (string, error) {
	return "", fmt.Errorf("catalog lookup on %s: %w", b.KindName, ErrUnsupported)
}

// ChangeDatabase is unsupported unless overridden.
func (b *Base) ChangeDatabase(_ context.Context, _ *sql.Conn, name string) error {
	return fmt.Errorf("switching to catalog %q on %s: %w", name, b.KindName, ErrUnsupported)
}

// CallStatement renders CALL <quoted name>(p1, ..., pN) where placeholder
// renders the i-th (1-based) argument.
func (b *Base) CallStatement(name string, argc int, placeholder func(i int) string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("procedure name is empty")
	}
	args := make([]string, argc)
	for i := range args {
		args[i] = placeholder(i + 1)
	}
	return fmt.Sprintf("CALL %s(%s)", b.QuoteIdent(name), strings.Join(args, ", ")), nil
}

// QueryString runs a single-value query on conn.
func QueryString(ctx context.Context, conn *sql.Conn, query string) (string, error) {
	var v sql.NullString
	if err := conn.QueryRowContext(ctx, query).Scan(&v); err != nil {
		return "", fmt.Errorf("failed to query current catalog: %w", err)
	}
	return v.String, nil
}

// VerifyPool applies pool params to a freshly opened db and pings it.
// The pool is closed on failure.
func (b *Base) VerifyPool(ctx context.Context, db *sql.DB, cfg Config) (*sql.DB, error) {
	if err := ApplyPoolParams(db, cfg.Params); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", b.KindName, err)
	}
	b.Logger.Debug("opened connection pool",
		slog.String("kind", b.KindName),
		slog.String("datasource", cfg.Name))
	return db, nil
}
