package dataaccess

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/leapdata/pkg/adapter"
	"github.com/leapstack-labs/leapdata/pkg/command"
	"github.com/leapstack-labs/leapdata/pkg/core"
	"github.com/leapstack-labs/leapdata/pkg/secret"
)

// ErrTransactionClosed is returned when a command is bound to a transaction
// that was already committed or rolled back.
var ErrTransactionClosed = errors.New("bound transaction is no longer open")

// PoolFunc returns the connection pool of a data source.
type PoolFunc func(ctx context.Context) (*sql.DB, error)

// Resolver finds the connection a command runs on.
type Resolver struct {
	adapter adapter.Adapter
	secrets *secret.Store
	pool    PoolFunc
	logger  *slog.Logger
}

// NewResolver creates a resolver. A nil store means secrets are plaintext.
func NewResolver(adp adapter.Adapter, secrets *secret.Store, pool PoolFunc, logger *slog.Logger) *Resolver {
	if secrets == nil {
		secrets = secret.NewStore(nil)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{adapter: adp, secrets: secrets, pool: pool, logger: logger}
}

// Resolution is a connection, and possibly a transaction, resolved for one
// execution. Release it exactly when the execution is finished.
type Resolution struct {
	Conn *sql.Conn
	Tx   *sql.Tx

	// OpenedHere is true when the resolver acquired Conn and owns it.
	OpenedHere bool

	switched bool
	released bool
}

// Release returns a resolver-owned connection to the pool. A connection
// whose catalog was switched is discarded instead. Connections of a bound
// transaction are left untouched. Release is idempotent.
func (r *Resolution) Release() {
	if r == nil || r.released {
		return
	}
	r.released = true
	if !r.OpenedHere || r.Conn == nil {
		return
	}
	if r.switched {
		_ = r.Conn.Raw(func(any) error { return driver.ErrBadConn })
	}
	_ = r.Conn.Close()
}

// target is the common surface of *sql.Conn and *sql.Tx.
type target interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (r *Resolution) target() target {
	if r.Tx != nil {
		return r.Tx
	}
	return r.Conn
}

// Resolve returns the connection cmd must run on.
//
// A command bound to an open transaction reuses that transaction's connection.
// Otherwise a dedicated connection is acquired from the pool, under the data
// source's delegated principal when it has credentials. If cmd.Database names
// another catalog, the connection is switched to it.
func (r *Resolver) Resolve(ctx context.Context, cmd *command.Command, ds *core.NamedDataSource) (*Resolution, error) {
	if h := cmd.Transaction; h != nil {
		if h.State != command.TxOpen {
			return nil, fmt.Errorf("%w: %s", ErrTransactionClosed, h)
		}
		res := &Resolution{Conn: h.Conn, Tx: h.Tx}
		if err := r.switchCatalog(ctx, res, cmd.Database); err != nil {
			return nil, err
		}
		if res.switched {
			h.Discard = true
		}
		return res, nil
	}

	conn, err := r.Acquire(ctx, ds)
	if err != nil {
		return nil, err
	}
	res := &Resolution{Conn: conn, OpenedHere: true}
	if err := r.switchCatalog(ctx, res, cmd.Database); err != nil {
		res.Release()
		return nil, err
	}
	return res, nil
}

// Acquire takes a dedicated connection from the pool. The delegated
// principal, if any, lives only in the context of the acquisition call.
func (r *Resolver) Acquire(ctx context.Context, ds *core.NamedDataSource) (*sql.Conn, error) {
	db, err := r.pool(ctx)
	if err != nil {
		return nil, err
	}
	actx, err := r.Identity(ctx, ds)
	if err != nil {
		return nil, err
	}
	conn, err := db.Conn(actx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	return conn, nil
}

// Identity returns ctx carrying the data source's delegated principal.
// Without credentials ctx is returned unchanged.
func (r *Resolver) Identity(ctx context.Context, ds *core.NamedDataSource) (context.Context, error) {
	if ds == nil || !ds.HasCredentials() {
		return ctx, nil
	}
	raw, err := r.secrets.Get(ctx, ds.Credentials)
	if err != nil {
		return nil, err
	}
	p, err := adapter.ParsePrincipal(raw)
	if err != nil {
		return nil, &core.ConfigurationError{Name: ds.Name, Reason: err.Error()}
	}
	return adapter.WithPrincipal(ctx, p), nil
}

func (r *Resolver) switchCatalog(ctx context.Context, res *Resolution, database string) error {
	database = strings.TrimSpace(database)
	if database == "" {
		return nil
	}
	current, err := r.adapter.CurrentDatabase(ctx, res.Conn)
	if err != nil {
		return err
	}
	if strings.EqualFold(current, database) {
		return nil
	}
	if err := r.adapter.ChangeDatabase(ctx, res.Conn, database); err != nil {
		return fmt.Errorf("failed to switch to catalog %q: %w", database, err)
	}
	res.switched = true
	r.logger.Debug("switched catalog",
		slog.String("from", current),
		slog.String("to", database))
	return nil
}
