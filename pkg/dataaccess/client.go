// Package dataaccess executes commands against one named data source.
//
// A Client owns the connection pool of its data source and runs every
// primitive inside the same envelope: hooks and observers, connection
// resolution, parameter binding, execution under the command timeout,
// Out/InOut copy-back, resource release and timing.
package dataaccess

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/leapstack-labs/leapdata/pkg/adapter"
	"github.com/leapstack-labs/leapdata/pkg/command"
	"github.com/leapstack-labs/leapdata/pkg/core"
	"github.com/leapstack-labs/leapdata/pkg/secret"
)

// Observer is notified around every execution of a client.
type Observer interface {
	BeforeExecute(ctx context.Context, op Operation, cmd *command.Command)
	AfterExecute(ctx context.Context, ex Execution)
}

// Operation names a client primitive.
type Operation string

const (
	OpNonQuery Operation = "nonquery"
	OpScalar   Operation = "scalar"
	OpLoader   Operation = "loader"
	OpXML      Operation = "xml"
	OpDataSet  Operation = "dataset"
	OpUpdate   Operation = "update"
	OpBegin    Operation = "begin"
	OpCommit   Operation = "commit"
	OpRollback Operation = "rollback"
)

// Execution describes one finished execution.
type Execution struct {
	DataSource string
	Operation  Operation
	Command    *command.Command
	Elapsed    time.Duration

	// Err is the failure, including handled ones.
	Err     error
	Handled bool
}

// ExceptionPolicy decides whether an execution error is handled.
type ExceptionPolicy func(cmd *command.Command, err error) bool

// DefaultExceptionPolicy delegates to the command's OnDataException hook.
func DefaultExceptionPolicy(cmd *command.Command, err error) bool {
	return cmd.HandleException(err)
}

// Client executes commands against one data source. It is safe for
// concurrent use; commands and transaction handles are not.
type Client struct {
	ds       *core.NamedDataSource
	adapter  adapter.Adapter
	secrets  *secret.Store
	logger   *slog.Logger
	policy   ExceptionPolicy
	resolver *Resolver

	observers []Observer

	mu     sync.Mutex
	db     *sql.DB
	ownsDB bool
}

// Option configures a Client.
type Option func(*Client)

// WithDB uses db as the pool instead of opening one through the adapter.
// The client does not close db.
func WithDB(db *sql.DB) Option {
	return func(c *Client) { c.db = db }
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithObserver adds an execution observer.
func WithObserver(o Observer) Option {
	return func(c *Client) {
		if o != nil {
			c.observers = append(c.observers, o)
		}
	}
}

// WithSecretStore sets the store used to decrypt the connection string and
// credentials.
func WithSecretStore(s *secret.Store) Option {
	return func(c *Client) {
		if s != nil {
			c.secrets = s
		}
	}
}

// WithExceptionPolicy replaces the default exception policy.
func WithExceptionPolicy(p ExceptionPolicy) Option {
	return func(c *Client) {
		if p != nil {
			c.policy = p
		}
	}
}

// NewClient creates a client for ds using adp.
func NewClient(ds *core.NamedDataSource, adp adapter.Adapter, opts ...Option) *Client {
	c := &Client{
		ds:      ds,
		adapter: adp,
		secrets: secret.NewStore(nil),
		logger:  slog.New(slog.DiscardHandler),
		policy:  DefaultExceptionPolicy,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(slog.String("datasource", ds.Name))
	c.resolver = NewResolver(adp, c.secrets, c.DB, c.logger)
	return c
}

// Name returns the data source name.
func (c *Client) Name() string { return c.ds.Name }

// DataSource returns the data source descriptor.
func (c *Client) DataSource() *core.NamedDataSource { return c.ds }

// Adapter returns the client-kind adapter.
func (c *Client) Adapter() adapter.Adapter { return c.adapter }

// Resolver returns the connection resolver of the client.
func (c *Client) Resolver() *Resolver { return c.resolver }

// DB returns the connection pool, opening it on first use with the
// decrypted connection string.
func (c *Client) DB(ctx context.Context) (*sql.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db != nil {
		return c.db, nil
	}

	dsn, err := c.secrets.Get(ctx, c.ds.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("data source %q: %w", c.ds.Name, err)
	}
	octx, err := c.resolver.Identity(ctx, c.ds)
	if err != nil {
		return nil, fmt.Errorf("data source %q: %w", c.ds.Name, err)
	}

	db, err := c.adapter.Open(octx, core.AdapterConfig{
		Kind:   c.ds.Kind,
		Name:   c.ds.Name,
		DSN:    dsn,
		Params: c.ds.Params,
	})
	if err != nil {
		return nil, err
	}
	c.db = db
	c.ownsDB = true
	return db, nil
}

// Ping verifies that a connection can be acquired and is alive.
func (c *Client) Ping(ctx context.Context) error {
	conn, err := c.resolver.Acquire(ctx, c.ds)
	if err != nil {
		return fmt.Errorf("data source %q: %w", c.ds.Name, err)
	}
	defer func() { _ = conn.Close() }()
	return conn.PingContext(ctx)
}

// Close closes the pool if the client opened it.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil || !c.ownsDB {
		return nil
	}
	c.logger.Debug("closing connection pool")
	err := c.db.Close()
	c.db = nil
	return err
}

func (c *Client) before(ctx context.Context, op Operation, cmd *command.Command) {
	cmd.RunBefore()
	for _, o := range c.observers {
		o.BeforeExecute(ctx, op, cmd)
	}
}

func (c *Client) after(ctx context.Context, ex Execution) {
	if ex.Command != nil {
		ex.Command.RunAfter(ex.Elapsed)
	}
	for _, o := range c.observers {
		o.AfterExecute(ctx, ex)
	}
}

func (c *Client) notify(ctx context.Context, ex Execution) {
	for _, o := range c.observers {
		o.AfterExecute(ctx, ex)
	}
}
