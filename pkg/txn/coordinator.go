// Package txn coordinates transactions over batches of commands that may
// target different data sources.
//
// Coordination is sequential and best-effort. Every command of a batch is
// attempted; failures are collected and reported together as an
// *AggregateTransactionError. Begun transactions are independent: a failed
// Begin does not unwind the ones already begun, so callers roll back the whole
// batch themselves.
package txn

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/leapdata/pkg/command"
	"github.com/leapstack-labs/leapdata/pkg/dataaccess"
)

// ClientResolver finds the client for a data source name.
// *registry.Registry implements it.
type ClientResolver interface {
	Resolve(name string) (*dataaccess.Client, error)
}

// Observer is told about the outcome of every command of a batch.
type Observer func(ctx context.Context, action Action, cmd *command.Command, err error)

// Coordinator runs Begin, Commit and Rollback over batches.
type Coordinator struct {
	clients   ClientResolver
	logger    *slog.Logger
	txOptions *sql.TxOptions
	observers []Observer
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the coordinator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTxOptions sets the options BeginTransactions starts transactions with.
func WithTxOptions(opts *sql.TxOptions) Option {
	return func(c *Coordinator) { c.txOptions = opts }
}

// WithObserver adds a per-command outcome observer.
func WithObserver(o Observer) Option {
	return func(c *Coordinator) {
		if o != nil {
			c.observers = append(c.observers, o)
		}
	}
}

// New creates a coordinator resolving clients through clients.
func New(clients ClientResolver, opts ...Option) *Coordinator {
	c := &Coordinator{
		clients: clients,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Begin starts a transaction for cmd on its data source and binds it.
func (c *Coordinator) Begin(ctx context.Context, cmd *command.Command, opts *sql.TxOptions) error {
	if cmd.InTransaction() {
		return fmt.Errorf("%w: %s", ErrTransactionActive, cmd.Transaction)
	}
	client, err := c.clients.Resolve(cmd.DataSource)
	if err != nil {
		return err
	}
	return client.BeginTransaction(ctx, cmd, opts)
}

// Commit commits the transaction bound to cmd. The connection is released
// and the handle detached even when the commit fails.
func (c *Coordinator) Commit(ctx context.Context, cmd *command.Command) error {
	if cmd.Transaction == nil {
		return ErrNoTransaction
	}
	client, err := c.clientFor(cmd)
	if err != nil {
		return err
	}
	return client.CommitTransaction(ctx, cmd)
}

// Rollback rolls back the transaction bound to cmd. Without one it does
// nothing. The connection is released and the handle detached even when the
// rollback fails.
func (c *Coordinator) Rollback(ctx context.Context, cmd *command.Command) error {
	if cmd.Transaction == nil {
		return nil
	}
	client, err := c.clientFor(cmd)
	if err != nil {
		return err
	}
	return client.RollbackTransaction(ctx, cmd)
}

// clientFor resolves the client that owns the bound transaction. If that
// fails the handle is finished here so its connection is not leaked.
func (c *Coordinator) clientFor(cmd *command.Command) (*dataaccess.Client, error) {
	name := cmd.Transaction.DataSource
	client, err := c.clients.Resolve(name)
	if err != nil {
		h := cmd.Transaction
		if h.State == command.TxOpen {
			_ = h.Tx.Rollback()
		}
		h.Finish(command.TxReleased)
		cmd.Transaction = nil
		return nil, err
	}
	return client, nil
}

// BeginTransactions begins a transaction for every command of batch.
func (c *Coordinator) BeginTransactions(ctx context.Context, batch []*command.Command) error {
	return c.each(ctx, ActionBegin, batch, func(cmd *command.Command) error {
		return c.Begin(ctx, cmd, c.txOptions)
	})
}

// CommitTransactions commits every command of batch.
func (c *Coordinator) CommitTransactions(ctx context.Context, batch []*command.Command) error {
	return c.each(ctx, ActionCommit, batch, func(cmd *command.Command) error {
		return c.Commit(ctx, cmd)
	})
}

// RollbackTransactions rolls back every command of batch.
func (c *Coordinator) RollbackTransactions(ctx context.Context, batch []*command.Command) error {
	return c.each(ctx, ActionRollback, batch, func(cmd *command.Command) error {
		return c.Rollback(ctx, cmd)
	})
}

// each applies fn to every command and folds the failures into one error.
func (c *Coordinator) each(ctx context.Context, action Action, batch []*command.Command, fn func(*command.Command) error) error {
	var failures []Failure
	for i, cmd := range batch {
		var err error
		if cmd == nil {
			err = errors.New("nil command in batch")
		} else {
			err = fn(cmd)
		}
		for _, o := range c.observers {
			o(ctx, action, cmd, err)
		}
		if err != nil {
			c.logger.Warn("transaction step failed",
				slog.String("action", string(action)),
				slog.Int("index", i),
				slog.String("error", err.Error()))
			failures = append(failures, Failure{Command: cmd, Err: err})
		}
	}
	if len(failures) == 0 {
		return nil
	}
	return &AggregateTransactionError{Action: action, Attempts: len(batch), Failures: failures}
}
