package dataaccess

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/leapstack-labs/leapdata/pkg/command"
)

var (
	// ErrNoTransaction is returned when committing a command that has no
	// bound transaction.
	ErrNoTransaction = errors.New("command has no bound transaction")

	// ErrTransactionActive is returned when beginning a transaction on a
	// command that already holds an open one.
	ErrTransactionActive = errors.New("command already holds an open transaction")
)

// BeginTransaction opens a dedicated connection, starts a transaction on it
// and binds the handle to cmd. If cmd.Database names another catalog the
// connection is switched first and discarded when the transaction ends.
func (c *Client) BeginTransaction(ctx context.Context, cmd *command.Command, opts *sql.TxOptions) (err error) {
	start := time.Now()
	defer func() {
		c.notify(ctx, Execution{DataSource: c.Name(), Operation: OpBegin, Command: cmd, Elapsed: time.Since(start), Err: err})
	}()

	if h := cmd.Transaction; h != nil && h.State == command.TxOpen {
		return fmt.Errorf("%w: %s", ErrTransactionActive, h)
	}

	conn, err := c.resolver.Acquire(ctx, c.ds)
	if err != nil {
		return fmt.Errorf("data source %q: %w", c.ds.Name, err)
	}
	res := &Resolution{Conn: conn, OpenedHere: true}
	if err := c.resolver.switchCatalog(ctx, res, cmd.Database); err != nil {
		res.Release()
		return fmt.Errorf("data source %q: %w", c.ds.Name, err)
	}

	tx, err := conn.BeginTx(ctx, opts)
	if err != nil {
		res.Release()
		return err
	}
	h := command.NewTxHandle(c.ds.Name, conn, tx)
	h.Discard = res.switched
	cmd.Transaction = h

	c.logger.Debug("transaction started", slog.String("tx", h.ID.String()))
	return nil
}

// CommitTransaction commits the transaction bound to cmd. The connection is
// released and the handle detached whether or not the commit succeeds.
func (c *Client) CommitTransaction(ctx context.Context, cmd *command.Command) (err error) {
	h := cmd.Transaction
	if h == nil {
		return ErrNoTransaction
	}
	if h.State != command.TxOpen {
		return fmt.Errorf("%w: %s", ErrTransactionClosed, h)
	}
	start := time.Now()
	defer func() {
		c.notify(ctx, Execution{DataSource: c.Name(), Operation: OpCommit, Command: cmd, Elapsed: time.Since(start), Err: err})
	}()

	state := command.TxCommitted
	if err = h.Tx.Commit(); err != nil {
		state = command.TxReleased
	}
	h.Finish(state)
	cmd.Transaction = nil

	c.logger.Debug("transaction finished",
		slog.String("tx", h.ID.String()),
		slog.String("state", state.String()))
	return err
}

// RollbackTransaction rolls back the transaction bound to cmd. Without a
// bound transaction it does nothing. The connection is released and the
// handle detached whether or not the rollback succeeds.
func (c *Client) RollbackTransaction(ctx context.Context, cmd *command.Command) (err error) {
	h := cmd.Transaction
	if h == nil {
		return nil
	}
	if h.State != command.TxOpen {
		cmd.Transaction = nil
		return nil
	}
	start := time.Now()
	defer func() {
		c.notify(ctx, Execution{DataSource: c.Name(), Operation: OpRollback, Command: cmd, Elapsed: time.Since(start), Err: err})
	}()

	state := command.TxRolledBack
	if err = h.Tx.Rollback(); err != nil {
		state = command.TxReleased
	}
	h.Finish(state)
	cmd.Transaction = nil

	c.logger.Debug("transaction finished",
		slog.String("tx", h.ID.String()),
		slog.String("state", state.String()))
	return err
}
