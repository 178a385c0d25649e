package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// StubDriver is an in-memory database/sql driver for tests. It counts
// connection and transaction lifecycle events and lets tests script
// statement results and inject failures.
type StubDriver struct {
	Opens     atomic.Int64
	Closes    atomic.Int64
	Begins    atomic.Int64
	Commits   atomic.Int64
	Rollbacks atomic.Int64

	// OpenErr, BeginErr, CommitErr and RollbackErr are returned by the
	// corresponding driver call when set.
	OpenErr     error
	BeginErr    error
	CommitErr   error
	RollbackErr error

	// ExecFunc scripts Exec results. Nil returns zero rows affected.
	ExecFunc func(query string, args []driver.NamedValue) (driver.Result, error)

	// QueryFunc scripts Query results. Nil returns an empty result set.
	QueryFunc func(query string, args []driver.NamedValue) (driver.Rows, error)

	// OnConnect observes the context of every new physical connection.
	OnConnect func(ctx context.Context)

	// Delay holds every Exec and Query until it elapses or the context ends.
	Delay time.Duration

	mu         sync.Mutex
	statements []string
}

// OpenDB returns a pool backed by d. Idle connections are not kept, so every
// released connection is closed and counted. The pool is closed on cleanup.
func (d *StubDriver) OpenDB(t testing.TB) *sql.DB {
	t.Helper()
	db := sql.OpenDB(stubConnector{d: d})
	db.SetMaxIdleConns(0)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// Statements returns every statement executed or queried, in order.
func (d *StubDriver) Statements() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.statements...)
}

func (d *StubDriver) record(query string) {
	d.mu.Lock()
	d.statements = append(d.statements, query)
	d.mu.Unlock()
}

// Open implements driver.Driver.
func (d *StubDriver) Open(string) (driver.Conn, error) {
	return stubConnector{d: d}.Connect(context.Background())
}

type stubConnector struct{ d *StubDriver }

func (c stubConnector) Connect(ctx context.Context) (driver.Conn, error) {
	if c.d.OpenErr != nil {
		return nil, c.d.OpenErr
	}
	if c.d.OnConnect != nil {
		c.d.OnConnect(ctx)
	}
	c.d.Opens.Add(1)
	return &stubConn{d: c.d}, nil
}

func (c stubConnector) Driver() driver.Driver { return c.d }

type stubConn struct {
	d      *StubDriver
	closed bool
}

func (c *stubConn) Prepare(query string) (driver.Stmt, error) {
	return &stubStmt{c: c, query: query}, nil
}

func (c *stubConn) Close() error {
	if !c.closed {
		c.closed = true
		c.d.Closes.Add(1)
	}
	return nil
}

func (c *stubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *stubConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	if c.d.BeginErr != nil {
		return nil, c.d.BeginErr
	}
	c.d.Begins.Add(1)
	return stubTx{d: c.d}, nil
}

// CheckNamedValue accepts every argument as-is, including sql.Out.
func (c *stubConn) CheckNamedValue(*driver.NamedValue) error { return nil }

func (c *stubConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.d.record(query)
	if err := c.d.wait(ctx); err != nil {
		return nil, err
	}
	if c.d.ExecFunc != nil {
		return c.d.ExecFunc(query, args)
	}
	return driver.RowsAffected(0), nil
}

func (c *stubConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.d.record(query)
	if err := c.d.wait(ctx); err != nil {
		return nil, err
	}
	if c.d.QueryFunc != nil {
		return c.d.QueryFunc(query, args)
	}
	return NewRows(), nil
}

func (d *StubDriver) wait(ctx context.Context) error {
	if d.Delay <= 0 {
		return nil
	}
	select {
	case <-time.After(d.Delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type stubStmt struct {
	c     *stubConn
	query string
}

func (s *stubStmt) Close() error  { return nil }
func (s *stubStmt) NumInput() int { return -1 }

func (s *stubStmt) Exec(args []driver.Value) (driver.Result, error) {
	return s.c.ExecContext(context.Background(), s.query, toNamed(args))
}

func (s *stubStmt) Query(args []driver.Value) (driver.Rows, error) {
	return s.c.QueryContext(context.Background(), s.query, toNamed(args))
}

func toNamed(args []driver.Value) []driver.NamedValue {
	out := make([]driver.NamedValue, len(args))
	for i, v := range args {
		out[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return out
}

type stubTx struct{ d *StubDriver }

func (t stubTx) Commit() error {
	t.d.Commits.Add(1)
	return t.d.CommitErr
}

func (t stubTx) Rollback() error {
	t.d.Rollbacks.Add(1)
	return t.d.RollbackErr
}

// ResultSet is one scripted result set.
type ResultSet struct {
	Columns []string
	Rows    [][]driver.Value
}

// NewRows returns driver rows over one or more result sets.
func NewRows(sets ...ResultSet) driver.Rows {
	if len(sets) == 0 {
		sets = []ResultSet{{}}
	}
	return &stubRows{sets: sets}
}

type stubRows struct {
	sets []ResultSet
	set  int
	row  int
}

func (r *stubRows) Columns() []string { return r.sets[r.set].Columns }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	rs := r.sets[r.set]
	if r.row >= len(rs.Rows) {
		return io.EOF
	}
	copy(dest, rs.Rows[r.row])
	r.row++
	return nil
}

func (r *stubRows) HasNextResultSet() bool { return r.set < len(r.sets)-1 }

func (r *stubRows) NextResultSet() error {
	if !r.HasNextResultSet() {
		return io.EOF
	}
	r.set++
	r.row = 0
	return nil
}

// OutArg returns the sql.Out carried by a named value.
func OutArg(nv driver.NamedValue) (sql.Out, error) {
	out, ok := nv.Value.(sql.Out)
	if !ok {
		return sql.Out{}, errors.New("argument is not an output parameter")
	}
	return out, nil
}
