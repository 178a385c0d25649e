package txn_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapdata/internal/testutil"
	"github.com/leapstack-labs/leapdata/pkg/command"
	"github.com/leapstack-labs/leapdata/pkg/core"
	"github.com/leapstack-labs/leapdata/pkg/dataaccess"
	"github.com/leapstack-labs/leapdata/pkg/registry"
	"github.com/leapstack-labs/leapdata/pkg/secret"
	"github.com/leapstack-labs/leapdata/pkg/txn"
)

type fixture struct {
	reg     *registry.Registry
	drivers map[string]*testutil.StubDriver
	coord   *txn.Coordinator
}

// newFixture registers one stub-backed data source per name. The first name
// is the default.
func newFixture(t *testing.T, names ...string) *fixture {
	t.Helper()
	logger := testutil.NewTestLogger(t)
	f := &fixture{
		reg:     registry.New(registry.WithLogger(logger)),
		drivers: make(map[string]*testutil.StubDriver),
	}
	for i, name := range names {
		d := &testutil.StubDriver{}
		ds := &core.NamedDataSource{
			Name:             name,
			Kind:             testutil.StubKind,
			ConnectionString: secret.Plain("stub://" + name),
			IsDefault:        i == 0,
		}
		c := dataaccess.NewClient(ds, &testutil.StubAdapter{DB: d.OpenDB(t)}, dataaccess.WithLogger(logger))
		require.NoError(t, f.reg.RegisterClient(c))
		f.drivers[name] = d
	}
	f.coord = txn.New(f.reg, txn.WithLogger(logger))
	return f
}

func TestOrdersAuditScenario(t *testing.T) {
	f := newFixture(t, "Orders", "Audit")
	ctx := context.Background()
	commitFailed := errors.New("audit log full")
	f.drivers["Audit"].CommitErr = commitFailed

	cmdA := command.New("INSERT INTO orders VALUES (1)").On("orders")
	cmdB := command.New("INSERT INTO audit VALUES ('order 1')").On("Audit")
	batch := []*command.Command{cmdA, cmdB}

	require.NoError(t, f.coord.BeginTransactions(ctx, batch))
	require.True(t, cmdA.InTransaction())
	require.True(t, cmdB.InTransaction())

	for _, cmd := range batch {
		client, err := f.reg.Resolve(cmd.DataSource)
		require.NoError(t, err)
		_, err = client.ExecuteNonQuery(ctx, cmd)
		require.NoError(t, err)
	}

	err := f.coord.CommitTransactions(ctx, batch)
	require.Error(t, err)

	var agg *txn.AggregateTransactionError
	require.ErrorAs(t, err, &agg)
	assert.Equal(t, txn.ActionCommit, agg.Action)
	require.Len(t, agg.Failures, 1)
	assert.Same(t, cmdB, agg.Failures[0].Command)
	assert.Equal(t, commitFailed, agg.Failures[0].Err)
	assert.ErrorIs(t, err, commitFailed)
	assert.Nil(t, agg.FailureFor(cmdA))

	for name, d := range f.drivers {
		assert.Equal(t, int64(1), d.Commits.Load(), "%s commit attempted", name)
		assert.Equal(t, d.Opens.Load(), d.Closes.Load(), "%s connection released", name)
	}
	assert.Nil(t, cmdA.Transaction)
	assert.Nil(t, cmdB.Transaction)
}

func TestCommitAttemptsEveryCommand(t *testing.T) {
	f := newFixture(t, "a", "b", "c", "d")
	ctx := context.Background()
	f.drivers["b"].CommitErr = errors.New("b failed")
	f.drivers["d"].CommitErr = errors.New("d failed")

	batch := []*command.Command{
		command.New("x").On("a"),
		command.New("x").On("b"),
		command.New("x").On("c"),
		command.New("x").On("d"),
	}
	require.NoError(t, f.coord.BeginTransactions(ctx, batch))

	err := f.coord.CommitTransactions(ctx, batch)
	var agg *txn.AggregateTransactionError
	require.ErrorAs(t, err, &agg)
	require.Len(t, agg.Failures, 2)
	assert.Same(t, batch[1], agg.Failures[0].Command)
	assert.Same(t, batch[3], agg.Failures[1].Command)
	assert.Equal(t, 4, agg.Attempts)
	assert.Contains(t, err.Error(), "commit failed for 2 of 4 commands")

	for name, d := range f.drivers {
		assert.Equal(t, int64(1), d.Commits.Load(), name)
		assert.Equal(t, int64(1), d.Closes.Load(), name)
	}
}

func TestBeginTransactionsDoesNotUnwind(t *testing.T) {
	f := newFixture(t, "orders", "audit")
	ctx := context.Background()
	f.drivers["audit"].BeginErr = errors.New("too many transactions")

	cmdA := command.New("x").On("orders")
	cmdB := command.New("x").On("audit")
	cmdC := command.New("x").On("billing")
	batch := []*command.Command{cmdA, cmdB, cmdC}

	err := f.coord.BeginTransactions(ctx, batch)
	var agg *txn.AggregateTransactionError
	require.ErrorAs(t, err, &agg)
	assert.Equal(t, txn.ActionBegin, agg.Action)
	require.Len(t, agg.Failures, 2)
	assert.Same(t, cmdB, agg.Failures[0].Command)
	var nc *core.NotConfiguredError
	assert.ErrorAs(t, agg.FailureFor(cmdC), &nc)

	assert.True(t, cmdA.InTransaction(), "begun transaction is kept")
	assert.False(t, cmdB.InTransaction())
	assert.Equal(t, int64(1), f.drivers["audit"].Closes.Load(), "failed begin releases its connection")

	require.NoError(t, f.coord.RollbackTransactions(ctx, batch))
	assert.Equal(t, int64(1), f.drivers["orders"].Rollbacks.Load())
	assert.Equal(t, int64(1), f.drivers["orders"].Closes.Load())
}

func TestRollbackReleasesOnFailure(t *testing.T) {
	f := newFixture(t, "orders")
	ctx := context.Background()
	rbErr := errors.New("connection reset")
	f.drivers["orders"].RollbackErr = rbErr

	cmd := command.New("x")
	require.NoError(t, f.coord.Begin(ctx, cmd, nil))

	err := f.coord.RollbackTransactions(ctx, []*command.Command{cmd})
	assert.ErrorIs(t, err, rbErr)
	assert.Nil(t, cmd.Transaction)
	assert.Equal(t, int64(1), f.drivers["orders"].Closes.Load())
}

func TestSingleCommandOperations(t *testing.T) {
	f := newFixture(t, "orders")
	ctx := context.Background()

	t.Run("commit without transaction", func(t *testing.T) {
		assert.ErrorIs(t, f.coord.Commit(ctx, command.New("x")), txn.ErrNoTransaction)
	})

	t.Run("rollback without transaction", func(t *testing.T) {
		assert.NoError(t, f.coord.Rollback(ctx, command.New("x")))
	})

	t.Run("begin twice", func(t *testing.T) {
		cmd := command.New("x")
		require.NoError(t, f.coord.Begin(ctx, cmd, nil))
		assert.ErrorIs(t, f.coord.Begin(ctx, cmd, nil), txn.ErrTransactionActive)
		require.NoError(t, f.coord.Rollback(ctx, cmd))
	})

	t.Run("begin with options", func(t *testing.T) {
		cmd := command.New("x")
		require.NoError(t, f.coord.Begin(ctx, cmd, &sql.TxOptions{Isolation: sql.LevelDefault, ReadOnly: true}))
		require.NoError(t, f.coord.Commit(ctx, cmd))
	})
}

func TestObserver(t *testing.T) {
	type outcome struct {
		action txn.Action
		failed bool
	}
	var seen []outcome
	f := newFixture(t, "orders")
	coord := txn.New(f.reg, txn.WithObserver(func(_ context.Context, a txn.Action, _ *command.Command, err error) {
		seen = append(seen, outcome{action: a, failed: err != nil})
	}))

	batch := []*command.Command{command.New("x"), command.New("y").On("missing")}
	_ = coord.BeginTransactions(context.Background(), batch)
	_ = coord.RollbackTransactions(context.Background(), batch)

	assert.Equal(t, []outcome{
		{txn.ActionBegin, false},
		{txn.ActionBegin, true},
		{txn.ActionRollback, false},
		{txn.ActionRollback, false},
	}, seen)
}
