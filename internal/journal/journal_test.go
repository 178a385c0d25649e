package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapdata/internal/testutil"
	"github.com/leapstack-labs/leapdata/pkg/command"
	"github.com/leapstack-labs/leapdata/pkg/dataaccess"
	"github.com/leapstack-labs/leapdata/pkg/txn"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", testutil.NewTestLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// fixedClock returns successive instants one second apart.
func fixedClock(start time.Time) func() time.Time {
	next := start
	return func() time.Time {
		now := next
		next = next.Add(time.Second)
		return now
	}
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "journal.db")
	s, err := Open(path, nil)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, path, s.Path())
	version, err := s.Version()
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	// Reopening applies nothing new.
	require.NoError(t, s.Close())
	s, err = Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestAfterExecute(t *testing.T) {
	s := setupTestStore(t)
	s.now = fixedClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	ctx := context.Background()

	cmd := command.New("UPDATE orders SET status = 'shipped'")
	s.AfterExecute(ctx, dataaccess.Execution{
		DataSource: "orders",
		Operation:  dataaccess.OpNonQuery,
		Command:    cmd,
		Elapsed:    15 * time.Millisecond,
	})
	s.AfterExecute(ctx, dataaccess.Execution{
		DataSource: "audit",
		Operation:  dataaccess.OpScalar,
		Command:    command.New("SELECT count(*) FROM audit"),
		Elapsed:    time.Millisecond,
		Err:        errors.New("no such table: audit"),
		Handled:    true,
	})

	entries, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	latest := entries[0]
	assert.Equal(t, "audit", latest.DataSource)
	assert.Equal(t, "scalar", latest.Operation)
	assert.Equal(t, "no such table: audit", latest.Error)
	assert.True(t, latest.Handled)
	assert.NotEmpty(t, latest.ID)

	first := entries[1]
	assert.Equal(t, cmd.Text, first.Command)
	assert.Equal(t, 15*time.Millisecond, first.Elapsed)
	assert.Empty(t, first.Error)
	assert.False(t, first.Handled)
	assert.True(t, first.RecordedAt.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))
}

func TestAfterExecute_CanceledContext(t *testing.T) {
	s := setupTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s.AfterExecute(ctx, dataaccess.Execution{DataSource: "orders", Operation: dataaccess.OpNonQuery, Err: context.Canceled})

	entries, err := s.List(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, context.Canceled.Error(), entries[0].Error)
}

func TestList_Filter(t *testing.T) {
	s := setupTestStore(t)
	s.now = fixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	for _, e := range []Entry{
		{DataSource: "orders", Operation: "nonquery"},
		{DataSource: "Orders", Operation: "scalar", Error: "boom"},
		{DataSource: "audit", Operation: "nonquery"},
		{DataSource: "audit", Operation: "nonquery", Error: "disk full"},
	} {
		require.NoError(t, s.Record(ctx, e))
	}

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{name: "all newest first", filter: Filter{}, want: []string{"audit", "audit", "Orders", "orders"}},
		{name: "by datasource", filter: Filter{DataSource: "ORDERS"}, want: []string{"Orders", "orders"}},
		{name: "failed only", filter: Filter{FailedOnly: true}, want: []string{"audit", "Orders"}},
		{name: "limit", filter: Filter{Limit: 1}, want: []string{"audit"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := s.List(ctx, tt.filter)
			require.NoError(t, err)
			got := make([]string, 0, len(entries))
			for _, e := range entries {
				got = append(got, e.DataSource)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrune(t *testing.T) {
	s := setupTestStore(t)
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s.now = fixedClock(start)
	ctx := context.Background()

	for range 3 {
		require.NoError(t, s.Record(ctx, Entry{DataSource: "orders", Operation: "nonquery"}))
	}

	n, err := s.Prune(ctx, start.Add(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	entries, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestTxObserver(t *testing.T) {
	s := setupTestStore(t)
	observe := s.TxObserver()
	ctx := context.Background()

	observe(ctx, txn.ActionCommit, command.New("INSERT INTO audit VALUES (1)").On("audit"), errors.New("audit log full"))
	observe(ctx, txn.ActionBegin, nil, errors.New("nil command in batch"))

	entries, err := s.List(ctx, Filter{FailedOnly: true})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	ops := []string{entries[0].Operation, entries[1].Operation}
	assert.ElementsMatch(t, []string{"batch-commit", "batch-begin"}, ops)
}

func TestClosedStore(t *testing.T) {
	s := &Store{}
	assert.Error(t, s.Record(context.Background(), Entry{}))
	_, err := s.List(context.Background(), Filter{})
	assert.Error(t, err)
	assert.NoError(t, s.Close())
}
