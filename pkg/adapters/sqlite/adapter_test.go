package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/leapdata/pkg/adapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		name   string
		dsn    string
		params Params
		want   string
	}{
		{name: "empty is memory", want: ":memory:"},
		{name: "plain path", dsn: "app.db", want: "app.db"},
		{
			name:   "pragmas sorted",
			dsn:    "app.db",
			params: Params{Pragmas: map[string]string{"journal_mode": "wal", "foreign_keys": "on"}},
			want:   "app.db?_pragma=foreign_keys%28on%29&_pragma=journal_mode%28wal%29",
		},
		{
			name:   "existing query",
			dsn:    "file:app.db?mode=ro",
			params: Params{Pragmas: map[string]string{"busy_timeout": "5000"}},
			want:   "file:app.db?mode=ro&_pragma=busy_timeout%285000%29",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, buildDSN(tt.dsn, tt.params))
		})
	}
}

func TestAdapter_OpenAndExecute(t *testing.T) {
	ctx := context.Background()
	a := New(nil)
	assert.Equal(t, adapter.Named, a.BindStyle())

	db, err := a.Open(ctx, adapter.Config{
		DSN:    filepath.Join(t.TempDir(), "test.db"),
		Params: map[string]any{"pragmas": map[string]any{"foreign_keys": "on"}},
	})
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	_, err = db.ExecContext(ctx, "CREATE TABLE orders (id INTEGER PRIMARY KEY, status TEXT)")
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, "INSERT INTO orders (id, status) VALUES (:id, :status)",
		sql.Named("id", 1), sql.Named("status", "new"))
	require.NoError(t, err)

	q, err := a.TableQuery("orders")
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "orders"`, q)

	var id int
	var status string
	require.NoError(t, db.QueryRowContext(ctx, q).Scan(&id, &status))
	assert.Equal(t, 1, id)
	assert.Equal(t, "new", status)
}

func TestAdapter_Catalogs(t *testing.T) {
	ctx := context.Background()
	a := New(nil)

	current, err := a.CurrentDatabase(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, MainCatalog, current)

	assert.NoError(t, a.ChangeDatabase(ctx, nil, "MAIN"))
	assert.ErrorIs(t, a.ChangeDatabase(ctx, nil, "other"), adapter.ErrUnsupported)

	_, err = a.ProcedureCall("p", 0)
	assert.ErrorIs(t, err, adapter.ErrUnsupported)
}
