package dataaccess_test

import (
	"context"
	"database/sql/driver"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapdata/internal/testutil"
	"github.com/leapstack-labs/leapdata/pkg/command"
)

func ordersAndLines() driver.Rows {
	return testutil.NewRows(
		testutil.ResultSet{
			Columns: []string{"id", "customer"},
			Rows:    [][]driver.Value{{int64(1), "acme"}, {int64(2), "globex"}},
		},
		testutil.ResultSet{
			Columns: []string{"order_id", "sku"},
			Rows:    [][]driver.Value{{int64(1), "A-1"}},
		},
		testutil.ResultSet{
			Columns: []string{"n"},
		},
	)
}

func TestExecuteDataSet(t *testing.T) {
	d := &testutil.StubDriver{
		QueryFunc: func(string, []driver.NamedValue) (driver.Rows, error) {
			return ordersAndLines(), nil
		},
	}
	c, _ := newClient(t, d)

	dc := &command.DataSetCommand{
		Select:     command.New("SELECT * FROM orders; SELECT * FROM lines; SELECT 0"),
		TableNames: []string{"orders"},
	}
	require.NoError(t, c.ExecuteDataSet(context.Background(), dc))
	require.NotNil(t, dc.DataSet)

	names := make([]string, 0, len(dc.DataSet.Tables))
	for _, tbl := range dc.DataSet.Tables {
		names = append(names, tbl.Name)
	}
	assert.Equal(t, []string{"orders", "Table1", "Table2"}, names)

	orders := dc.DataSet.Table("orders")
	require.Len(t, orders.Rows, 2)
	assert.Equal(t, "globex", orders.Rows[1].Get("customer"))
	assert.Equal(t, command.Unchanged, orders.Rows[1].State)
	assert.Empty(t, dc.DataSet.Table("Table2").Rows)
}

func TestExecuteDataSetNameCollision(t *testing.T) {
	d := &testutil.StubDriver{
		QueryFunc: func(string, []driver.NamedValue) (driver.Rows, error) {
			return ordersAndLines(), nil
		},
	}
	c, _ := newClient(t, d)

	existing := command.NewTable("orders", "id")
	existing.LoadRow(int64(99))
	dc := &command.DataSetCommand{
		Select:     command.New("SELECT ..."),
		DataSet:    &command.DataSet{Tables: []*command.Table{existing}},
		TableNames: []string{"orders", "orders"},
	}
	require.NoError(t, c.ExecuteDataSet(context.Background(), dc))

	require.Len(t, dc.DataSet.Tables, 4)
	assert.Same(t, existing, dc.DataSet.Tables[0])
	assert.Equal(t, []any{int64(99)}, existing.Rows[0].Values, "existing table untouched")
	assert.Equal(t, "orders_2", dc.DataSet.Tables[1].Name)
	assert.Equal(t, "orders_3", dc.DataSet.Tables[2].Name)
	assert.Equal(t, "Table2", dc.DataSet.Tables[3].Name)
}

func TestExecuteDataSetFailureAddsNothing(t *testing.T) {
	boom := errors.New("syntax error")
	d := &testutil.StubDriver{
		QueryFunc: func(string, []driver.NamedValue) (driver.Rows, error) { return nil, boom },
	}
	c, _ := newClient(t, d)

	t.Run("unhandled", func(t *testing.T) {
		dc := &command.DataSetCommand{Select: command.New("SELEC")}
		assert.Equal(t, boom, c.ExecuteDataSet(context.Background(), dc))
		assert.Empty(t, dc.DataSet.Tables)
	})

	t.Run("handled", func(t *testing.T) {
		sel := command.New("SELEC")
		sel.Hooks.OnDataException = func(*command.Command, error) bool { return true }
		dc := &command.DataSetCommand{Select: sel}
		require.NoError(t, c.ExecuteDataSet(context.Background(), dc))
		assert.Empty(t, dc.DataSet.Tables)
	})
}

func TestUpdateDataSet(t *testing.T) {
	var nextID int64 = 100
	d := &testutil.StubDriver{
		ExecFunc: func(query string, args []driver.NamedValue) (driver.Result, error) {
			if strings.HasPrefix(query, "INSERT") {
				out, err := testutil.OutArg(args[0])
				if err != nil {
					return nil, err
				}
				nextID++
				*out.Dest.(*any) = nextID
			}
			return driver.RowsAffected(1), nil
		},
	}
	c, _ := newClient(t, d)

	orders := command.NewTable("orders", "id", "customer")
	orders.LoadRow(int64(1), "acme")
	modified := orders.LoadRow(int64(2), "globex")
	deleted := orders.LoadRow(int64(3), "initech")
	added := orders.AddRow(nil, "umbrella")

	require.NoError(t, modified.Set("customer", "globex corp"))
	deleted.Delete()

	insert := command.New("INSERT INTO orders (customer) VALUES (?) RETURNING id")
	insert.Parameters.Add(&command.Parameter{Name: "id", Direction: command.Out, SourceColumn: "id"})
	insert.Parameters.Add(&command.Parameter{Name: "customer", SourceColumn: "customer"})

	update := command.New("UPDATE orders SET customer = ? WHERE id = ?")
	update.Parameters.Add(&command.Parameter{Name: "customer", SourceColumn: "customer"})
	update.Parameters.Add(&command.Parameter{Name: "id", SourceColumn: "id"})

	del := command.New("DELETE FROM orders WHERE id = ?")
	del.Parameters.Add(&command.Parameter{Name: "id", SourceColumn: "id"})

	dc := &command.DataSetCommand{
		Insert:  insert,
		Update:  update,
		Delete:  del,
		DataSet: &command.DataSet{Tables: []*command.Table{orders}},
	}

	n, err := c.UpdateDataSet(context.Background(), dc)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	assert.Equal(t, int64(101), added.Get("id"))
	assert.Empty(t, orders.Changes())
	require.Len(t, orders.Rows, 3)
	for _, r := range orders.Rows {
		assert.NotEqual(t, int64(3), r.Get("id"))
	}
	assert.Equal(t, "globex corp", update.Parameters.Value("customer"))

	assert.Equal(t, int64(1), d.Opens.Load(), "all rows share one connection")
	assert.Len(t, d.Statements(), 3)
}

func TestUpdateDataSetMissingCommand(t *testing.T) {
	d := &testutil.StubDriver{}
	c, _ := newClient(t, d)

	orders := command.NewTable("orders", "id")
	orders.AddRow(int64(1))
	dc := &command.DataSetCommand{
		Update:  command.New("UPDATE orders SET id = ?"),
		DataSet: &command.DataSet{Tables: []*command.Table{orders}},
	}

	_, err := c.UpdateDataSet(context.Background(), dc)
	assert.ErrorIs(t, err, command.ErrMissingUpdateCommand)
	assert.Len(t, orders.Changes(), 1)
}

func TestUpdateDataSetInsideTransaction(t *testing.T) {
	d := &testutil.StubDriver{
		ExecFunc: func(string, []driver.NamedValue) (driver.Result, error) {
			return driver.RowsAffected(1), nil
		},
	}
	c, _ := newClient(t, d)
	ctx := context.Background()

	orders := command.NewTable("orders", "id")
	orders.AddRow(int64(1))
	orders.AddRow(int64(2))

	insert := command.New("INSERT INTO orders (id) VALUES (?)")
	insert.Parameters.Add(&command.Parameter{Name: "id", SourceColumn: "id"})
	require.NoError(t, c.BeginTransaction(ctx, insert, nil))

	dc := &command.DataSetCommand{
		Insert:  insert,
		DataSet: &command.DataSet{Tables: []*command.Table{orders}},
	}
	n, err := c.UpdateDataSet(ctx, dc)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, int64(1), d.Opens.Load())
	assert.Equal(t, int64(0), d.Closes.Load())

	require.NoError(t, c.RollbackTransaction(ctx, insert))
	assert.Equal(t, int64(1), d.Rollbacks.Load())
	assert.Equal(t, int64(1), d.Closes.Load())
}

func TestUpdateDataSetNoSourceTable(t *testing.T) {
	d := &testutil.StubDriver{}
	c, _ := newClient(t, d)

	dc := &command.DataSetCommand{
		Insert:      command.New("INSERT ..."),
		DataSet:     &command.DataSet{},
		SourceTable: "orders",
	}
	_, err := c.UpdateDataSet(context.Background(), dc)
	assert.Error(t, err)
}
