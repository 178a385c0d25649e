package dataaccess

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/leapstack-labs/leapdata/pkg/command"
)

// ExecuteDataSet runs dc.Select and fills one table per result set into
// dc.DataSet, creating the container when it is nil. Tables are added only
// after every result set was read, using the collision rule of
// command.DataSet.AddTable.
func (c *Client) ExecuteDataSet(ctx context.Context, dc *command.DataSetCommand) error {
	if dc.Select == nil {
		return errors.New("data set command has no select command")
	}
	if dc.DataSet == nil {
		dc.DataSet = &command.DataSet{}
	}

	_, err := c.run(ctx, OpDataSet, dc.Select, func(ctx context.Context, res *Resolution) error {
		var tables []*command.Table
		err := c.query(ctx, res, dc.Select, func(rows *sql.Rows) error {
			for i := 0; ; i++ {
				t, err := readTable(rows, dc.TableName(i))
				if err != nil {
					return err
				}
				tables = append(tables, t)
				if !rows.NextResultSet() {
					return nil
				}
			}
		})
		if err != nil {
			return err
		}
		for _, t := range tables {
			dc.DataSet.AddTable(t)
		}
		return nil
	})
	return err
}

func readTable(rows *sql.Rows, name string) (*command.Table, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	t := command.NewTable(name, cols...)
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range values {
			values[i] = normalize(v)
		}
		t.LoadRow(values...)
	}
	return t, rows.Err()
}

// UpdateDataSet writes the pending changes of the source table back with the
// Insert, Update and Delete sub-commands. Every sub-command runs on the same
// resolved connection, and inside the bound transaction if there is one.
// Parameters with a SourceColumn take their value from the row; Out and InOut
// values are copied back into the row. Each row written is accepted.
// The total number of affected rows is returned.
func (c *Client) UpdateDataSet(ctx context.Context, dc *command.DataSetCommand) (int64, error) {
	lead := leadCommand(dc)
	if lead == nil {
		return 0, errors.New("data set command has no commands")
	}
	source := dc.Source()
	if source == nil {
		return 0, fmt.Errorf("data set has no source table %q", dc.SourceTable)
	}

	var total int64
	handled, err := c.run(ctx, OpUpdate, lead, func(ctx context.Context, res *Resolution) error {
		for _, row := range source.Changes() {
			sub, err := dc.CommandFor(row.State)
			if err != nil {
				return err
			}
			if sub == nil {
				continue
			}
			bindRow(sub, row)
			n, err := c.exec(ctx, res, sub)
			if err != nil {
				return err
			}
			total += n
			copyBack(sub, row, source)
			source.AcceptRow(row)
		}
		return nil
	})
	if handled {
		return -1, nil
	}
	return total, err
}

// leadCommand is the command whose data source, catalog and transaction the
// whole update resolves against.
func leadCommand(dc *command.DataSetCommand) *command.Command {
	for _, cmd := range []*command.Command{dc.Select, dc.Insert, dc.Update, dc.Delete} {
		if cmd != nil {
			return cmd
		}
	}
	return nil
}

func bindRow(cmd *command.Command, row *command.Row) {
	for _, p := range cmd.Parameters.All() {
		if p.SourceColumn == "" || p.Direction == command.Out {
			continue
		}
		p.Value = row.Get(p.SourceColumn)
	}
}

func copyBack(cmd *command.Command, row *command.Row, t *command.Table) {
	for _, p := range cmd.Parameters.All() {
		if p.SourceColumn == "" || p.Direction == command.In {
			continue
		}
		idx := t.ColumnIndex(p.SourceColumn)
		if idx < 0 {
			continue
		}
		for len(row.Values) <= idx {
			row.Values = append(row.Values, nil)
		}
		row.Values[idx] = p.Value
	}
}
