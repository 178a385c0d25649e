package command

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingUpdateCommand is returned when a changed row needs an insert,
// update or delete command that the DataSetCommand does not define.
var ErrMissingUpdateCommand = errors.New("no command defined for row state")

// RowState tracks pending changes of a Row.
type RowState int

const (
	Unchanged RowState = iota
	Added
	Modified
	Deleted
)

func (s RowState) String() string {
	switch s {
	case Unchanged:
		return "unchanged"
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	default:
		return fmt.Sprintf("rowstate(%d)", int(s))
	}
}

// Row is one record of a Table.
type Row struct {
	Values []any
	State  RowState
	table  *Table
}

// Get returns the value of the named column, or nil if it does not exist.
func (r *Row) Get(column string) any {
	idx := r.table.ColumnIndex(column)
	if idx < 0 || idx >= len(r.Values) {
		return nil
	}
	return r.Values[idx]
}

// Set assigns a column value. An unchanged row becomes Modified.
func (r *Row) Set(column string, value any) error {
	idx := r.table.ColumnIndex(column)
	if idx < 0 {
		return fmt.Errorf("table %q has no column %q", r.table.Name, column)
	}
	for len(r.Values) <= idx {
		r.Values = append(r.Values, nil)
	}
	r.Values[idx] = value
	if r.State == Unchanged {
		r.State = Modified
	}
	return nil
}

// Delete marks the row for deletion. An added row is dropped from its table.
func (r *Row) Delete() {
	if r.State == Added {
		r.table.remove(r)
		return
	}
	r.State = Deleted
}

// Table is a named, column-ordered set of rows.
type Table struct {
	Name    string
	Columns []string
	Rows    []*Row
}

// NewTable returns an empty table.
func NewTable(name string, columns ...string) *Table {
	return &Table{Name: name, Columns: columns}
}

// ColumnIndex returns the position of column (case-insensitive), or -1.
func (t *Table) ColumnIndex(column string) int {
	for i, c := range t.Columns {
		if strings.EqualFold(c, column) {
			return i
		}
	}
	return -1
}

// AddRow appends a row in the Added state.
func (t *Table) AddRow(values ...any) *Row {
	r := &Row{Values: values, State: Added, table: t}
	t.Rows = append(t.Rows, r)
	return r
}

// LoadRow appends a row in the Unchanged state, as read from a data source.
func (t *Table) LoadRow(values ...any) *Row {
	r := &Row{Values: values, State: Unchanged, table: t}
	t.Rows = append(t.Rows, r)
	return r
}

// Changes returns the rows with pending changes, in table order.
func (t *Table) Changes() []*Row {
	var out []*Row
	for _, r := range t.Rows {
		if r.State != Unchanged {
			out = append(out, r)
		}
	}
	return out
}

// AcceptChanges drops deleted rows and marks the rest Unchanged.
func (t *Table) AcceptChanges() {
	kept := t.Rows[:0]
	for _, r := range t.Rows {
		if r.State == Deleted {
			continue
		}
		r.State = Unchanged
		kept = append(kept, r)
	}
	clear(t.Rows[len(kept):])
	t.Rows = kept
}

// AcceptRow accepts the change of a single row.
func (t *Table) AcceptRow(r *Row) {
	if r.State == Deleted {
		t.remove(r)
		return
	}
	r.State = Unchanged
}

func (t *Table) remove(r *Row) {
	for i, existing := range t.Rows {
		if existing == r {
			t.Rows = append(t.Rows[:i], t.Rows[i+1:]...)
			return
		}
	}
}

// DataSet is an ordered collection of tables.
type DataSet struct {
	Tables []*Table
}

// Table returns the table with the given name (case-insensitive), or nil.
func (ds *DataSet) Table(name string) *Table {
	for _, t := range ds.Tables {
		if strings.EqualFold(t.Name, name) {
			return t
		}
	}
	return nil
}

// AddTable appends t. If a table with the same name already exists, t is
// renamed to name_2, name_3, ... using the first free suffix. Existing
// tables are never replaced or modified.
func (ds *DataSet) AddTable(t *Table) *Table {
	if ds.Table(t.Name) != nil {
		base := t.Name
		for n := 2; ; n++ {
			candidate := fmt.Sprintf("%s_%d", base, n)
			if ds.Table(candidate) == nil {
				t.Name = candidate
				break
			}
		}
	}
	ds.Tables = append(ds.Tables, t)
	return t
}

// AcceptChanges accepts pending changes in every table.
func (ds *DataSet) AcceptChanges() {
	for _, t := range ds.Tables {
		t.AcceptChanges()
	}
}

// DefaultTableName returns the name given to the i-th unnamed result set:
// Table, Table1, Table2, ...
func DefaultTableName(i int) string {
	if i == 0 {
		return "Table"
	}
	return fmt.Sprintf("Table%d", i)
}

// DataSetCommand reads result sets into a DataSet and writes row changes back.
type DataSetCommand struct {
	Select *Command
	Insert *Command
	Update *Command
	Delete *Command

	// DataSet receives filled tables. A nil DataSet is created on fill.
	DataSet *DataSet

	// TableNames names result sets in order. Result sets beyond the list get
	// default names.
	TableNames []string

	// SourceTable is the table UpdateDataSet writes back. Empty means the
	// first table.
	SourceTable string
}

// TableName returns the name for the i-th result set.
func (c *DataSetCommand) TableName(i int) string {
	if i < len(c.TableNames) && c.TableNames[i] != "" {
		return c.TableNames[i]
	}
	return DefaultTableName(i)
}

// Source returns the table UpdateDataSet writes back, or nil.
func (c *DataSetCommand) Source() *Table {
	if c.DataSet == nil || len(c.DataSet.Tables) == 0 {
		return nil
	}
	if c.SourceTable == "" {
		return c.DataSet.Tables[0]
	}
	return c.DataSet.Table(c.SourceTable)
}

// CommandFor returns the write-back command for a row state.
func (c *DataSetCommand) CommandFor(state RowState) (*Command, error) {
	var cmd *Command
	switch state {
	case Added:
		cmd = c.Insert
	case Modified:
		cmd = c.Update
	case Deleted:
		cmd = c.Delete
	default:
		return nil, nil
	}
	if cmd == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingUpdateCommand, state)
	}
	return cmd, nil
}
