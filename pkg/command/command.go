// Package command defines the uniform command model: commands, parameters,
// execution hooks, transaction handles and the tabular DataSet container.
//
// A Command carries everything a data-access client needs to run one native
// call. Specializations wrap a Command for streaming (Loader), structured XML
// (XMLReader) and tabular read/write-back (DataSetCommand).
package command

import (
	"fmt"
	"time"
)

// Kind selects how Command.Text is interpreted.
type Kind int

const (
	// Text is a literal SQL statement.
	Text Kind = iota
	// StoredProcedure names a procedure; parameters become its arguments.
	StoredProcedure
	// TableDirect names a table; the command reads all of its rows.
	TableDirect
)

func (k Kind) String() string {
	switch k {
	case Text:
		return "text"
	case StoredProcedure:
		return "stored_procedure"
	case TableDirect:
		return "table_direct"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind converts a kind name as used in configuration and CLI flags.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "", "text":
		return Text, nil
	case "stored_procedure", "procedure", "sp":
		return StoredProcedure, nil
	case "table_direct", "table":
		return TableDirect, nil
	default:
		return Text, fmt.Errorf("unknown command kind %q (expected text, procedure or table)", s)
	}
}

// Command is one executable unit addressed at a named data source.
type Command struct {
	// Text is the statement, procedure name or table name depending on Kind.
	Text string
	Kind Kind

	// Timeout bounds a single execution. Zero means no deadline.
	Timeout time.Duration

	Parameters Parameters

	// Transaction, when set and open, forces execution on its connection.
	Transaction *TxHandle

	// Database is the catalog to switch to before executing. Empty keeps the
	// connection's current catalog.
	Database string

	// DataSource is the target name; empty targets the default data source.
	DataSource string

	Hooks Hooks

	// Elapsed is the measured duration of the last execution.
	Elapsed time.Duration
}

// New returns a text command.
func New(text string) *Command {
	return &Command{Text: text, Kind: Text}
}

// NewProcedure returns a stored-procedure command.
func NewProcedure(name string) *Command {
	return &Command{Text: name, Kind: StoredProcedure}
}

// NewTableDirect returns a table-direct command.
func NewTableDirect(table string) *Command {
	return &Command{Text: table, Kind: TableDirect}
}

// On sets the target data source and returns the command.
func (c *Command) On(dataSource string) *Command {
	c.DataSource = dataSource
	return c
}

// InTransaction reports whether an open transaction is bound to the command.
func (c *Command) InTransaction() bool {
	return c.Transaction != nil && c.Transaction.State == TxOpen
}

// Hooks are per-command execution callbacks. All fields are optional.
type Hooks struct {
	BeforeExecute func(cmd *Command)
	AfterExecute  func(cmd *Command, elapsed time.Duration)

	// OnDataException reports whether err is handled. A handled error is
	// swallowed and the primitive returns its default result.
	OnDataException func(cmd *Command, err error) bool
}

// RunBefore invokes the BeforeExecute hook if set.
func (c *Command) RunBefore() {
	if c.Hooks.BeforeExecute != nil {
		c.Hooks.BeforeExecute(c)
	}
}

// RunAfter records elapsed and invokes the AfterExecute hook if set.
func (c *Command) RunAfter(elapsed time.Duration) {
	c.Elapsed = elapsed
	if c.Hooks.AfterExecute != nil {
		c.Hooks.AfterExecute(c, elapsed)
	}
}

// HandleException asks the OnDataException hook about err.
// Without a hook nothing is handled.
func (c *Command) HandleException(err error) bool {
	if c.Hooks.OnDataException == nil {
		return false
	}
	return c.Hooks.OnDataException(c, err)
}
