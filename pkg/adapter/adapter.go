// Package adapter defines the client-kind contract for LeapData.
//
// An Adapter knows how to open a database/sql pool for one kind of data
// source and how to translate kind-specific parts of a command: parameter
// binding style, stored-procedure call syntax, table-direct queries and
// catalog switching. Concrete adapters live in pkg/adapters/ subdirectories
// and register themselves in init().
package adapter

import (
	"context"
	"database/sql"
	"errors"

	"github.com/leapstack-labs/leapdata/pkg/core"
)

// ErrUnsupported is returned when a client kind cannot perform an operation.
var ErrUnsupported = errors.New("operation not supported by this data source kind")

// Config is an alias for core.AdapterConfig.
type Config = core.AdapterConfig

// BindStyle selects how parameters are passed to the driver.
type BindStyle int

const (
	// Positional passes parameters in list order.
	Positional BindStyle = iota
	// Named passes parameters as sql.NamedArg.
	Named
)

func (s BindStyle) String() string {
	if s == Named {
		return "named"
	}
	return "positional"
}

// Adapter is implemented once per client kind.
type Adapter interface {
	// Kind returns the client kind name used in configuration.
	Kind() string

	// Open creates a connection pool. The pool is verified with a ping.
	// Connections acquired with a context carrying a Principal authenticate
	// as that principal when the kind supports it.
	Open(ctx context.Context, cfg Config) (*sql.DB, error)

	// BindStyle reports how parameters are bound.
	BindStyle() BindStyle

	// ProcedureCall renders a call to a stored procedure taking argc arguments.
	ProcedureCall(name string, argc int) (string, error)

	// TableQuery renders the query that reads every row of table.
	TableQuery(table string) (string, error)

	// CurrentDatabase returns the catalog conn is attached to.
	CurrentDatabase(ctx context.Context, conn *sql.Conn) (string, error)

	// ChangeDatabase switches conn to another catalog.
	ChangeDatabase(ctx context.Context, conn *sql.Conn, name string) error
}
