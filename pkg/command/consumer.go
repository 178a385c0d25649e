package command

import (
	"context"
	"database/sql"
	"encoding/xml"
)

// RowConsumer reads a forward-only cursor. The cursor is open on entry and
// closed by the client after ConsumeRows returns.
type RowConsumer interface {
	ConsumeRows(ctx context.Context, rows *sql.Rows) error
}

// RowConsumerFunc adapts a function to RowConsumer.
type RowConsumerFunc func(ctx context.Context, rows *sql.Rows) error

func (f RowConsumerFunc) ConsumeRows(ctx context.Context, rows *sql.Rows) error {
	return f(ctx, rows)
}

// Loader streams the rows of a command into a consumer.
type Loader struct {
	*Command
	Consumer RowConsumer
}

// NewLoader wraps cmd with consumer.
func NewLoader(cmd *Command, consumer RowConsumer) *Loader {
	return &Loader{Command: cmd, Consumer: consumer}
}

// XMLConsumer reads an XML document produced by a command.
type XMLConsumer interface {
	ConsumeXML(ctx context.Context, dec *xml.Decoder) error
}

// XMLConsumerFunc adapts a function to XMLConsumer.
type XMLConsumerFunc func(ctx context.Context, dec *xml.Decoder) error

func (f XMLConsumerFunc) ConsumeXML(ctx context.Context, dec *xml.Decoder) error {
	return f(ctx, dec)
}

// XMLReader runs a command whose result is XML text (one or more rows of a
// single text column, concatenated in order).
type XMLReader struct {
	*Command
	Consumer XMLConsumer
}

// NewXMLReader wraps cmd with consumer.
func NewXMLReader(cmd *Command, consumer XMLConsumer) *XMLReader {
	return &XMLReader{Command: cmd, Consumer: consumer}
}
