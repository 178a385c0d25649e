package commands

import (
	"context"
	"database/sql"
	"encoding/xml"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapdata/pkg/command"
	"github.com/leapstack-labs/leapdata/pkg/dataaccess"
)

// NewExecCommand creates the exec command.
func NewExecCommand() *cobra.Command {
	opts := &CommandOptions{}

	cmd := &cobra.Command{
		Use:   "exec [SQL]",
		Short: "Execute a statement and report affected rows",
		Long: `Execute a statement, stored procedure or table command against a data source
and report the number of affected rows. Out and InOut parameter values are
printed after execution.`,
		Example: `  # Run an update on the default data source
  leapdata exec "UPDATE orders SET status = 'shipped' WHERE id = 1"

  # Call a stored procedure with an InOut parameter
  leapdata exec -d orders -k procedure bump_counter --inout counter=41`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(cmd, args, opts)
		},
	}
	opts.register(cmd.Flags())
	registerDataSourceCompletion(cmd)
	return cmd
}

func runExec(cmd *cobra.Command, args []string, opts *CommandOptions) error {
	app, err := GetApp(cmd)
	if err != nil {
		return err
	}
	c, client, err := prepareCommand(cmd, app, args, opts)
	if err != nil {
		return err
	}

	n, err := client.ExecuteNonQuery(cmd.Context(), c)
	if err != nil {
		return err
	}

	app.Renderer.Success("%d rows affected (%s)", n, c.Elapsed)
	if out := outputs(c); out != nil {
		return app.Renderer.Data(out)
	}
	return nil
}

// NewQueryCommand creates the query command.
func NewQueryCommand() *cobra.Command {
	opts := &CommandOptions{}

	cmd := &cobra.Command{
		Use:   "query [SQL]",
		Short: "Run a query and print its rows",
		Long: `Run a query against a data source and stream its rows to the configured
output format. With --kind table the argument is a table name and every row
of the table is returned.`,
		Example: `  leapdata query "SELECT id, status FROM orders" -d orders
  leapdata query -k table audit_log -o json
  echo "SELECT 1" | leapdata query`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, args, opts)
		},
	}
	opts.register(cmd.Flags())
	registerDataSourceCompletion(cmd)
	return cmd
}

func runQuery(cmd *cobra.Command, args []string, opts *CommandOptions) error {
	app, err := GetApp(cmd)
	if err != nil {
		return err
	}
	c, client, err := prepareCommand(cmd, app, args, opts)
	if err != nil {
		return err
	}

	rs := &resultSet{}
	if err := client.ExecuteDataLoader(cmd.Context(), command.NewLoader(c, rs)); err != nil {
		return err
	}
	return app.Renderer.Rows(rs.cols, rs.rows)
}

// NewScalarCommand creates the scalar command.
func NewScalarCommand() *cobra.Command {
	opts := &CommandOptions{}

	cmd := &cobra.Command{
		Use:     "scalar [SQL]",
		Short:   "Run a query and print the first column of the first row",
		Example: `  leapdata scalar "SELECT count(*) FROM orders"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := GetApp(cmd)
			if err != nil {
				return err
			}
			c, client, err := prepareCommand(cmd, app, args, opts)
			if err != nil {
				return err
			}
			v, err := client.ExecuteScalar(cmd.Context(), c)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), formatScalar(v))
			return err
		},
	}
	opts.register(cmd.Flags())
	registerDataSourceCompletion(cmd)
	return cmd
}

// NewXMLCommand creates the xml command.
func NewXMLCommand() *cobra.Command {
	opts := &CommandOptions{}

	cmd := &cobra.Command{
		Use:   "xml [SQL]",
		Short: "Run a query returning XML text and print the document",
		Long: `Run a query whose first column holds XML text. Rows from every result set
are concatenated in order, checked for well-formedness and printed.`,
		Example: `  leapdata xml "SELECT doc FROM reports WHERE id = 7"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := GetApp(cmd)
			if err != nil {
				return err
			}
			c, client, err := prepareCommand(cmd, app, args, opts)
			if err != nil {
				return err
			}
			return client.ExecuteDataXML(cmd.Context(), command.NewXMLReader(c, xmlPrinter(cmd.OutOrStdout())))
		},
	}
	opts.register(cmd.Flags())
	registerDataSourceCompletion(cmd)
	return cmd
}

func prepareCommand(cmd *cobra.Command, app *App, args []string, opts *CommandOptions) (*command.Command, *dataaccess.Client, error) {
	text, err := statementText(cmd, args, opts.Input)
	if err != nil {
		return nil, nil, err
	}
	c, err := opts.Build(text)
	if err != nil {
		return nil, nil, err
	}
	client, err := app.Client(c.DataSource)
	if err != nil {
		return nil, nil, err
	}
	return c, client, nil
}

// resultSet buffers the rows of a cursor for rendering.
type resultSet struct {
	cols []string
	rows [][]any
}

func (rs *resultSet) ConsumeRows(_ context.Context, rows *sql.Rows) error {
	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	rs.cols = cols
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		rs.rows = append(rs.rows, values)
	}
	return rows.Err()
}

func formatScalar(v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(v)
	}
	return fmt.Sprintf("%v", v)
}

// xmlPrinter re-encodes the document token by token, which also rejects
// malformed XML.
func xmlPrinter(w io.Writer) command.XMLConsumer {
	return command.XMLConsumerFunc(func(_ context.Context, dec *xml.Decoder) error {
		enc := xml.NewEncoder(w)
		enc.Indent("", "  ")
		for {
			tok, err := dec.Token()
			if err == io.EOF {
				break
			}
			if err != nil {
				return fmt.Errorf("invalid XML: %w", err)
			}
			if err := enc.EncodeToken(xml.CopyToken(tok)); err != nil {
				return err
			}
		}
		if err := enc.Close(); err != nil {
			return err
		}
		_, err := fmt.Fprintln(w)
		return err
	})
}
