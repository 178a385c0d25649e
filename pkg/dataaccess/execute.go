package dataaccess

import (
	"context"
	"database/sql"
	"encoding/xml"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/leapstack-labs/leapdata/pkg/adapter"
	"github.com/leapstack-labs/leapdata/pkg/command"
)

// run executes fn inside the execution envelope and reports whether a
// failure was handled by the exception policy.
//
// Resolution failures are wrapped with the data source name and bypass the
// policy. Failures of fn are returned unmodified unless handled.
func (c *Client) run(ctx context.Context, op Operation, cmd *command.Command, fn func(ctx context.Context, res *Resolution) error) (handled bool, err error) {
	var failure error
	c.before(ctx, op, cmd)
	start := time.Now()
	defer func() {
		c.after(ctx, Execution{
			DataSource: c.Name(),
			Operation:  op,
			Command:    cmd,
			Elapsed:    time.Since(start),
			Err:        failure,
			Handled:    handled,
		})
	}()

	res, err := c.resolver.Resolve(ctx, cmd, c.ds)
	if err != nil {
		failure = fmt.Errorf("data source %q: %w", c.ds.Name, err)
		return false, failure
	}
	defer res.Release()

	ectx := ctx
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		ectx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	if err := fn(ectx, res); err != nil {
		failure = err
		if c.policy(cmd, err) {
			c.logger.Warn("data exception handled",
				slog.String("operation", string(op)),
				slog.String("command", cmd.Text),
				slog.String("error", err.Error()))
			return true, nil
		}
		return false, err
	}
	return false, nil
}

// prepared is a command translated into a native call.
type prepared struct {
	query string
	args  []any
	bound []*command.Parameter
}

// finish copies back Out/InOut values on success and clears every handle.
func (p *prepared) finish(err error) {
	for _, param := range p.bound {
		if err == nil {
			param.Collect()
		} else {
			param.Reset()
		}
	}
}

// prepare renders the statement for cmd and binds its parameters.
func (c *Client) prepare(cmd *command.Command) (*prepared, error) {
	var (
		query string
		err   error
	)
	switch cmd.Kind {
	case command.Text:
		query = cmd.Text
	case command.StoredProcedure:
		query, err = c.adapter.ProcedureCall(cmd.Text, cmd.Parameters.Len())
	case command.TableDirect:
		query, err = c.adapter.TableQuery(cmd.Text)
		if err != nil {
			return nil, err
		}
		return &prepared{query: query}, nil
	default:
		err = fmt.Errorf("unsupported command kind %s", cmd.Kind)
	}
	if err != nil {
		return nil, err
	}

	p := &prepared{query: query}
	named := c.adapter.BindStyle() == adapter.Named
	for _, param := range cmd.Parameters.All() {
		arg, err := param.Bind()
		if err != nil {
			p.finish(err)
			return nil, err
		}
		p.bound = append(p.bound, param)
		if named {
			arg = sql.Named(param.BareName(), arg)
		}
		p.args = append(p.args, arg)
	}
	return p, nil
}

// exec runs a prepared non-query on res.
func (c *Client) exec(ctx context.Context, res *Resolution, cmd *command.Command) (int64, error) {
	p, err := c.prepare(cmd)
	if err != nil {
		return 0, err
	}
	result, err := res.target().ExecContext(ctx, p.query, p.args...)
	if err != nil {
		p.finish(err)
		return 0, err
	}
	n, err := result.RowsAffected()
	p.finish(err)
	return n, err
}

// query runs a prepared query on res and hands the open cursor to fn.
// The cursor is closed before Out/InOut values are collected.
func (c *Client) query(ctx context.Context, res *Resolution, cmd *command.Command, fn func(rows *sql.Rows) error) (err error) {
	p, err := c.prepare(cmd)
	if err != nil {
		return err
	}
	defer func() { p.finish(err) }()

	rows, err := res.target().QueryContext(ctx, p.query, p.args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	ferr := fn(rows)
	cerr := rows.Close()
	if ferr != nil {
		return ferr
	}
	if err := rows.Err(); err != nil {
		return err
	}
	return cerr
}

// ExecuteNonQuery runs cmd and returns the number of affected rows.
// A handled failure returns -1.
func (c *Client) ExecuteNonQuery(ctx context.Context, cmd *command.Command) (int64, error) {
	var n int64
	handled, err := c.run(ctx, OpNonQuery, cmd, func(ctx context.Context, res *Resolution) error {
		var err error
		n, err = c.exec(ctx, res, cmd)
		return err
	})
	if handled {
		return -1, nil
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

// ExecuteScalar runs cmd and returns the first column of the first row, or
// nil when there are no rows. A handled failure returns nil.
func (c *Client) ExecuteScalar(ctx context.Context, cmd *command.Command) (any, error) {
	var value any
	_, err := c.run(ctx, OpScalar, cmd, func(ctx context.Context, res *Resolution) error {
		return c.query(ctx, res, cmd, func(rows *sql.Rows) error {
			if !rows.Next() {
				return nil
			}
			cols, err := rows.Columns()
			if err != nil {
				return err
			}
			dest := make([]any, len(cols))
			ptrs := make([]any, len(cols))
			for i := range dest {
				ptrs[i] = &dest[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				return err
			}
			if len(dest) > 0 {
				value = normalize(dest[0])
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// ExecuteDataLoader streams the rows of l to its consumer. The cursor is
// open when the consumer is called and closed when it returns.
func (c *Client) ExecuteDataLoader(ctx context.Context, l *command.Loader) error {
	if l.Consumer == nil {
		return fmt.Errorf("loader for %q has no row consumer", l.Text)
	}
	_, err := c.run(ctx, OpLoader, l.Command, func(ctx context.Context, res *Resolution) error {
		return c.query(ctx, res, l.Command, func(rows *sql.Rows) error {
			return l.Consumer.ConsumeRows(ctx, rows)
		})
	})
	return err
}

// ExecuteDataXML concatenates the first column of every returned row, in
// order, and hands the document to the consumer as an *xml.Decoder.
func (c *Client) ExecuteDataXML(ctx context.Context, r *command.XMLReader) error {
	if r.Consumer == nil {
		return fmt.Errorf("xml reader for %q has no consumer", r.Text)
	}
	_, err := c.run(ctx, OpXML, r.Command, func(ctx context.Context, res *Resolution) error {
		var doc strings.Builder
		err := c.query(ctx, res, r.Command, func(rows *sql.Rows) error {
			for {
				for rows.Next() {
					var fragment sql.NullString
					if err := rows.Scan(&fragment); err != nil {
						return err
					}
					doc.WriteString(fragment.String)
				}
				if !rows.NextResultSet() {
					return nil
				}
			}
		})
		if err != nil {
			return err
		}
		return r.Consumer.ConsumeXML(ctx, xml.NewDecoder(strings.NewReader(doc.String())))
	})
	return err
}

// normalize turns driver byte slices into strings.
func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
