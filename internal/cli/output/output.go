// Package output renders command results as tables, YAML or JSON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/muesli/termenv"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// Mode selects the output format.
type Mode string

// Output modes.
const (
	ModeTable Mode = "table"
	ModeYAML  Mode = "yaml"
	ModeJSON  Mode = "json"
)

// Modes lists the accepted --output values.
var Modes = []string{string(ModeTable), string(ModeYAML), string(ModeJSON)}

// Styles holds the terminal styles used for status lines.
type Styles struct {
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Muted   lipgloss.Style
	Bold    lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) *Styles {
	return &Styles{
		Success: r.NewStyle().Foreground(lipgloss.Color("2")),
		Error:   r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		Warning: r.NewStyle().Foreground(lipgloss.Color("3")),
		Muted:   r.NewStyle().Foreground(lipgloss.Color("8")),
		Bold:    r.NewStyle().Bold(true),
	}
}

// Renderer writes results to out and diagnostics to errOut.
type Renderer struct {
	out    io.Writer
	errOut io.Writer
	mode   Mode
	isTTY  bool
	Styles *Styles
}

// NewRenderer creates a renderer, detecting whether out is a terminal.
func NewRenderer(out, errOut io.Writer, mode Mode) *Renderer {
	isTTY := false
	if f, ok := out.(*os.File); ok {
		isTTY = term.IsTerminal(int(f.Fd()))
	}
	return NewRendererWithTTY(out, errOut, isTTY, mode)
}

// NewRendererWithTTY creates a renderer with an explicit terminal state.
// Colors are disabled when isTTY is false.
func NewRendererWithTTY(out, errOut io.Writer, isTTY bool, mode Mode) *Renderer {
	if mode == "" {
		mode = ModeTable
	}
	lr := lipgloss.NewRenderer(out)
	if !isTTY {
		lr.SetColorProfile(termenv.Ascii)
	}
	return &Renderer{
		out:    out,
		errOut: errOut,
		mode:   mode,
		isTTY:  isTTY,
		Styles: newStyles(lr),
	}
}

// Mode returns the output mode.
func (r *Renderer) Mode() Mode { return r.mode }

// Out returns the result writer.
func (r *Renderer) Out() io.Writer { return r.out }

// IsTTY reports whether results go to a terminal.
func (r *Renderer) IsTTY() bool { return r.isTTY }

// Rows renders a result set. Values are rendered as-is; NULL is nil.
func (r *Renderer) Rows(cols []string, rows [][]any) error {
	switch r.mode {
	case ModeJSON, ModeYAML:
		records := make([]map[string]any, 0, len(rows))
		for _, row := range rows {
			rec := make(map[string]any, len(cols))
			for i, col := range cols {
				rec[col] = row[i]
			}
			records = append(records, rec)
		}
		return r.Data(records)
	}

	if len(rows) == 0 {
		_, _ = fmt.Fprintln(r.out, r.Styles.Muted.Render("(0 rows)"))
		return nil
	}

	header := make(table.Row, len(cols))
	for i, col := range cols {
		header[i] = col
	}
	body := make([]table.Row, len(rows))
	for i, row := range rows {
		body[i] = make(table.Row, len(row))
		for j, v := range row {
			body[i][j] = FormatValue(v)
		}
	}
	r.Table(header, body)
	_, _ = fmt.Fprintln(r.out, r.Styles.Muted.Render(fmt.Sprintf("(%d rows)", len(rows))))
	return nil
}

// Table renders a table regardless of mode.
func (r *Renderer) Table(header table.Row, rows []table.Row) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(header)
	t.AppendRows(rows)
	t.Render()
}

// Data renders v as YAML or JSON. Table mode falls back to YAML.
func (r *Renderer) Data(v any) error {
	if r.mode == ModeJSON {
		enc := json.NewEncoder(r.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	enc := yaml.NewEncoder(r.out)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// Success prints a status line to the result writer.
func (r *Renderer) Success(format string, args ...any) {
	_, _ = fmt.Fprintln(r.out, r.Styles.Success.Render(fmt.Sprintf(format, args...)))
}

// Warning prints a warning to the diagnostic writer.
func (r *Renderer) Warning(format string, args ...any) {
	_, _ = fmt.Fprintln(r.errOut, r.Styles.Warning.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error to the diagnostic writer.
func (r *Renderer) Error(err error) {
	_, _ = fmt.Fprintln(r.errOut, r.Styles.Error.Render("Error:")+" "+err.Error())
}

// FormatValue renders one scalar for table output.
func FormatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
