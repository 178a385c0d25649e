package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapdata/pkg/command"
)

// NewShellCommand creates the interactive shell command.
func NewShellCommand() *cobra.Command {
	var dataSource string

	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Interactive SQL shell over the configured data sources",
		Long: `Start an interactive shell. Statements end with a semicolon and run against
the current data source; .use switches data sources and .begin, .commit and
.rollback control a transaction that spans the following statements.`,
		Example: `  leapdata shell
  leapdata shell -d audit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := GetApp(cmd)
			if err != nil {
				return err
			}
			s, err := newShell(app, dataSource, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return s.run(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&dataSource, "datasource", "d", "", "Data source to start on")
	_ = cmd.RegisterFlagCompletionFunc("datasource", completeDataSources)
	return cmd
}

// shell is one interactive session.
type shell struct {
	app    *App
	ds     string
	tx     *command.Command // carries the open transaction, if any
	buf    strings.Builder
	out    io.Writer
	errOut io.Writer
}

func newShell(app *App, ds string, out, errOut io.Writer) (*shell, error) {
	client, err := app.Client(ds)
	if err != nil {
		return nil, err
	}
	return &shell{app: app, ds: client.Name(), out: out, errOut: errOut}, nil
}

func (s *shell) prompt() string {
	switch {
	case s.buf.Len() > 0:
		return strings.Repeat(" ", max(len(s.ds)-1, 0)) + "...> "
	case s.tx != nil:
		return s.ds + "*> "
	default:
		return s.ds + "> "
	}
}

func (s *shell) run(ctx context.Context) error {
	var history string
	if s.app.Cfg.Journal != "" && !s.app.Cfg.NoJournal {
		history = filepath.Join(filepath.Dir(s.app.Cfg.Journal), "shell_history")
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          s.prompt(),
		HistoryFile:     history,
		AutoComplete:    s.completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
		Stdout:          s.out,
		Stderr:          s.errOut,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize shell: %w", err)
	}
	defer func() { _ = rl.Close() }()

	_, _ = fmt.Fprintln(s.out, "LeapData shell. Type .help for commands, .quit to exit")
	defer s.discard(ctx)

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			s.buf.Reset()
			rl.SetPrompt(s.prompt())
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		if quit := s.handle(ctx, line); quit {
			return nil
		}
		rl.SetPrompt(s.prompt())
	}
}

// handle processes one input line and reports whether the session ends.
func (s *shell) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if s.buf.Len() == 0 && strings.HasPrefix(line, ".") {
		quit, err := s.dot(ctx, strings.Fields(line))
		if err != nil {
			s.app.Renderer.Error(err)
		}
		return quit
	}

	s.buf.WriteString(line)
	if !strings.HasSuffix(line, ";") {
		s.buf.WriteString("\n")
		return false
	}
	text := strings.TrimSuffix(s.buf.String(), ";")
	s.buf.Reset()

	if err := s.execute(ctx, text); err != nil {
		s.app.Renderer.Error(err)
	}
	return false
}

func (s *shell) dot(ctx context.Context, parts []string) (bool, error) {
	switch strings.ToLower(parts[0]) {
	case ".quit", ".exit":
		return true, nil
	case ".help":
		printShellHelp(s.out)
	case ".datasources":
		for _, name := range s.app.Registry.Names() {
			marker := " "
			if strings.EqualFold(name, s.ds) {
				marker = "*"
			}
			_, _ = fmt.Fprintf(s.out, "%s %s\n", marker, name)
		}
	case ".use":
		if len(parts) < 2 {
			return false, errors.New("usage: .use <datasource>")
		}
		if s.tx != nil {
			return false, errors.New("commit or roll back the open transaction first")
		}
		client, err := s.app.Client(parts[1])
		if err != nil {
			return false, err
		}
		s.ds = client.Name()
	case ".begin":
		if s.tx != nil {
			return false, errors.New("a transaction is already open")
		}
		tx := command.New("").On(s.ds)
		if err := s.app.Coordinator.Begin(ctx, tx, nil); err != nil {
			return false, err
		}
		s.tx = tx
	case ".commit":
		if s.tx == nil {
			return false, errors.New("no open transaction")
		}
		tx := s.tx
		s.tx = nil
		if err := s.app.Coordinator.Commit(ctx, tx); err != nil {
			return false, err
		}
		s.app.Renderer.Success("committed")
	case ".rollback":
		if s.tx == nil {
			return false, errors.New("no open transaction")
		}
		tx := s.tx
		s.tx = nil
		if err := s.app.Coordinator.Rollback(ctx, tx); err != nil {
			return false, err
		}
		s.app.Renderer.Warning("rolled back")
	default:
		return false, fmt.Errorf("unknown command %s (type .help for commands)", parts[0])
	}
	return false, nil
}

// execute runs text on the current data source, inside the open
// transaction if there is one.
func (s *shell) execute(ctx context.Context, text string) error {
	client, err := s.app.Client(s.ds)
	if err != nil {
		return err
	}
	c := command.New(strings.TrimSpace(text)).On(s.ds)
	if s.tx != nil {
		c.Transaction = s.tx.Transaction
	}

	if returnsRows(c.Text) {
		rs := &resultSet{}
		if err := client.ExecuteDataLoader(ctx, command.NewLoader(c, rs)); err != nil {
			return err
		}
		return s.app.Renderer.Rows(rs.cols, rs.rows)
	}

	n, err := client.ExecuteNonQuery(ctx, c)
	if err != nil {
		return err
	}
	s.app.Renderer.Success("%d rows affected (%s)", n, c.Elapsed)
	return nil
}

// discard rolls back a transaction left open at exit.
func (s *shell) discard(ctx context.Context) {
	if s.tx == nil {
		return
	}
	if err := s.app.Coordinator.Rollback(ctx, s.tx); err != nil {
		s.app.Renderer.Error(err)
	}
	s.tx = nil
}

var rowKeywords = []string{"select", "with", "values", "show", "pragma", "explain", "describe", "table"}

func returnsRows(text string) bool {
	fields := strings.Fields(strings.ToLower(text))
	if len(fields) == 0 {
		return false
	}
	for _, kw := range rowKeywords {
		if fields[0] == kw {
			return true
		}
	}
	return false
}

func (s *shell) completer() *readline.PrefixCompleter {
	var names []readline.PrefixCompleterInterface
	for _, name := range s.app.Registry.Names() {
		names = append(names, readline.PcItem(name))
	}
	return readline.NewPrefixCompleter(
		readline.PcItem(".help"),
		readline.PcItem(".datasources"),
		readline.PcItem(".use", names...),
		readline.PcItem(".begin"),
		readline.PcItem(".commit"),
		readline.PcItem(".rollback"),
		readline.PcItem(".quit"),
	)
}

func printShellHelp(w io.Writer) {
	help := `
Commands:
  .help              Show this help message
  .datasources       List data sources (* marks the current one)
  .use <datasource>  Switch the current data source
  .begin             Begin a transaction on the current data source
  .commit            Commit the open transaction
  .rollback          Roll back the open transaction
  .quit / .exit      Exit the shell

Statements end with a semicolon (;) and may span lines.
An open transaction is rolled back on exit.`
	_, _ = fmt.Fprintln(w, help)
}
