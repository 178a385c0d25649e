package commands

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/leapstack-labs/leapdata/internal/config"
	"github.com/leapstack-labs/leapdata/pkg/command"
)

// CommandOptions holds the flags that describe a single command.
type CommandOptions struct {
	DataSource string
	Kind       string
	Database   string
	Timeout    time.Duration
	Input      string
	Params     []string
	InOut      []string
	Out        []string
}

func (o *CommandOptions) register(fs *pflag.FlagSet) {
	fs.StringVarP(&o.DataSource, "datasource", "d", "", "Data source name (default: the default data source)")
	fs.StringVarP(&o.Kind, "kind", "k", "text", "Command kind: text, procedure or table")
	fs.StringVar(&o.Database, "database", "", "Catalog to switch to before executing")
	fs.DurationVar(&o.Timeout, "timeout", 0, "Execution timeout (0 for none)")
	fs.StringVarP(&o.Input, "input", "i", "", "Read the statement from a file")
	fs.StringArrayVarP(&o.Params, "param", "p", nil, "Input parameter as name=value (repeatable)")
	fs.StringArrayVar(&o.InOut, "inout", nil, "InOut parameter as name=value (repeatable)")
	fs.StringArrayVar(&o.Out, "out", nil, "Out parameter name (repeatable)")
}

func registerDataSourceCompletion(cmd *cobra.Command) {
	_ = cmd.RegisterFlagCompletionFunc("datasource", completeDataSources)
	_ = cmd.RegisterFlagCompletionFunc("kind", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{"text", "procedure", "table"}, cobra.ShellCompDirectiveNoFileComp
	})
}

// completeDataSources lists configured names. Completion requests skip the
// root pre-run, so the config file is read directly.
func completeDataSources(cmd *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	if app, err := GetApp(cmd); err == nil {
		return app.Registry.Names(), cobra.ShellCompDirectiveNoFileComp
	}
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, nil)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	names := make([]string, 0, len(cfg.DataSources))
	for _, ds := range cfg.DataSources {
		names = append(names, ds.Name)
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}

// Build creates the command for text.
func (o *CommandOptions) Build(text string) (*command.Command, error) {
	kind, err := command.ParseKind(o.Kind)
	if err != nil {
		return nil, err
	}
	cmd := &command.Command{
		Text:       strings.TrimSpace(text),
		Kind:       kind,
		Timeout:    o.Timeout,
		Database:   o.Database,
		DataSource: o.DataSource,
	}
	if cmd.Text == "" {
		return nil, fmt.Errorf("no statement given")
	}

	for _, p := range o.Params {
		name, value, err := splitParam(p)
		if err != nil {
			return nil, err
		}
		cmd.Parameters.AddIn(name, value)
	}
	for _, p := range o.InOut {
		name, value, err := splitParam(p)
		if err != nil {
			return nil, err
		}
		cmd.Parameters.AddInOut(name, value)
	}
	for _, name := range o.Out {
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("empty out parameter name")
		}
		cmd.Parameters.AddOut(name)
	}
	return cmd, nil
}

func splitParam(s string) (name, value string, err error) {
	name, value, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(name) == "" {
		return "", "", fmt.Errorf("invalid parameter %q (expected name=value)", s)
	}
	return strings.TrimSpace(name), value, nil
}

// statementText returns the statement from args, --input or piped stdin.
func statementText(cmd *cobra.Command, args []string, input string) (string, error) {
	switch {
	case len(args) > 0:
		return strings.Join(args, " "), nil
	case input != "":
		content, err := os.ReadFile(input)
		if err != nil {
			return "", fmt.Errorf("failed to read file: %w", err)
		}
		return string(content), nil
	}

	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return "", fmt.Errorf("no statement given (pass it as an argument, with --input or on stdin)")
	}
	content, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return string(content), nil
}

// outputs collects Out and InOut parameter values after execution.
func outputs(cmd *command.Command) map[string]any {
	var out map[string]any
	for _, p := range cmd.Parameters.All() {
		if p.Direction == command.In {
			continue
		}
		if out == nil {
			out = make(map[string]any)
		}
		out[p.BareName()] = p.Value
	}
	return out
}
