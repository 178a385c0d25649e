// Package cli provides the command-line interface for LeapData.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapdata/internal/cli/commands"
	"github.com/leapstack-labs/leapdata/internal/cli/output"
	"github.com/leapstack-labs/leapdata/internal/config"

	_ "github.com/leapstack-labs/leapdata/pkg/adapters/duckdb"   // register duckdb
	_ "github.com/leapstack-labs/leapdata/pkg/adapters/mysql"    // register mysql
	_ "github.com/leapstack-labs/leapdata/pkg/adapters/postgres" // register postgres
	_ "github.com/leapstack-labs/leapdata/pkg/adapters/sqlite"   // register sqlite
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// session owns what PersistentPreRunE builds, so it can be released after
// the command returns, including on error.
type session struct {
	cfgFile string
	app     *commands.App
}

func (s *session) close() error {
	if s.app == nil {
		return nil
	}
	err := s.app.Close()
	s.app = nil
	return err
}

// skipsConfig reports whether cmd runs without loading configuration.
func skipsConfig(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "help", "completion", "version", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
		return true
	}
	return false
}

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	root, _ := newRoot()
	return root
}

func newRoot() (*cobra.Command, *session) {
	s := &session{}

	rootCmd := &cobra.Command{
		Use:   "leapdata",
		Short: "LeapData - multi-datasource data access",
		Long: `LeapData runs commands against named data sources (PostgreSQL, MySQL,
SQLite and DuckDB) and coordinates transactions that span several of them.

Data sources are configured in leapdata.yaml. Connection strings and
credentials may be stored encrypted and are decrypted on first use.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if skipsConfig(cmd) {
				return nil
			}

			cfg, err := config.Load(s.cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}

			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.Level()}))
			renderer := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.Output))
			if cfg.File != "" {
				logger.Debug("using config file", slog.String("path", cfg.File))
			}

			app, err := commands.NewApp(cfg, logger, renderer)
			if err != nil {
				return err
			}
			s.app = app
			cmd.SetContext(commands.WithApp(cmd.Context(), app))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf("{{.Name}} {{.Version}} (commit %s, built %s)\n", GitCommit, BuildDate))

	// Global persistent flags
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&s.cfgFile, "config", "", "config file (default: leapdata.yaml, searched upward)")
	pf.String("log-level", "", "Log level (debug|info|warn|error)")
	pf.BoolP("verbose", "v", false, "Verbose output (debug logging)")
	pf.StringP("output", "o", "", "Output format (table|yaml|json)")
	pf.String("journal", "", "Path to the execution journal")
	pf.Bool("no-journal", false, "Do not record executions")

	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return output.Modes, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("log-level", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"debug", "info", "warn", "error"}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(commands.NewVersionCommand(Version))
	rootCmd.AddCommand(commands.NewDataSourcesCommand())
	rootCmd.AddCommand(commands.NewPingCommand())
	rootCmd.AddCommand(commands.NewExecCommand())
	rootCmd.AddCommand(commands.NewQueryCommand())
	rootCmd.AddCommand(commands.NewScalarCommand())
	rootCmd.AddCommand(commands.NewXMLCommand())
	rootCmd.AddCommand(commands.NewBatchCommand())
	rootCmd.AddCommand(commands.NewShellCommand())
	rootCmd.AddCommand(commands.NewEncryptCommand())
	rootCmd.AddCommand(commands.NewJournalCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd, s
}

// Execute runs the root command with args and releases every data source
// afterwards.
func Execute(ctx context.Context, args []string) error {
	rootCmd, s := newRoot()
	rootCmd.SetArgs(args)

	err := rootCmd.ExecuteContext(ctx)
	if cerr := s.close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for LeapData.

To load completions:

Bash:
  $ source <(leapdata completion bash)

Zsh:
  $ leapdata completion zsh > "${fpath[1]}/_leapdata"

Fish:
  $ leapdata completion fish | source

PowerShell:
  PS> leapdata completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletionV2(out, true)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
	return cmd
}
