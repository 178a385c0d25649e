package commands

import (
	"errors"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapdata/internal/cli/output"
	"github.com/leapstack-labs/leapdata/internal/journal"
)

var errJournalDisabled = errors.New("journal is disabled\nHint: Remove no_journal or --no-journal to record executions")

// JournalOptions holds options for the journal command.
type JournalOptions struct {
	DataSource string
	Failed     bool
	Limit      int
}

// NewJournalCommand creates the journal command.
func NewJournalCommand() *cobra.Command {
	opts := &JournalOptions{}

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show recorded executions",
		Long: `Show the executions recorded in the local journal, newest first. Every
primitive run by leapdata is recorded with its data source, elapsed time and
error, including errors handled by an exception hook.`,
		Example: `  leapdata journal
  leapdata journal --failed -d orders
  leapdata journal prune --older-than 720h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := GetApp(cmd)
			if err != nil {
				return err
			}
			if app.Journal == nil {
				return errJournalDisabled
			}
			entries, err := app.Journal.List(cmd.Context(), journal.Filter{
				DataSource: opts.DataSource,
				FailedOnly: opts.Failed,
				Limit:      opts.Limit,
			})
			if err != nil {
				return err
			}
			return renderJournal(app.Renderer, entries)
		},
	}
	cmd.Flags().StringVarP(&opts.DataSource, "datasource", "d", "", "Only show this data source")
	cmd.Flags().BoolVar(&opts.Failed, "failed", false, "Only show failed executions")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "Maximum entries to show (0 for all)")
	_ = cmd.RegisterFlagCompletionFunc("datasource", completeDataSources)

	cmd.AddCommand(newJournalPruneCommand())
	return cmd
}

func newJournalPruneCommand() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old journal entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := GetApp(cmd)
			if err != nil {
				return err
			}
			if app.Journal == nil {
				return errJournalDisabled
			}
			n, err := app.Journal.Prune(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			app.Renderer.Success("pruned %d entries", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Delete entries older than this")
	return cmd
}

func renderJournal(r *output.Renderer, entries []journal.Entry) error {
	if r.Mode() != output.ModeTable {
		if entries == nil {
			entries = []journal.Entry{}
		}
		return r.Data(entries)
	}
	if len(entries) == 0 {
		r.Warning("no executions recorded")
		return nil
	}

	rows := make([]table.Row, 0, len(entries))
	for _, e := range entries {
		status := "ok"
		switch {
		case e.Error != "" && e.Handled:
			status = "handled"
		case e.Error != "":
			status = "failed"
		}
		rows = append(rows, table.Row{
			e.RecordedAt.Local().Format(time.DateTime),
			e.DataSource,
			e.Operation,
			e.Elapsed.Round(time.Microsecond),
			status,
			truncate(e.Command, 48),
		})
	}
	r.Table(table.Row{"Time", "Data Source", "Operation", "Elapsed", "Status", "Command"}, rows)
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
