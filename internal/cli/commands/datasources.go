package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/leapdata/internal/cli/output"
)

// dataSourceInfo is the listing form of a registered data source.
type dataSourceInfo struct {
	Name        string `json:"name" yaml:"name"`
	Kind        string `json:"kind" yaml:"kind"`
	Default     bool   `json:"default" yaml:"default"`
	Credentials bool   `json:"credentials" yaml:"credentials"`
	Encrypted   bool   `json:"encrypted" yaml:"encrypted"`
}

// NewDataSourcesCommand creates the datasources command.
func NewDataSourcesCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "datasources",
		Aliases: []string{"ds"},
		Short:   "List configured data sources",
		Long: `List the data sources registered from configuration. Connection strings and
credentials are never printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := GetApp(cmd)
			if err != nil {
				return err
			}

			encrypted := app.Cfg.Decryption.Encrypted()
			var infos []dataSourceInfo
			for _, name := range app.Registry.Names() {
				client, err := app.Registry.Resolve(name)
				if err != nil {
					return err
				}
				ds := client.DataSource()
				infos = append(infos, dataSourceInfo{
					Name:        ds.Name,
					Kind:        ds.Kind,
					Default:     ds.IsDefault,
					Credentials: ds.HasCredentials(),
					Encrypted:   encrypted,
				})
			}

			if app.Renderer.Mode() != output.ModeTable {
				return app.Renderer.Data(infos)
			}
			if len(infos) == 0 {
				app.Renderer.Warning("no data sources configured")
				return nil
			}
			rows := make([]table.Row, 0, len(infos))
			for _, info := range infos {
				def := ""
				if info.Default {
					def = "*"
				}
				creds := ""
				if info.Credentials {
					creds = "delegated"
				}
				enc := ""
				if info.Encrypted {
					enc = "yes"
				}
				rows = append(rows, table.Row{info.Name, info.Kind, def, creds, enc})
			}
			app.Renderer.Table(table.Row{"Name", "Kind", "Default", "Credentials", "Encrypted"}, rows)
			return nil
		},
	}
}

// PingOptions holds options for the ping command.
type PingOptions struct {
	All     bool
	Timeout time.Duration
}

type pingResult struct {
	Name    string        `json:"name" yaml:"name"`
	Elapsed time.Duration `json:"elapsed" yaml:"elapsed"`
	Error   string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// NewPingCommand creates the ping command.
func NewPingCommand() *cobra.Command {
	opts := &PingOptions{}

	cmd := &cobra.Command{
		Use:   "ping [datasource...]",
		Short: "Check that data sources are reachable",
		Long: `Open a connection to each named data source (or the default one) and verify
it responds. With --all every configured data source is checked concurrently.`,
		Example: `  leapdata ping
  leapdata ping orders audit
  leapdata ping --all --timeout 2s`,
		ValidArgsFunction: completeDataSources,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPing(cmd, args, opts)
		},
	}
	cmd.Flags().BoolVarP(&opts.All, "all", "a", false, "Ping every configured data source")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 5*time.Second, "Timeout per data source")
	return cmd
}

func runPing(cmd *cobra.Command, args []string, opts *PingOptions) error {
	app, err := GetApp(cmd)
	if err != nil {
		return err
	}

	names := args
	switch {
	case opts.All:
		names = app.Registry.Names()
	case len(names) == 0:
		names = []string{""}
	}

	results := make([]pingResult, len(names))
	g, ctx := errgroup.WithContext(cmd.Context())
	for i, name := range names {
		g.Go(func() error {
			results[i] = ping(ctx, app, name, opts.Timeout)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}

	if app.Renderer.Mode() != output.ModeTable {
		if err := app.Renderer.Data(results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			if r.Error != "" {
				app.Renderer.Warning("%s: %s", r.Name, r.Error)
				continue
			}
			app.Renderer.Success("%s: ok (%s)", r.Name, r.Elapsed.Round(time.Microsecond))
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d data sources unreachable", failed, len(results))
	}
	return nil
}

func ping(ctx context.Context, app *App, name string, timeout time.Duration) pingResult {
	client, err := app.Client(name)
	if err != nil {
		return pingResult{Name: name, Error: err.Error()}
	}
	r := pingResult{Name: client.Name()}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	start := time.Now()
	if err := client.Ping(ctx); err != nil {
		r.Error = err.Error()
	}
	r.Elapsed = time.Since(start)
	return r
}
