package commands

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/leapdata/pkg/command"
	"github.com/leapstack-labs/leapdata/pkg/txn"
)

// BatchFile is a set of statements committed together across data sources.
//
//	isolation: serializable
//	steps:
//	  - datasource: orders
//	    sql: INSERT INTO orders (id) VALUES (:id)
//	    params: {id: 1}
//	  - datasource: audit
//	    sql: INSERT INTO audit (msg) VALUES ('order 1')
type BatchFile struct {
	Isolation string      `yaml:"isolation"`
	ReadOnly  bool        `yaml:"read_only"`
	Steps     []BatchStep `yaml:"steps"`
}

// BatchStep is one statement of a batch.
type BatchStep struct {
	DataSource string      `yaml:"datasource"`
	SQL        string      `yaml:"sql"`
	Kind       string      `yaml:"kind"`
	Database   string      `yaml:"database"`
	Params     OrderedArgs `yaml:"params"`
}

// OrderedArgs keeps the mapping order of params so positional adapters bind
// them as written.
type OrderedArgs []NamedArg

// NamedArg is one parameter of a batch step.
type NamedArg struct {
	Name  string
	Value any
}

// UnmarshalYAML decodes a mapping, preserving key order.
func (a *OrderedArgs) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: params must be a mapping", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		var value any
		if err := node.Content[i+1].Decode(&value); err != nil {
			return err
		}
		*a = append(*a, NamedArg{Name: node.Content[i].Value, Value: value})
	}
	return nil
}

// ParseBatch reads and checks a batch file.
func ParseBatch(data []byte) (*BatchFile, error) {
	var b BatchFile
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("invalid batch file: %w", err)
	}
	if len(b.Steps) == 0 {
		return nil, errors.New("batch file has no steps")
	}
	for i, s := range b.Steps {
		if strings.TrimSpace(s.SQL) == "" {
			return nil, fmt.Errorf("steps[%d] has no sql", i)
		}
	}
	return &b, nil
}

// TxOptions returns the transaction options the batch asks for.
func (b *BatchFile) TxOptions() (*sql.TxOptions, error) {
	level, err := parseIsolation(b.Isolation)
	if err != nil {
		return nil, err
	}
	if level == sql.LevelDefault && !b.ReadOnly {
		return nil, nil
	}
	return &sql.TxOptions{Isolation: level, ReadOnly: b.ReadOnly}, nil
}

// Commands builds one command per step.
func (b *BatchFile) Commands() ([]*command.Command, error) {
	cmds := make([]*command.Command, 0, len(b.Steps))
	for i, s := range b.Steps {
		kind, err := command.ParseKind(s.Kind)
		if err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
		c := &command.Command{
			Text:       strings.TrimSpace(s.SQL),
			Kind:       kind,
			Database:   s.Database,
			DataSource: s.DataSource,
		}
		for _, p := range s.Params {
			c.Parameters.AddIn(p.Name, p.Value)
		}
		cmds = append(cmds, c)
	}
	return cmds, nil
}

var isolationLevels = map[string]sql.IsolationLevel{
	"":                 sql.LevelDefault,
	"default":          sql.LevelDefault,
	"read_uncommitted": sql.LevelReadUncommitted,
	"read_committed":   sql.LevelReadCommitted,
	"write_committed":  sql.LevelWriteCommitted,
	"repeatable_read":  sql.LevelRepeatableRead,
	"snapshot":         sql.LevelSnapshot,
	"serializable":     sql.LevelSerializable,
	"linearizable":     sql.LevelLinearizable,
}

func parseIsolation(s string) (sql.IsolationLevel, error) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "_")
	if level, ok := isolationLevels[key]; ok {
		return level, nil
	}
	return sql.LevelDefault, fmt.Errorf("unknown isolation level %q", s)
}

// BatchOptions holds options for the batch command.
type BatchOptions struct {
	Rollback bool
}

// NewBatchCommand creates the batch command.
func NewBatchCommand() *cobra.Command {
	opts := &BatchOptions{}

	cmd := &cobra.Command{
		Use:   "batch <file>",
		Short: "Run statements on several data sources and commit them together",
		Long: `Begin a transaction for every step of a batch file, execute the steps in
order and commit every transaction. When a step fails every transaction is
rolled back.

Commits are attempted for every step even when one of them fails; the
failures are reported together. Commits that already succeeded are not
undone.`,
		Example: `  leapdata batch ship-order.yaml
  leapdata batch ship-order.yaml --rollback   # execute, then roll back`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, args[0], opts)
		},
	}
	cmd.Flags().BoolVar(&opts.Rollback, "rollback", false, "Roll back instead of committing")
	return cmd
}

func runBatch(cmd *cobra.Command, path string, opts *BatchOptions) error {
	app, err := GetApp(cmd)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read batch file: %w", err)
	}
	batch, err := ParseBatch(data)
	if err != nil {
		return err
	}
	txOpts, err := batch.TxOptions()
	if err != nil {
		return err
	}
	cmds, err := batch.Commands()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	coord := app.Coordinator
	if txOpts != nil {
		coord = app.CoordinatorWith(txn.WithTxOptions(txOpts))
	}

	if err := coord.BeginTransactions(ctx, cmds); err != nil {
		return errors.Join(err, coord.RollbackTransactions(ctx, cmds))
	}

	var total int64
	for i, c := range cmds {
		client, err := app.Client(c.DataSource)
		if err == nil {
			var n int64
			n, err = client.ExecuteNonQuery(ctx, c)
			total += n
		}
		if err != nil {
			return errors.Join(fmt.Errorf("steps[%d]: %w", i, err), coord.RollbackTransactions(ctx, cmds))
		}
	}

	if opts.Rollback {
		if err := coord.RollbackTransactions(ctx, cmds); err != nil {
			return err
		}
		app.Renderer.Warning("rolled back %d steps (%d rows)", len(cmds), total)
		return nil
	}

	if err := coord.CommitTransactions(ctx, cmds); err != nil {
		return err
	}
	app.Renderer.Success("committed %d steps (%d rows)", len(cmds), total)
	return nil
}
