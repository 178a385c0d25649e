package txn

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapdata/pkg/command"
	"github.com/leapstack-labs/leapdata/pkg/dataaccess"
)

var (
	// ErrNoTransaction is returned when committing a command without a bound
	// transaction.
	ErrNoTransaction = dataaccess.ErrNoTransaction

	// ErrTransactionActive is returned when beginning a command that already
	// holds an open transaction.
	ErrTransactionActive = dataaccess.ErrTransactionActive
)

// Action is the batch operation that failed.
type Action string

const (
	ActionBegin    Action = "begin"
	ActionCommit   Action = "commit"
	ActionRollback Action = "rollback"
)

// Failure is the error of one command in a batch.
type Failure struct {
	Command *command.Command
	Err     error
}

// AggregateTransactionError collects every failure of a batch operation.
// Commands not listed were attempted and succeeded.
type AggregateTransactionError struct {
	Action   Action
	Attempts int
	Failures []Failure
}

func (e *AggregateTransactionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s failed for %d of %d commands", e.Action, len(e.Failures), e.Attempts)
	for _, f := range e.Failures {
		b.WriteString("\n  ")
		b.WriteString(describe(f.Command))
		b.WriteString(": ")
		b.WriteString(f.Err.Error())
	}
	return b.String()
}

// Unwrap returns the individual errors for errors.Is and errors.As.
func (e *AggregateTransactionError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

// FailureFor returns the error recorded for cmd, or nil.
func (e *AggregateTransactionError) FailureFor(cmd *command.Command) error {
	for _, f := range e.Failures {
		if f.Command == cmd {
			return f.Err
		}
	}
	return nil
}

func describe(cmd *command.Command) string {
	if cmd == nil {
		return "<nil command>"
	}
	ds := cmd.DataSource
	if ds == "" {
		ds = "(default)"
	}
	text := cmd.Text
	if len(text) > 40 {
		text = text[:37] + "..."
	}
	return fmt.Sprintf("[%s] %s", ds, text)
}
