// Package journal records executions and transaction steps in a local SQLite
// database so they can be inspected after the fact.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // sqlite driver (pure Go)

	"github.com/leapstack-labs/leapdata/pkg/command"
	"github.com/leapstack-labs/leapdata/pkg/dataaccess"
	"github.com/leapstack-labs/leapdata/pkg/txn"
)

// timeLayout is fixed-width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Entry is one recorded step.
type Entry struct {
	ID         string        `json:"id" yaml:"id"`
	DataSource string        `json:"datasource" yaml:"datasource"`
	Operation  string        `json:"operation" yaml:"operation"`
	Command    string        `json:"command" yaml:"command"`
	Elapsed    time.Duration `json:"elapsed" yaml:"elapsed"`
	Error      string        `json:"error,omitempty" yaml:"error,omitempty"`
	Handled    bool          `json:"handled,omitempty" yaml:"handled,omitempty"`
	RecordedAt time.Time     `json:"recorded_at" yaml:"recorded_at"`
}

// Store is a SQLite-backed journal. It implements dataaccess.Observer.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
	now    func() time.Time
}

var _ dataaccess.Observer = (*Store)(nil)

// Open opens the journal at path and applies pending migrations.
// Use ":memory:" for an in-memory journal.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	// A single connection keeps writes serialized and ":memory:" shared.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping journal: %w", err)
	}

	s := &Store{db: db, path: path, logger: logger, now: time.Now}
	if err := s.Migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the journal location.
func (s *Store) Path() string { return s.path }

// Close closes the journal database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record stores e. A missing ID or timestamp is filled in.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if s.db == nil {
		return fmt.Errorf("journal not opened")
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO executions (id, datasource, operation, command, elapsed_ns, error, handled, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.DataSource, e.Operation, e.Command, int64(e.Elapsed), e.Error, e.Handled,
		e.RecordedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to record execution: %w", err)
	}
	return nil
}

// BeforeExecute implements dataaccess.Observer.
func (s *Store) BeforeExecute(context.Context, dataaccess.Operation, *command.Command) {}

// AfterExecute implements dataaccess.Observer. Write failures are logged.
func (s *Store) AfterExecute(ctx context.Context, ex dataaccess.Execution) {
	e := Entry{
		DataSource: ex.DataSource,
		Operation:  string(ex.Operation),
		Elapsed:    ex.Elapsed,
		Handled:    ex.Handled,
	}
	if ex.Command != nil {
		e.Command = ex.Command.Text
	}
	if ex.Err != nil {
		e.Error = ex.Err.Error()
	}
	s.record(ctx, e)
}

// TxObserver returns a coordinator observer that records batch steps.
func (s *Store) TxObserver() txn.Observer {
	return func(ctx context.Context, action txn.Action, cmd *command.Command, err error) {
		e := Entry{Operation: "batch-" + string(action)}
		if cmd != nil {
			e.DataSource = cmd.DataSource
			e.Command = cmd.Text
		}
		if err != nil {
			e.Error = err.Error()
		}
		s.record(ctx, e)
	}
}

func (s *Store) record(ctx context.Context, e Entry) {
	// A timed-out execution still gets its entry.
	if err := s.Record(context.WithoutCancel(ctx), e); err != nil {
		s.logger.Warn("journal write failed", slog.String("error", err.Error()))
	}
}

// Filter narrows List.
type Filter struct {
	DataSource string
	FailedOnly bool
	Limit      int
}

// List returns entries newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]Entry, error) {
	if s.db == nil {
		return nil, fmt.Errorf("journal not opened")
	}
	query := `SELECT id, datasource, operation, command, elapsed_ns, error, handled, recorded_at
		FROM executions WHERE 1=1`
	var args []any
	if f.DataSource != "" {
		query += ` AND datasource = ? COLLATE NOCASE`
		args = append(args, f.DataSource)
	}
	if f.FailedOnly {
		query += ` AND error <> ''`
	}
	query += ` ORDER BY recorded_at DESC, rowid DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			elapsed int64
			at      string
		)
		if err := rows.Scan(&e.ID, &e.DataSource, &e.Operation, &e.Command, &elapsed, &e.Error, &e.Handled, &at); err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		e.Elapsed = time.Duration(elapsed)
		if e.RecordedAt, err = time.Parse(timeLayout, at); err != nil {
			return nil, fmt.Errorf("invalid timestamp %q for execution %s: %w", at, e.ID, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	return entries, nil
}

// Prune deletes entries recorded before cutoff and returns how many went.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	if s.db == nil {
		return 0, fmt.Errorf("journal not opened")
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM executions WHERE recorded_at < ?`,
		cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("failed to prune journal: %w", err)
	}
	return res.RowsAffected()
}
