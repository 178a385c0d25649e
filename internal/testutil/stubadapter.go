package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/leapstack-labs/leapdata/pkg/adapter"
)

// StubKind is the data source kind served by StubAdapter.
const StubKind = "stub"

// StubAdapter is an adapter.Adapter over a prepared *sql.DB, typically
// one returned by StubDriver.OpenDB. It does not ping on Open.
type StubAdapter struct {
	DB    *sql.DB
	Style adapter.BindStyle

	// Catalog is reported by CurrentDatabase until ChangeDatabase runs.
	Catalog string

	// OpenErr fails Open when set.
	OpenErr error

	Opens atomic.Int64

	mu         sync.Mutex
	principals []adapter.Principal
	switches   []string
}

// Kind returns StubKind.
func (a *StubAdapter) Kind() string { return StubKind }

// Open returns DB and records the principal found in ctx, if any.
func (a *StubAdapter) Open(ctx context.Context, _ adapter.Config) (*sql.DB, error) {
	if a.OpenErr != nil {
		return nil, a.OpenErr
	}
	a.Opens.Add(1)
	a.recordPrincipal(ctx)
	return a.DB, nil
}

func (a *StubAdapter) recordPrincipal(ctx context.Context) {
	if p, ok := adapter.PrincipalFrom(ctx); ok {
		a.mu.Lock()
		a.principals = append(a.principals, p)
		a.mu.Unlock()
	}
}

// Principals returns the principals seen by Open.
func (a *StubAdapter) Principals() []adapter.Principal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]adapter.Principal(nil), a.principals...)
}

// Switches returns the catalogs passed to ChangeDatabase.
func (a *StubAdapter) Switches() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.switches...)
}

// BindStyle returns Style.
func (a *StubAdapter) BindStyle() adapter.BindStyle { return a.Style }

// ProcedureCall renders CALL name(?, ...).
func (a *StubAdapter) ProcedureCall(name string, argc int) (string, error) {
	return fmt.Sprintf("CALL %s(%s)", name, strings.TrimSuffix(strings.Repeat("?, ", argc), ", ")), nil
}

// TableQuery renders SELECT * FROM table.
func (a *StubAdapter) TableQuery(table string) (string, error) {
	return "SELECT * FROM " + table, nil
}

// CurrentDatabase returns Catalog.
func (a *StubAdapter) CurrentDatabase(context.Context, *sql.Conn) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Catalog, nil
}

// ChangeDatabase executes USE name on conn and records the switch.
func (a *StubAdapter) ChangeDatabase(ctx context.Context, conn *sql.Conn, name string) error {
	if _, err := conn.ExecContext(ctx, "USE "+name); err != nil {
		return err
	}
	a.mu.Lock()
	a.switches = append(a.switches, name)
	a.mu.Unlock()
	return nil
}

var _ adapter.Adapter = (*StubAdapter)(nil)
