package dataaccess_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapdata/internal/testutil"
	"github.com/leapstack-labs/leapdata/pkg/adapter"
	"github.com/leapstack-labs/leapdata/pkg/command"
	"github.com/leapstack-labs/leapdata/pkg/core"
	"github.com/leapstack-labs/leapdata/pkg/dataaccess"
	"github.com/leapstack-labs/leapdata/pkg/secret"
)

func TestCatalogSwitch(t *testing.T) {
	tests := []struct {
		name        string
		database    string
		wantSwitch  []string
		wantCloses  int64
		wantQueries []string
	}{
		{
			name:        "no catalog keeps the connection",
			wantCloses:  0,
			wantQueries: []string{"SELECT 1"},
		},
		{
			name:        "same catalog is not switched",
			database:    "MAIN",
			wantCloses:  0,
			wantQueries: []string{"SELECT 1"},
		},
		{
			name:        "other catalog is switched and discarded",
			database:    "archive",
			wantSwitch:  []string{"archive"},
			wantCloses:  1,
			wantQueries: []string{"USE archive", "SELECT 1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &testutil.StubDriver{}
			c, adp := newClient(t, d)
			adp.DB.SetMaxIdleConns(2)

			cmd := command.New("SELECT 1")
			cmd.Database = tt.database
			_, err := c.ExecuteNonQuery(context.Background(), cmd)
			require.NoError(t, err)

			assert.Equal(t, tt.wantSwitch, adp.Switches())
			assert.Equal(t, tt.wantCloses, d.Closes.Load())
			assert.Equal(t, tt.wantQueries, d.Statements())
		})
	}
}

func TestCatalogSwitchInsideTransaction(t *testing.T) {
	d := &testutil.StubDriver{}
	c, adp := newClient(t, d)
	adp.DB.SetMaxIdleConns(2)
	ctx := context.Background()

	cmd := command.New("INSERT INTO audit VALUES (1)")
	require.NoError(t, c.BeginTransaction(ctx, cmd, nil))

	cmd.Database = "archive"
	_, err := c.ExecuteNonQuery(ctx, cmd)
	require.NoError(t, err)
	assert.True(t, cmd.Transaction.Discard)
	assert.Equal(t, int64(0), d.Closes.Load())

	require.NoError(t, c.CommitTransaction(ctx, cmd))
	assert.Equal(t, int64(1), d.Closes.Load(), "switched transaction connection is discarded")
}

func TestDelegatedPrincipal(t *testing.T) {
	var seen []adapter.Principal
	d := &testutil.StubDriver{
		OnConnect: func(ctx context.Context) {
			if p, ok := adapter.PrincipalFrom(ctx); ok {
				seen = append(seen, p)
			}
		},
	}
	adp := &testutil.StubAdapter{DB: d.OpenDB(t)}
	ds := &core.NamedDataSource{
		Name:             "audit",
		Kind:             testutil.StubKind,
		ConnectionString: secret.Plain("stub://audit"),
		Credentials:      secret.Plain(`CORP\auditor:s3cr:et`),
	}
	c := dataaccess.NewClient(ds, adp, dataaccess.WithLogger(testutil.NewTestLogger(t)))

	_, err := c.ExecuteNonQuery(context.Background(), command.New("SELECT 1"))
	require.NoError(t, err)

	require.Len(t, seen, 1)
	assert.Equal(t, "CORP", seen[0].Domain)
	assert.Equal(t, "auditor", seen[0].User)
	assert.Equal(t, "s3cr:et", seen[0].Password)
	assert.Equal(t, `CORP\auditor`, seen[0].String())

	require.Len(t, adp.Principals(), 1, "pool open runs under the principal")
}

func TestDelegatedPrincipalInvalidCredentials(t *testing.T) {
	d := &testutil.StubDriver{}
	adp := &testutil.StubAdapter{DB: d.OpenDB(t)}
	ds := &core.NamedDataSource{
		Name:             "audit",
		Kind:             testutil.StubKind,
		ConnectionString: secret.Plain("stub://audit"),
		Credentials:      secret.Plain("no-password-separator"),
	}
	c := dataaccess.NewClient(ds, adp)

	_, err := c.ExecuteNonQuery(context.Background(), command.New("SELECT 1"))
	require.Error(t, err)
	var cfgErr *core.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, int64(0), d.Opens.Load())
}

type reversingDecrypter struct{ calls int }

func (r *reversingDecrypter) Name() string { return "reverse" }

func (r *reversingDecrypter) DecryptString(_ context.Context, s string) (string, error) {
	r.calls++
	b := []byte(s)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b), nil
}

func TestEncryptedCredentialsDecryptOnce(t *testing.T) {
	var users []string
	d := &testutil.StubDriver{
		OnConnect: func(ctx context.Context) {
			if p, ok := adapter.PrincipalFrom(ctx); ok {
				users = append(users, p.User)
			}
		},
	}
	dec := &reversingDecrypter{}
	adp := &testutil.StubAdapter{DB: d.OpenDB(t)}
	ds := &core.NamedDataSource{
		Name:             "orders",
		Kind:             testutil.StubKind,
		ConnectionString: secret.New("sdro://buts"),
		Credentials:      secret.New("wp:ecila"),
	}
	c := dataaccess.NewClient(ds, adp, dataaccess.WithSecretStore(secret.NewStore(dec)))

	for range 3 {
		_, err := c.ExecuteNonQuery(context.Background(), command.New("SELECT 1"))
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"alice", "alice", "alice"}, users)
	assert.Equal(t, 2, dec.calls, "connection string and credentials decrypt once each")
	assert.False(t, ds.Credentials.StillEncrypted())
}
