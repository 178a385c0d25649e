package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapdata/internal/testutil"
	"github.com/leapstack-labs/leapdata/pkg/core"
	"github.com/leapstack-labs/leapdata/pkg/secret"
)

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	d := &testutil.StubDriver{}
	return New(
		WithLogger(testutil.NewTestLogger(t)),
		WithAdapter(testutil.StubKind, &testutil.StubAdapter{DB: d.OpenDB(t)}),
	)
}

func stubSource(name string, isDefault bool) *core.NamedDataSource {
	return &core.NamedDataSource{
		Name:             name,
		Kind:             testutil.StubKind,
		ConnectionString: secret.Plain("stub://" + name),
		IsDefault:        isDefault,
	}
}

func TestRegistry_Register(t *testing.T) {
	r := newRegistry(t)

	require.NoError(t, r.Register(stubSource("Orders", true)))
	require.NoError(t, r.Register(stubSource("audit", false)))

	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []string{"Orders", "audit"}, r.Names())
}

func TestRegistry_SecondDefaultRejected(t *testing.T) {
	r := newRegistry(t)
	require.NoError(t, r.Register(stubSource("orders", true)))

	err := r.Register(stubSource("audit", true))
	require.Error(t, err)
	var cfgErr *core.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "audit", cfgErr.Name)
	assert.Contains(t, err.Error(), `"orders" is already the default`)

	assert.Equal(t, []string{"orders"}, r.Names(), "registry unchanged")
	c, err := r.Default()
	require.NoError(t, err)
	assert.Equal(t, "orders", c.Name())
}

func TestRegistry_RegisterErrors(t *testing.T) {
	tests := []struct {
		name string
		ds   *core.NamedDataSource
	}{
		{name: "empty name", ds: stubSource("  ", false)},
		{name: "duplicate name", ds: stubSource("ORDERS", false)},
		{name: "missing kind", ds: &core.NamedDataSource{Name: "x", ConnectionString: secret.Plain("")}},
		{name: "unknown kind", ds: &core.NamedDataSource{Name: "x", Kind: "oracle", ConnectionString: secret.Plain("")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRegistry(t)
			require.NoError(t, r.Register(stubSource("orders", false)))

			err := r.Register(tt.ds)
			var cfgErr *core.ConfigurationError
			assert.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, 1, r.Len())
		})
	}
}

func TestRegistry_Resolve(t *testing.T) {
	r := newRegistry(t)
	require.NoError(t, r.Register(stubSource("orders", true)))
	require.NoError(t, r.Register(stubSource("Audit", false)))

	tests := []struct {
		name     string
		lookup   string
		wantName string
	}{
		{name: "exact", lookup: "orders", wantName: "orders"},
		{name: "case-insensitive", lookup: "AUDIT", wantName: "Audit"},
		{name: "surrounding space", lookup: " audit ", wantName: "Audit"},
		{name: "empty resolves default", lookup: "", wantName: "orders"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := r.Resolve(tt.lookup)
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, c.Name())
		})
	}
}

func TestRegistry_NotConfigured(t *testing.T) {
	r := newRegistry(t)
	require.NoError(t, r.Register(stubSource("orders", false)))

	t.Run("no default", func(t *testing.T) {
		_, err := r.Resolve("")
		var nc *core.NotConfiguredError
		require.ErrorAs(t, err, &nc)
		assert.Equal(t, core.DefaultDataSourceName, nc.Name)
		assert.Equal(t, []string{"orders"}, nc.Available)

		_, err = r.Default()
		assert.ErrorAs(t, err, &nc)
	})

	t.Run("unknown name", func(t *testing.T) {
		_, err := r.Resolve("billing")
		var nc *core.NotConfiguredError
		require.ErrorAs(t, err, &nc)
		assert.Equal(t, "billing", nc.Name)
		assert.Contains(t, err.Error(), `"billing" is not configured`)
	})
}

func TestFromConfig(t *testing.T) {
	d := &testutil.StubDriver{}
	stub := WithAdapter(testutil.StubKind, &testutil.StubAdapter{DB: d.OpenDB(t)})

	t.Run("valid", func(t *testing.T) {
		r, err := FromConfig([]core.DataSourceConfig{
			{Name: "orders", Kind: "STUB", ConnectionString: "stub://orders", Default: true},
			{Name: "audit", Kind: "stub", ConnectionString: "stub://audit", Credentials: "svc:pw"},
		}, nil, stub)
		require.NoError(t, err)
		t.Cleanup(func() { _ = r.Close() })

		c, err := r.Resolve("")
		require.NoError(t, err)
		assert.Equal(t, "orders", c.Name())
		assert.False(t, c.DataSource().ConnectionString.StillEncrypted())

		audit, err := r.Resolve("audit")
		require.NoError(t, err)
		assert.True(t, audit.DataSource().HasCredentials())
	})

	t.Run("encrypted when a decrypter is configured", func(t *testing.T) {
		key := make([]byte, 32)
		dec, err := secret.NewXChaCha(key)
		require.NoError(t, err)

		r, err := FromConfig([]core.DataSourceConfig{
			{Name: "orders", Kind: "stub", ConnectionString: "ciphertext"},
		}, secret.NewStore(dec), stub)
		require.NoError(t, err)

		c, err := r.Resolve("orders")
		require.NoError(t, err)
		assert.True(t, c.DataSource().ConnectionString.StillEncrypted())
	})

	tests := []struct {
		name    string
		cfgs    []core.DataSourceConfig
		wantErr string
	}{
		{
			name: "two defaults",
			cfgs: []core.DataSourceConfig{
				{Name: "a", Kind: "stub", Default: true},
				{Name: "b", Kind: "stub", Default: true},
			},
			wantErr: "already the default",
		},
		{
			name: "duplicate names",
			cfgs: []core.DataSourceConfig{
				{Name: "a", Kind: "stub"},
				{Name: "A", Kind: "stub"},
			},
			wantErr: "defined more than once",
		},
		{
			name:    "missing name",
			cfgs:    []core.DataSourceConfig{{Kind: "stub"}},
			wantErr: "datasources[0] has no name",
		},
		{
			name:    "unknown kind",
			cfgs:    []core.DataSourceConfig{{Name: "a", Kind: "stub"}, {Name: "b", Kind: "oracle"}},
			wantErr: `unknown kind "oracle"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := FromConfig(tt.cfgs, nil, stub)
			require.Error(t, err)
			assert.Nil(t, r)
			var cfgErr *core.ConfigurationError
			assert.ErrorAs(t, err, &cfgErr)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRegistry_Close(t *testing.T) {
	d := &testutil.StubDriver{}
	r := New(WithAdapter(testutil.StubKind, &testutil.StubAdapter{DB: d.OpenDB(t)}))
	require.NoError(t, r.Register(stubSource("orders", true)))

	c, err := r.Resolve("orders")
	require.NoError(t, err)
	require.NoError(t, c.Ping(context.Background()))

	require.NoError(t, r.Close())
	assert.Equal(t, 0, r.Len())
	_, err = r.Resolve("orders")
	assert.Error(t, err)
}
