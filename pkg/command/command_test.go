package command

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{in: "", want: Text},
		{in: "text", want: Text},
		{in: "procedure", want: StoredProcedure},
		{in: "stored_procedure", want: StoredProcedure},
		{in: "table", want: TableDirect},
		{in: "bogus", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseKind(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCommand_Hooks(t *testing.T) {
	var before, after int
	var seenElapsed time.Duration
	cmd := New("SELECT 1")
	cmd.Hooks = Hooks{
		BeforeExecute: func(*Command) { before++ },
		AfterExecute: func(_ *Command, d time.Duration) {
			after++
			seenElapsed = d
		},
	}

	cmd.RunBefore()
	cmd.RunAfter(42 * time.Millisecond)

	assert.Equal(t, 1, before)
	assert.Equal(t, 1, after)
	assert.Equal(t, 42*time.Millisecond, seenElapsed)
	assert.Equal(t, 42*time.Millisecond, cmd.Elapsed)
}

func TestCommand_HandleException(t *testing.T) {
	cmd := New("SELECT 1")
	assert.False(t, cmd.HandleException(errors.New("boom")), "no hook means not handled")

	cmd.Hooks.OnDataException = func(_ *Command, err error) bool {
		return err.Error() == "handled"
	}
	assert.True(t, cmd.HandleException(errors.New("handled")))
	assert.False(t, cmd.HandleException(errors.New("other")))
}

func TestCommand_InTransaction(t *testing.T) {
	cmd := New("SELECT 1")
	assert.False(t, cmd.InTransaction())

	cmd.Transaction = NewTxHandle("orders", nil, nil)
	assert.True(t, cmd.InTransaction())

	cmd.Transaction.Finish(TxCommitted)
	assert.False(t, cmd.InTransaction())
	assert.Equal(t, TxCommitted, cmd.Transaction.State)
}

func TestParameters_NameLookup(t *testing.T) {
	var ps Parameters
	ps.AddIn("@CustomerID", 7)
	ps.AddOut(":total")

	p, ok := ps.Get("customerid")
	require.True(t, ok)
	assert.Equal(t, 7, p.Value)
	assert.Equal(t, "CustomerID", p.BareName())

	_, ok = ps.Get("$TOTAL")
	assert.True(t, ok)

	_, ok = ps.Get("missing")
	assert.False(t, ok)

	ps.AddIn("customerID", 8)
	assert.Equal(t, 2, ps.Len(), "re-adding a name replaces in place")
	assert.Equal(t, 8, ps.Value("@customerid"))
}

func TestParameter_BindCollect(t *testing.T) {
	t.Run("in", func(t *testing.T) {
		p := &Parameter{Name: "id", Value: 5}
		arg, err := p.Bind()
		require.NoError(t, err)
		assert.Equal(t, 5, arg)
		assert.True(t, p.Bound())

		p.Collect()
		assert.False(t, p.Bound())
		assert.Equal(t, 5, p.Value)
	})

	t.Run("out", func(t *testing.T) {
		p := &Parameter{Name: "total", Direction: Out}
		arg, err := p.Bind()
		require.NoError(t, err)

		out, ok := arg.(sql.Out)
		require.True(t, ok)
		assert.False(t, out.In)
		*(out.Dest.(*any)) = int64(99)

		p.Collect()
		assert.Equal(t, int64(99), p.Value)
		assert.False(t, p.Bound())
	})

	t.Run("inout", func(t *testing.T) {
		p := &Parameter{Name: "counter", Value: int64(1), Direction: InOut}
		arg, err := p.Bind()
		require.NoError(t, err)

		out := arg.(sql.Out)
		assert.True(t, out.In)
		dest := out.Dest.(*any)
		assert.Equal(t, int64(1), *dest)
		*dest = int64(2)

		p.Collect()
		assert.Equal(t, int64(2), p.Value)
	})

	t.Run("reset discards out value", func(t *testing.T) {
		p := &Parameter{Name: "total", Value: "old", Direction: Out}
		arg, err := p.Bind()
		require.NoError(t, err)
		*(arg.(sql.Out).Dest.(*any)) = "new"

		p.Reset()
		assert.Equal(t, "old", p.Value)
		assert.False(t, p.Bound())
	})
}

func TestParameter_BindTwice(t *testing.T) {
	p := &Parameter{Name: "@id", Value: 1}
	_, err := p.Bind()
	require.NoError(t, err)

	_, err = p.Bind()
	require.ErrorIs(t, err, ErrParameterInUse)
	assert.Contains(t, err.Error(), "@id")

	p.Collect()
	_, err = p.Bind()
	assert.NoError(t, err, "a collected parameter can be bound again")
}
