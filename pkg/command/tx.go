package command

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TxState is the lifecycle state of a TxHandle.
type TxState int

const (
	TxOpen TxState = iota
	TxCommitted
	TxRolledBack
	// TxReleased means the connection was released after a failed
	// commit or rollback.
	TxReleased
)

func (s TxState) String() string {
	switch s {
	case TxOpen:
		return "open"
	case TxCommitted:
		return "committed"
	case TxRolledBack:
		return "rolled_back"
	case TxReleased:
		return "released"
	default:
		return fmt.Sprintf("txstate(%d)", int(s))
	}
}

// TxHandle binds a native transaction and its dedicated connection to
// commands. It is not safe for concurrent use.
type TxHandle struct {
	ID         uuid.UUID
	DataSource string
	Conn       *sql.Conn
	Tx         *sql.Tx
	State      TxState
	StartedAt  time.Time

	// Discard marks a connection whose session state was changed (for
	// example its catalog). It is dropped instead of returned to the pool.
	Discard bool

	releaseOnce sync.Once
}

// NewTxHandle returns an open handle for tx running on conn.
func NewTxHandle(dataSource string, conn *sql.Conn, tx *sql.Tx) *TxHandle {
	return &TxHandle{
		ID:         uuid.New(),
		DataSource: dataSource,
		Conn:       conn,
		Tx:         tx,
		State:      TxOpen,
		StartedAt:  time.Now(),
	}
}

// Finish moves the handle to state and returns its connection to the pool.
// The connection is released at most once; later calls only update State.
func (h *TxHandle) Finish(state TxState) {
	h.State = state
	h.releaseOnce.Do(func() {
		if h.Conn == nil {
			return
		}
		if h.Discard {
			_ = h.Conn.Raw(func(any) error { return driver.ErrBadConn })
		}
		_ = h.Conn.Close()
	})
}

func (h *TxHandle) String() string {
	return fmt.Sprintf("tx %s on %s (%s)", h.ID, h.DataSource, h.State)
}
