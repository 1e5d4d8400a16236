package memory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var errSQLUnsupported = errors.New("memory: raw SQL is not supported")

// Tx is a pgx.Tx over the in-memory store. Writes apply immediately and are
// undone on Rollback; row locks taken by LockProject are held until the
// transaction ends.
type Tx struct {
	store *Store
	held  []uuid.UUID
	undo  []func()
	done  bool
}

var _ pgx.Tx = (*Tx)(nil)

func (t *Tx) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("memory: nested transactions are not supported")
}

func (t *Tx) Commit(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.store.mu.Lock()
	t.undo = nil
	t.store.mu.Unlock()
	t.finish()
	return nil
}

// Rollback reverts every write in reverse order. After Commit it is a no-op.
func (t *Tx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.store.mu.Lock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
	t.store.mu.Unlock()
	t.finish()
	return nil
}

func (t *Tx) finish() {
	t.done = true
	for _, id := range t.held {
		t.store.unlock(id)
	}
	t.held = nil
}

func (t *Tx) holds(id uuid.UUID) bool {
	for _, h := range t.held {
		if h == id {
			return true
		}
	}
	return false
}

func (t *Tx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errSQLUnsupported
}

func (t *Tx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errSQLUnsupported
}

func (t *Tx) QueryRow(context.Context, string, ...any) pgx.Row { return errRow{} }

func (t *Tx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, errSQLUnsupported
}

func (t *Tx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (t *Tx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }

func (t *Tx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, errSQLUnsupported
}

func (t *Tx) Conn() *pgx.Conn { return nil }

type errRow struct{}

func (errRow) Scan(...any) error { return errSQLUnsupported }
