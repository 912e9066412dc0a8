// Package store defines the record store contract the edit workflow runs
// against, and the error taxonomy every backend maps its failures onto.
package store

import (
	"context"
	"time"

	"AccountDesk/internal/account"

	"github.com/cockroachdb/errors"
)

var (
	// ErrConnectivity marks failures to reach the backing store.
	ErrConnectivity = errors.New("store unreachable")
	// ErrDeadlock marks a transaction aborted by deadlock detection.
	ErrDeadlock = errors.New("deadlock detected")
	// ErrLockTimeout marks a row lock that was not granted within the lock timeout.
	ErrLockTimeout = errors.New("lock wait timeout")
	// ErrNotFound marks a missing row.
	ErrNotFound = errors.New("account not found")
	// ErrTxDone is returned when a finished transaction is used again.
	ErrTxDone = errors.New("transaction already finished")
)

// Store executes reads and writes against the accounts table. ListAll and
// GetByID acquire and release their own connection; Begin hands the
// connection to the returned Tx.
type Store interface {
	ListAll(ctx context.Context) ([]account.Account, error)
	GetByID(ctx context.Context, id int64) (account.Account, error)
	Begin(ctx context.Context) (Tx, error)
	Close() error
}

// Tx is one open write scope. Commit and Rollback both end the scope and
// release its connection, whatever they return.
type Tx interface {
	ID() string
	SetLockTimeout(ctx context.Context, d time.Duration) error
	// SelectForUpdate reads the row and holds its lock until the scope ends.
	SelectForUpdate(ctx context.Context, id int64) (account.Account, error)
	Update(ctx context.Context, a account.Account) error
	Commit() error
	Rollback() error
}

// Kind names the taxonomy bucket of err.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrConnectivity):
		return "connectivity"
	case errors.Is(err, ErrDeadlock):
		return "deadlock"
	case errors.Is(err, ErrLockTimeout):
		return "lock timeout"
	case errors.Is(err, ErrNotFound):
		return "not found"
	case errors.Is(err, ErrTxDone):
		return "tx done"
	default:
		return "failure"
	}
}
