package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"AccountDesk/internal/account"
	"AccountDesk/internal/store"

	"github.com/cockroachdb/errors"
)

type Status int

const (
	Active Status = iota
	Committed
	RolledBack
)

func (s Status) String() string {
	switch s {
	case Active:
		return "active"
	case Committed:
		return "committed"
	case RolledBack:
		return "rolled back"
	default:
		return "unknown"
	}
}

// Transaction is a store.Tx on the in-process engine. It holds one engine
// connection from Begin until Commit or Rollback.
type Transaction struct {
	mu          sync.Mutex
	id          string
	status      Status
	engine      *Engine
	shadow      *Shadow
	lockTimeout time.Duration
	started     time.Time
}

func (tx *Transaction) ID() string {
	return tx.id
}

func (tx *Transaction) Status() Status {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.status
}

// SetLockTimeout bounds every later lock wait in this transaction. Zero
// means wait without bound.
func (tx *Transaction) SetLockTimeout(ctx context.Context, d time.Duration) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if err := tx.usable(ctx); err != nil {
		return err
	}
	if d < 0 {
		return errors.Newf("invalid lock timeout %s", d)
	}
	tx.lockTimeout = d
	return nil
}

func (tx *Transaction) SelectForUpdate(ctx context.Context, id int64) (account.Account, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if err := tx.usable(ctx); err != nil {
		return account.Account{}, err
	}
	if err := tx.lockRow(ctx, id); err != nil {
		return account.Account{}, err
	}
	if err := tx.engine.takeFault(StageSelect); err != nil {
		return account.Account{}, err
	}

	if a, ok := tx.shadow.Get(id); ok {
		return a, nil
	}
	a, ok := tx.engine.committed(id)
	if !ok {
		return account.Account{}, errors.Wrapf(store.ErrNotFound, "id %d", id)
	}
	return a, nil
}

func (tx *Transaction) Update(ctx context.Context, a account.Account) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if err := tx.usable(ctx); err != nil {
		return err
	}
	if err := tx.lockRow(ctx, a.ID); err != nil {
		return err
	}
	if err := tx.engine.takeFault(StageUpdate); err != nil {
		return err
	}

	if _, ok := tx.shadow.Get(a.ID); !ok {
		if _, ok := tx.engine.committed(a.ID); !ok {
			return errors.Wrapf(store.ErrNotFound, "id %d", a.ID)
		}
	}
	tx.shadow.Put(a)
	tx.engine.logger.Debug("Transaction %s staged update of account %d", tx.id, a.ID)
	return nil
}

func (tx *Transaction) Commit() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.status != Active {
		return store.ErrTxDone
	}
	defer tx.finish()

	if err := tx.engine.takeFault(StageCommit); err != nil {
		tx.shadow.Cleanup()
		tx.status = RolledBack
		tx.engine.logger.Error("Commit of transaction %s failed: %v", tx.id, err)
		return err
	}
	if !tx.engine.Available() {
		tx.shadow.Cleanup()
		tx.status = RolledBack
		return errors.Wrap(store.ErrConnectivity, "commit")
	}

	n := tx.shadow.Len()
	tx.engine.apply(tx.shadow)
	tx.status = Committed
	tx.engine.logger.Info("Transaction %s committed %d row(s) after %s", tx.id, n, time.Since(tx.started))
	return nil
}

func (tx *Transaction) Rollback() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.status != Active {
		return store.ErrTxDone
	}
	defer tx.finish()

	tx.shadow.Cleanup()
	tx.status = RolledBack
	tx.engine.logger.Info("Transaction %s rolled back", tx.id)
	return nil
}

func (tx *Transaction) usable(ctx context.Context) error {
	if tx.status != Active {
		return store.ErrTxDone
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !tx.engine.Available() {
		return errors.Wrap(store.ErrConnectivity, "memory engine is offline")
	}
	return nil
}

func (tx *Transaction) lockRow(ctx context.Context, id int64) error {
	if err := tx.engine.takeFault(StageLock); err != nil {
		return err
	}
	lock := Lock{
		ResourceID:    rowResource(id),
		TransactionID: tx.id,
	}
	return tx.engine.locks.RequestAndWait(ctx, lock, tx.lockTimeout)
}

// finish releases the locks and the connection. Callers hold tx.mu.
func (tx *Transaction) finish() {
	tx.engine.locks.ReleaseAll(tx.id)
	tx.engine.release()
}

func rowResource(id int64) string {
	return fmt.Sprintf("accounts:%d", id)
}
