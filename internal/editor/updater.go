// Package editor implements the conflict-checked update of a single account
// row and the session that parks the resulting transaction until the editor
// confirms or cancels it.
package editor

import (
	"context"
	"time"

	"AccountDesk/internal/account"
	log "AccountDesk/internal/logger"
	"AccountDesk/internal/store"

	"github.com/cockroachdb/errors"
)

const DefaultLockTimeout = 5 * time.Second

// Updater verifies a baseline and applies an edit inside one transaction.
type Updater struct {
	store       store.Store
	lockTimeout time.Duration
	logger      *log.Logger
}

func NewUpdater(s store.Store, lockTimeout time.Duration) *Updater {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &Updater{store: s, lockTimeout: lockTimeout, logger: log.Get("editor")}
}

// BeginUpdate re-reads the row under a bounded lock wait, compares it with
// baseline and, when it matches, writes proposed without committing. The
// returned PendingApply outcome owns the open transaction; every other
// outcome has already been rolled back.
func (u *Updater) BeginUpdate(ctx context.Context, id int64, proposed account.Proposed, baseline account.Baseline) Outcome {
	tx, err := u.store.Begin(ctx)
	if err != nil {
		u.logger.Error("Begin for account %d failed: %v", id, err)
		return failed(err)
	}
	u.logger.Debug("Transaction %s: updating account %d", tx.ID(), id)

	if err := tx.SetLockTimeout(ctx, u.lockTimeout); err != nil {
		return u.abort(tx, id, err)
	}

	stored, err := tx.SelectForUpdate(ctx, id)
	if err != nil {
		return u.abort(tx, id, err)
	}

	if !stored.Matches(baseline) {
		u.rollback(tx)
		u.logger.Info("Transaction %s: account %d changed since it was read (stored %s, baseline %s)",
			tx.ID(), id, stored.Baseline(), baseline)
		return Outcome{
			Kind: Conflict,
			Conflict: &ConflictDetail{
				Stored:   stored.Baseline(),
				Baseline: baseline,
			},
		}
	}

	if err := tx.Update(ctx, stored.Apply(proposed)); err != nil {
		return u.abort(tx, id, err)
	}

	u.logger.Info("Transaction %s: account %d updated, awaiting confirmation", tx.ID(), id)
	return Outcome{Kind: PendingApply, Tx: tx}
}

// abort rolls tx back and maps err onto its outcome kind.
func (u *Updater) abort(tx store.Tx, id int64, err error) Outcome {
	u.rollback(tx)
	u.logger.Error("Transaction %s: update of account %d aborted (%s): %v", tx.ID(), id, store.Kind(err), err)
	return failed(err)
}

func (u *Updater) rollback(tx store.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, store.ErrTxDone) {
		u.logger.Error("Rollback of transaction %s failed: %v", tx.ID(), err)
	}
}

func failed(err error) Outcome {
	switch {
	case errors.Is(err, store.ErrDeadlock):
		return Outcome{Kind: Deadlock, Err: err}
	case errors.Is(err, store.ErrLockTimeout):
		return Outcome{Kind: LockTimeout, Err: err}
	default:
		return Outcome{Kind: Failure, Err: err}
	}
}
