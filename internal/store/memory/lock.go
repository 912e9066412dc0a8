package memory

import (
	"context"
	"sync"
	"time"

	log "AccountDesk/internal/logger"
	"AccountDesk/internal/store"
)

// Lock is an exclusive row lock held by one transaction.
type Lock struct {
	ResourceID    string // table:row
	TransactionID string
}

// LockManager grants exclusive locks per resource. Waiters block on the
// resource's wake channel, which is closed whenever the owner releases.
type LockManager struct {
	mu      sync.Mutex
	owners  map[string]string          // resource -> owning transaction
	held    map[string]map[string]bool // transaction -> resources
	waiting map[string]string          // transaction -> resource it waits on
	wake    map[string]chan struct{}
	logger  *log.Logger
}

func NewLockManager() *LockManager {
	return &LockManager{
		owners:  make(map[string]string),
		held:    make(map[string]map[string]bool),
		waiting: make(map[string]string),
		wake:    make(map[string]chan struct{}),
		logger:  log.Get("store"),
	}
}

// RequestAndWait blocks until lock is granted, the timeout expires
// (store.ErrLockTimeout), granting would close a wait cycle
// (store.ErrDeadlock) or ctx is done. A timeout of zero waits without bound.
func (lm *LockManager) RequestAndWait(ctx context.Context, lock Lock, timeout time.Duration) error {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		lm.mu.Lock()
		owner, taken := lm.owners[lock.ResourceID]
		if !taken || owner == lock.TransactionID {
			lm.grant(lock)
			lm.mu.Unlock()
			return nil
		}

		lm.waiting[lock.TransactionID] = lock.ResourceID
		if lm.closesCycle(lock.TransactionID) {
			delete(lm.waiting, lock.TransactionID)
			lm.mu.Unlock()
			lm.logger.Debug("Deadlock: transaction %s waiting on %s held by %s", lock.TransactionID, lock.ResourceID, owner)
			return store.ErrDeadlock
		}

		ch, ok := lm.wake[lock.ResourceID]
		if !ok {
			ch = make(chan struct{})
			lm.wake[lock.ResourceID] = ch
		}
		lm.mu.Unlock()

		select {
		case <-ch:
		case <-expired:
			lm.stopWaiting(lock.TransactionID)
			lm.logger.Debug("Lock wait on %s for transaction %s timed out after %s", lock.ResourceID, lock.TransactionID, timeout)
			return store.ErrLockTimeout
		case <-ctx.Done():
			lm.stopWaiting(lock.TransactionID)
			return ctx.Err()
		}
	}
}

// ReleaseAll drops every lock held by the transaction and wakes waiters.
func (lm *LockManager) ReleaseAll(transactionID string) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	for resourceID := range lm.held[transactionID] {
		delete(lm.owners, resourceID)
		if ch, ok := lm.wake[resourceID]; ok {
			close(ch)
			delete(lm.wake, resourceID)
		}
	}
	delete(lm.held, transactionID)
	delete(lm.waiting, transactionID)
}

// Snapshot returns resource -> owner for every granted lock.
func (lm *LockManager) Snapshot() map[string]string {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	out := make(map[string]string, len(lm.owners))
	for k, v := range lm.owners {
		out[k] = v
	}
	return out
}

func (lm *LockManager) grant(lock Lock) {
	lm.owners[lock.ResourceID] = lock.TransactionID
	if lm.held[lock.TransactionID] == nil {
		lm.held[lock.TransactionID] = make(map[string]bool)
	}
	lm.held[lock.TransactionID][lock.ResourceID] = true
	delete(lm.waiting, lock.TransactionID)
}

func (lm *LockManager) stopWaiting(transactionID string) {
	lm.mu.Lock()
	delete(lm.waiting, transactionID)
	lm.mu.Unlock()
}

// closesCycle follows the waits-for chain starting at transactionID. Every
// transaction waits on at most one resource and every resource has one
// owner, so the graph out of a node is a single path.
func (lm *LockManager) closesCycle(transactionID string) bool {
	current := transactionID
	for steps := 0; steps <= len(lm.waiting); steps++ {
		resourceID, waits := lm.waiting[current]
		if !waits {
			return false
		}
		owner, taken := lm.owners[resourceID]
		if !taken {
			return false
		}
		if owner == transactionID {
			return true
		}
		current = owner
	}
	return false
}
