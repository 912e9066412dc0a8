// Package memory is an in-process accounts store with row locks, a bounded
// lock wait, deadlock detection and shadowed writes. It backs the test suite
// and the server's demo mode.
package memory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"AccountDesk/internal/account"
	log "AccountDesk/internal/logger"
	"AccountDesk/internal/store"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Stage names a point inside a transaction where a fault can be injected.
type Stage int

const (
	StageLock Stage = iota
	StageSelect
	StageUpdate
	StageCommit
)

type Engine struct {
	mu        sync.RWMutex
	rows      map[int64]account.Account
	locks     *LockManager
	available atomic.Bool
	openConns atomic.Int64

	faultMu sync.Mutex
	faults  map[Stage]error

	logger *log.Logger
}

var _ store.Store = (*Engine)(nil)

func New() *Engine {
	e := &Engine{
		rows:   make(map[int64]account.Account),
		locks:  NewLockManager(),
		faults: make(map[Stage]error),
		logger: log.Get("store"),
	}
	e.available.Store(true)
	return e
}

// Put writes a committed row, bypassing locks.
func (e *Engine) Put(a account.Account) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rows[a.ID] = a
}

// Seed loads the demo rows.
func (e *Engine) Seed() {
	for _, a := range []account.Account{
		{ID: 1, Name: "Bruno", Limit: decimal.RequireFromString("2500.00")},
		{ID: 2, Name: "Carla", Limit: decimal.RequireFromString("800.00")},
		{ID: 3, Name: "Alice", Limit: decimal.RequireFromString("100.00")},
		{ID: 4, Name: "Diego", Limit: decimal.RequireFromString("12000.00")},
		{ID: 5, Name: "Elena", Limit: decimal.RequireFromString("0.00")},
	} {
		e.Put(a)
	}
}

// SetAvailable toggles whether new calls can reach the engine.
func (e *Engine) SetAvailable(ok bool) {
	e.available.Store(ok)
}

func (e *Engine) Available() bool {
	return e.available.Load()
}

// InjectFault makes the next operation reaching stage fail with err.
func (e *Engine) InjectFault(stage Stage, err error) {
	e.faultMu.Lock()
	defer e.faultMu.Unlock()
	e.faults[stage] = err
}

// OpenConns reports the connections currently held.
func (e *Engine) OpenConns() int {
	return int(e.openConns.Load())
}

// Locks returns the granted row locks, resource -> transaction id.
func (e *Engine) Locks() map[string]string {
	return e.locks.Snapshot()
}

func (e *Engine) ListAll(ctx context.Context) ([]account.Account, error) {
	if err := e.connect(ctx); err != nil {
		return nil, err
	}
	defer e.release()

	e.mu.RLock()
	out := make([]account.Account, 0, len(e.rows))
	for _, a := range e.rows {
		out = append(out, a)
	}
	e.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (e *Engine) GetByID(ctx context.Context, id int64) (account.Account, error) {
	if err := e.connect(ctx); err != nil {
		return account.Account{}, err
	}
	defer e.release()

	a, ok := e.committed(id)
	if !ok {
		return account.Account{}, errors.Wrapf(store.ErrNotFound, "id %d", id)
	}
	return a, nil
}

func (e *Engine) Begin(ctx context.Context) (store.Tx, error) {
	if err := e.connect(ctx); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	tx := &Transaction{
		id:      id,
		status:  Active,
		engine:  e,
		shadow:  NewShadow(),
		started: time.Now(),
	}
	e.logger.Debug("Began transaction %s", id)
	return tx, nil
}

func (e *Engine) Close() error {
	return nil
}

func (e *Engine) connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !e.available.Load() {
		return errors.Wrap(store.ErrConnectivity, "memory engine is offline")
	}
	e.openConns.Add(1)
	return nil
}

func (e *Engine) release() {
	e.openConns.Add(-1)
}

func (e *Engine) committed(id int64) (account.Account, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	a, ok := e.rows[id]
	return a, ok
}

func (e *Engine) apply(s *Shadow) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s.CommitTo(e.rows)
}

func (e *Engine) takeFault(stage Stage) error {
	e.faultMu.Lock()
	defer e.faultMu.Unlock()
	err, ok := e.faults[stage]
	if !ok {
		return nil
	}
	delete(e.faults, stage)
	return err
}
