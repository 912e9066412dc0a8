package editor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"AccountDesk/internal/account"
	log "AccountDesk/internal/logger"
	"AccountDesk/internal/store"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

var (
	ErrAlreadyPending = errors.New("a change is already waiting for confirmation")
	ErrNothingPending = errors.New("no change is waiting for confirmation")
	ErrNoSelection    = errors.New("no account selected")
	ErrSessionClosed  = errors.New("edit session closed")
)

// Session is one editor's state: the selected row, the baseline read for it
// and at most one parked transaction. It is safe for concurrent use; calls
// are serialized.
type Session struct {
	mu         sync.Mutex
	id         string
	updater    *Updater
	reader     *Reader
	selected   int64
	hasRow     bool
	baseline   account.Baseline
	proposed   account.Proposed
	pending    store.Tx
	lastActive atomic.Int64 // unix nanos, readable without mu
	closed     bool
	logger     *log.Logger
}

// State is a snapshot of a session for transport.
type State struct {
	ID         string            `json:"id"`
	Selected   *int64            `json:"selected,omitempty"`
	Baseline   *account.Baseline `json:"baseline,omitempty"`
	Proposed   *account.Proposed `json:"proposed,omitempty"`
	Pending    bool              `json:"pending"`
	PendingTx  string            `json:"pending_tx,omitempty"`
	LastActive time.Time         `json:"last_active"`
}

func NewSession(updater *Updater, reader *Reader) *Session {
	s := &Session{
		id:      uuid.NewString(),
		updater: updater,
		reader:  reader,
		logger:  updater.logger,
	}
	s.touch()
	return s
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state()
}

// Select reads the row and makes its values the baseline. A row that cannot
// be read clears the selection and returns a diagnostic, so no edit can run
// against a baseline that was never read.
func (s *Session) Select(ctx context.Context, id int64) (State, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	if s.closed {
		return s.state(), "", ErrSessionClosed
	}
	if s.pending != nil {
		return s.state(), "", ErrAlreadyPending
	}

	a, found, diagnostic := s.reader.FetchAccount(ctx, id)
	if !found {
		s.selected, s.hasRow = 0, false
		s.baseline = account.Baseline{}
		return s.state(), diagnostic, nil
	}
	s.selected, s.hasRow = id, true
	s.baseline = a.Baseline()
	return s.state(), "", nil
}

// Edit proposes new values for the selected row against the session
// baseline.
func (s *Session) Edit(ctx context.Context, proposed account.Proposed) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	if s.closed {
		return Outcome{Kind: Failure, Err: ErrSessionClosed}
	}
	if !s.hasRow {
		return Outcome{Kind: Failure, Err: ErrNoSelection}
	}
	return s.update(ctx, s.selected, proposed, s.baseline)
}

// Update runs the conflict-checked update with an explicit baseline and
// parks the transaction on PendingApply. While a change is parked the
// request is rejected with AlreadyPending and the store is not touched.
func (s *Session) Update(ctx context.Context, id int64, proposed account.Proposed, baseline account.Baseline) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	return s.update(ctx, id, proposed, baseline)
}

func (s *Session) update(ctx context.Context, id int64, proposed account.Proposed, baseline account.Baseline) Outcome {
	if s.closed {
		return Outcome{Kind: Failure, Err: ErrSessionClosed}
	}
	if s.pending != nil {
		return Outcome{Kind: AlreadyPending}
	}

	out := s.updater.BeginUpdate(ctx, id, proposed, baseline)
	if out.Pending() {
		s.pending = out.Tx
		s.proposed = proposed
		s.selected, s.hasRow = id, true
		s.baseline = baseline
	}
	return out
}

// Park stores an open transaction. It is rejected while another one is
// parked; the caller still owns tx in that case.
func (s *Session) Park(tx store.Tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	if s.closed {
		return ErrSessionClosed
	}
	if s.pending != nil {
		return ErrAlreadyPending
	}
	s.pending = tx
	return nil
}

func (s *Session) IsPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

// ResolveCommit commits the parked transaction. The slot is cleared and
// the connection released whether or not the commit succeeds.
func (s *Session) ResolveCommit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	return s.resolve(true)
}

// ResolveRollback discards the parked transaction with the same release
// guarantee as ResolveCommit.
func (s *Session) ResolveRollback() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	return s.resolve(false)
}

// Close rolls back anything parked and refuses further edits.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.pending == nil {
		return nil
	}
	s.logger.Info("Session %s closed with a pending change; rolling back", s.id)
	return s.resolve(false)
}

// IdleFor reports how long the session has gone without a call. It does
// not wait for a call in progress.
func (s *Session) IdleFor(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, s.lastActive.Load()))
}

func (s *Session) resolve(commit bool) error {
	tx := s.pending
	if tx == nil {
		return ErrNothingPending
	}
	s.pending = nil
	s.proposed = account.Proposed{}

	var err error
	if commit {
		err = tx.Commit()
	} else {
		err = tx.Rollback()
	}
	if err != nil {
		// Make sure the scope is gone even if the driver left it half open.
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, store.ErrTxDone) {
			s.logger.Error("Session %s: releasing transaction %s failed: %v", s.id, tx.ID(), rbErr)
		}
		s.logger.Error("Session %s: resolving transaction %s failed: %v", s.id, tx.ID(), err)
		return err
	}

	if commit {
		s.logger.Info("Session %s: transaction %s committed", s.id, tx.ID())
	} else {
		s.logger.Info("Session %s: transaction %s rolled back", s.id, tx.ID())
	}
	s.selected, s.hasRow = 0, false
	s.baseline = account.Baseline{}
	return nil
}

func (s *Session) touch() {
	s.lastActive.Store(time.Now().UnixNano())
}

func (s *Session) state() State {
	st := State{
		ID:         s.id,
		Pending:    s.pending != nil,
		LastActive: time.Unix(0, s.lastActive.Load()),
	}
	if s.hasRow {
		id := s.selected
		b := s.baseline
		st.Selected = &id
		st.Baseline = &b
	}
	if s.pending != nil {
		p := s.proposed
		st.Proposed = &p
		st.PendingTx = s.pending.ID()
	}
	return st
}
