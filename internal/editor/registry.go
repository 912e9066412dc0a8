package editor

import (
	"context"
	"sort"
	"sync"
	"time"

	log "AccountDesk/internal/logger"

	"github.com/cockroachdb/errors"
)

const DefaultIdleTimeout = 10 * time.Minute

var ErrUnknownSession = errors.New("unknown edit session")

// Registry holds the live edit sessions by id. Each editor gets its own
// session, so parked transactions never share a slot.
type Registry struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	updater     *Updater
	reader      *Reader
	idleTimeout time.Duration
	logger      *log.Logger
}

func NewRegistry(updater *Updater, reader *Reader, idleTimeout time.Duration) *Registry {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &Registry{
		sessions:    make(map[string]*Session),
		updater:     updater,
		reader:      reader,
		idleTimeout: idleTimeout,
		logger:      log.Get("editor"),
	}
}

func (r *Registry) Reader() *Reader {
	return r.reader
}

func (r *Registry) Create() *Session {
	s := NewSession(r.updater, r.reader)

	r.mu.Lock()
	r.sessions[s.ID()] = s
	r.mu.Unlock()

	r.logger.Info("Session %s created", s.ID())
	return s
}

func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownSession, "%s", id)
	}
	return s, nil
}

// List returns the state of every session, oldest activity first.
func (r *Registry) List() []State {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	states := make([]State, 0, len(sessions))
	for _, s := range sessions {
		states = append(states, s.State())
	}
	sort.Slice(states, func(i, j int) bool {
		return states[i].LastActive.Before(states[j].LastActive)
	})
	return states
}

// Close removes the session and rolls back its parked change, if any.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return errors.Wrapf(ErrUnknownSession, "%s", id)
	}
	r.logger.Info("Session %s closed", id)
	return s.Close()
}

func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for id, s := range sessions {
		if err := s.Close(); err != nil {
			r.logger.Error("Closing session %s failed: %v", id, err)
		}
	}
}

// Reap closes sessions idle for longer than the idle timeout, so an
// abandoned editor cannot keep a row locked. It returns how many it closed.
// The registry lock is never held while a session is busy.
func (r *Registry) Reap(now time.Time) int {
	r.mu.RLock()
	sessions := make(map[string]*Session, len(r.sessions))
	for id, s := range r.sessions {
		sessions[id] = s
	}
	r.mu.RUnlock()

	closed := 0
	for id, s := range sessions {
		if s.IdleFor(now) > r.idleTimeout && r.reap(id, s, now) {
			closed++
		}
	}
	if closed > 0 {
		r.logger.Info("Reaped %d idle session(s)", closed)
	}
	return closed
}

// reap removes s if it is still registered under id and still idle, then
// closes it. It reports whether this call removed the session.
func (r *Registry) reap(id string, s *Session, now time.Time) bool {
	r.mu.Lock()
	if r.sessions[id] != s || s.IdleFor(now) <= r.idleTimeout {
		r.mu.Unlock()
		return false
	}
	delete(r.sessions, id)
	r.mu.Unlock()

	if err := s.Close(); err != nil {
		r.logger.Error("Reaping session %s failed: %v", id, err)
	}
	return true
}

// Run reaps on every tick until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			r.Reap(now)
		case <-ctx.Done():
			return
		}
	}
}
