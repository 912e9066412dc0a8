package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"AccountDesk/internal/account"
	"AccountDesk/internal/editor"
	l "AccountDesk/internal/logger"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

type Server struct {
	registry *editor.Registry
	reader   *editor.Reader
	logger   *l.Logger
}

func New(registry *editor.Registry) *Server {
	return &Server{
		registry: registry,
		reader:   registry.Reader(),
		logger:   l.Get("server"),
	}
}

type accountsResponse struct {
	Accounts   []account.Account `json:"accounts"`
	Diagnostic string            `json:"diagnostic,omitempty"`
}

type accountResponse struct {
	Account    *account.Account `json:"account"`
	Found      bool             `json:"found"`
	Diagnostic string           `json:"diagnostic,omitempty"`
}

type selectRequest struct {
	ID int64 `json:"id"`
}

type selectResponse struct {
	Session    editor.State `json:"session"`
	Diagnostic string       `json:"diagnostic,omitempty"`
}

// updateRequest proposes new values. Without a baseline the session's
// baseline for its selected row is used, and ID must be absent; an explicit
// baseline needs ID.
type updateRequest struct {
	Name     string            `json:"name"`
	Limit    decimal.Decimal   `json:"limit"`
	ID       *int64            `json:"id,omitempty"`
	Baseline *account.Baseline `json:"baseline,omitempty"`
}

type outcomeResponse struct {
	Kind      string                 `json:"kind"`
	Message   string                 `json:"message"`
	Retryable bool                   `json:"retryable"`
	TxID      string                 `json:"tx_id,omitempty"`
	Conflict  *editor.ConflictDetail `json:"conflict,omitempty"`
	Session   editor.State           `json:"session"`
}

type resolveResponse struct {
	OK      bool         `json:"ok"`
	Message string       `json:"message"`
	Session editor.State `json:"session"`
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health & readiness
	mux.HandleFunc("GET /health", health)

	// Read path
	// GET /accounts       -> every account, ordered by id
	// GET /accounts/{id}  -> one account
	mux.HandleFunc("GET /accounts", s.listAccounts)
	mux.HandleFunc("GET /accounts/{id}", s.getAccount)

	// Edit sessions
	// POST   /sessions                 -> open a session
	// GET    /sessions                 -> list sessions
	// GET    /sessions/{id}            -> inspect a session
	// DELETE /sessions/{id}            -> close, rolling back a parked change
	// POST   /sessions/{id}/select     -> select a row, capture its baseline
	// POST   /sessions/{id}/update     -> conflict-checked update
	// POST   /sessions/{id}/commit     -> commit the parked change
	// POST   /sessions/{id}/rollback   -> discard the parked change
	mux.HandleFunc("POST /sessions", s.createSession)
	mux.HandleFunc("GET /sessions", s.listSessions)
	mux.HandleFunc("GET /sessions/{id}", s.getSession)
	mux.HandleFunc("DELETE /sessions/{id}", s.closeSession)
	mux.HandleFunc("POST /sessions/{id}/select", s.selectAccount)
	mux.HandleFunc("POST /sessions/{id}/update", s.update)
	mux.HandleFunc("POST /sessions/{id}/commit", s.commit)
	mux.HandleFunc("POST /sessions/{id}/rollback", s.rollback)

	return s.logRequests(mux)
}

// ListenAndServe serves until ctx is cancelled, then shuts down and closes
// every session so no row lock outlives the process.
func (s *Server) ListenAndServe(ctx context.Context, addr string, grace time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.registry.CloseAll()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		s.registry.CloseAll()
		return err
	}
}

// health returns 200 OK for liveness checks
func health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) listAccounts(w http.ResponseWriter, r *http.Request) {
	rows, diagnostic := s.reader.ListAccounts(r.Context())
	s.writeJSON(w, http.StatusOK, accountsResponse{Accounts: rows, Diagnostic: diagnostic})
}

func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	a, found, diagnostic := s.reader.FetchAccount(r.Context(), id)
	resp := accountResponse{Found: found, Diagnostic: diagnostic}
	if found {
		resp.Account = &a
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	session := s.registry.Create()
	s.writeJSON(w, http.StatusCreated, session.State())
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.registry.List())
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, session.State())
}

func (s *Server) closeSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.registry.Close(id); err != nil {
		if errors.Is(err, editor.ErrUnknownSession) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		s.logger.Error("Closing session %s failed: %v", id, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) selectAccount(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}

	var req selectRequest
	if !s.decode(w, r, &req) {
		return
	}

	state, diagnostic, err := session.Select(r.Context(), req.ID)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	s.writeJSON(w, http.StatusOK, selectResponse{Session: state, Diagnostic: diagnostic})
}

func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}

	var req updateRequest
	if !s.decode(w, r, &req) {
		return
	}

	proposed := account.Proposed{Name: req.Name, Limit: req.Limit}
	var out editor.Outcome
	switch {
	case req.Baseline != nil && req.ID != nil:
		out = session.Update(r.Context(), *req.ID, proposed, *req.Baseline)
	case req.Baseline != nil:
		http.Error(w, "a baseline needs the account id", http.StatusBadRequest)
		return
	case req.ID != nil:
		http.Error(w, "an account id needs a baseline; select the account to edit it without one", http.StatusBadRequest)
		return
	default:
		out = session.Edit(r.Context(), proposed)
	}

	resp := outcomeResponse{
		Kind:      out.Kind.String(),
		Message:   out.Message(),
		Retryable: out.Kind.Retryable(),
		Conflict:  out.Conflict,
		Session:   session.State(),
	}
	if out.Tx != nil {
		resp.TxID = out.Tx.ID()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) commit(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}

	if err := session.ResolveCommit(); err != nil {
		s.resolveFailed(w, session, err, "Error saving the change")
		return
	}
	s.writeJSON(w, http.StatusOK, resolveResponse{
		OK:      true,
		Message: "Change confirmed and saved.",
		Session: session.State(),
	})
}

func (s *Server) rollback(w http.ResponseWriter, r *http.Request) {
	session, ok := s.session(w, r)
	if !ok {
		return
	}

	if err := session.ResolveRollback(); err != nil {
		s.resolveFailed(w, session, err, "Error cancelling the change")
		return
	}
	s.writeJSON(w, http.StatusOK, resolveResponse{
		OK:      true,
		Message: "Change cancelled.",
		Session: session.State(),
	})
}

func (s *Server) resolveFailed(w http.ResponseWriter, session *editor.Session, err error, prefix string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("Session %s: %s: %v", session.ID(), prefix, err)
	}
	s.writeJSON(w, status, resolveResponse{
		OK:      false,
		Message: prefix + ": " + err.Error(),
		Session: session.State(),
	})
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*editor.Session, bool) {
	session, err := s.registry.Get(r.PathValue("id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return nil, false
	}
	return session, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, editor.ErrUnknownSession):
		return http.StatusNotFound
	case errors.Is(err, editor.ErrAlreadyPending),
		errors.Is(err, editor.ErrNothingPending),
		errors.Is(err, editor.ErrSessionClosed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "account id must be an integer", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.logger.Error("Failed to decode request body: %v", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("Failed to marshal response: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
