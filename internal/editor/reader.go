package editor

import (
	"context"
	"fmt"

	"AccountDesk/internal/account"
	log "AccountDesk/internal/logger"
	"AccountDesk/internal/store"

	"github.com/cockroachdb/errors"
)

// Reader is the read path. Store failures come back as an empty result and
// a diagnostic for the person editing, never as an error.
type Reader struct {
	store  store.Store
	logger *log.Logger
}

func NewReader(s store.Store) *Reader {
	return &Reader{store: s, logger: log.Get("editor")}
}

// ListAccounts returns every account ordered by id.
func (r *Reader) ListAccounts(ctx context.Context) ([]account.Account, string) {
	rows, err := r.store.ListAll(ctx)
	if err != nil {
		r.logger.Error("Listing accounts failed: %v", err)
		return []account.Account{}, diagnose(err, "Could not load the accounts")
	}
	return rows, ""
}

// FetchAccount returns one account and whether it exists.
func (r *Reader) FetchAccount(ctx context.Context, id int64) (account.Account, bool, string) {
	a, err := r.store.GetByID(ctx, id)
	switch {
	case err == nil:
		return a, true, ""
	case errors.Is(err, store.ErrNotFound):
		return account.Account{}, false, fmt.Sprintf("Account %d not found.", id)
	default:
		r.logger.Error("Reading account %d failed: %v", id, err)
		return account.Account{}, false, diagnose(err, fmt.Sprintf("Could not load account %d", id))
	}
}

func diagnose(err error, prefix string) string {
	if errors.Is(err, store.ErrConnectivity) {
		return prefix + ": the database is unreachable. Check the connection."
	}
	return fmt.Sprintf("%s: %v", prefix, err)
}
