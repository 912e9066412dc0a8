package postgres

import (
	"database/sql/driver"
	"net"
	"strings"

	"AccountDesk/internal/store"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// SQLSTATE codes the store taxonomy cares about.
const (
	codeDeadlockDetected = "40P01"
	codeLockNotAvailable = "55P03"
	codeAdminShutdown    = "57P01"
	codeCannotConnectNow = "57P03"
	classConnection      = "08"
)

// classify marks driver errors with the matching store sentinel and leaves
// everything else untouched.
func classify(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.Mark(err, store.ErrNotFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == codeDeadlockDetected:
			return errors.Mark(err, store.ErrDeadlock)
		case pgErr.Code == codeLockNotAvailable:
			return errors.Mark(err, store.ErrLockTimeout)
		case strings.HasPrefix(pgErr.Code, classConnection),
			pgErr.Code == codeAdminShutdown,
			pgErr.Code == codeCannotConnectNow:
			return errors.Mark(err, store.ErrConnectivity)
		}
		return err
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return errors.Mark(err, store.ErrConnectivity)
	}
	if errors.Is(err, driver.ErrBadConn) {
		return errors.Mark(err, store.ErrConnectivity)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return errors.Mark(err, store.ErrConnectivity)
	}

	return err
}
