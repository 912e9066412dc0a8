package editor

import (
	"fmt"

	"AccountDesk/internal/account"
	"AccountDesk/internal/store"
)

// Kind tags an Outcome.
type Kind int

const (
	PendingApply Kind = iota
	Conflict
	LockTimeout
	Deadlock
	Failure
	AlreadyPending
)

func (k Kind) String() string {
	switch k {
	case PendingApply:
		return "pending_apply"
	case Conflict:
		return "conflict"
	case LockTimeout:
		return "lock_timeout"
	case Deadlock:
		return "deadlock"
	case Failure:
		return "failure"
	case AlreadyPending:
		return "already_pending"
	default:
		return "unknown"
	}
}

// Retryable reports whether the same edit may succeed on a later attempt.
// Conflict and Deadlock need the baseline refreshed first.
func (k Kind) Retryable() bool {
	switch k {
	case Conflict, LockTimeout, Deadlock:
		return true
	default:
		return false
	}
}

// ConflictDetail carries what is stored next to what the editor believed.
type ConflictDetail struct {
	Stored   account.Baseline `json:"stored"`
	Baseline account.Baseline `json:"baseline"`
}

// Outcome is the result of BeginUpdate. Only PendingApply carries an open
// transaction; every other kind was rolled back before it was returned.
type Outcome struct {
	Kind     Kind
	Tx       store.Tx
	Conflict *ConflictDetail
	Err      error
}

func (o Outcome) Pending() bool {
	return o.Kind == PendingApply && o.Tx != nil
}

// Message renders the outcome for the person editing.
func (o Outcome) Message() string {
	switch o.Kind {
	case PendingApply:
		return "Change applied. Confirm or cancel the operation."
	case Conflict:
		if o.Conflict == nil {
			return "The account data is out of date. Refresh before trying again."
		}
		return fmt.Sprintf(
			"The account data is out of date.\nStored: %s\nOn screen: %s",
			o.Conflict.Stored, o.Conflict.Baseline,
		)
	case LockTimeout:
		return "Timed out waiting for the row lock. Try again later."
	case Deadlock:
		return "Deadlock detected. Operation rolled back. Refresh the data before trying again."
	case AlreadyPending:
		return "Another change is waiting for confirmation. Confirm or cancel it first."
	case Failure:
		if o.Err == nil {
			return "Error while changing the data."
		}
		return fmt.Sprintf("Error while changing the data: %v", o.Err)
	default:
		return "unknown outcome"
	}
}
