package memory

import "AccountDesk/internal/account"

// Shadow holds a transaction's writes until commit. Reads inside the
// transaction see shadow rows first; commit copies them into the committed
// table in one step, rollback drops them.
type Shadow struct {
	rows map[int64]account.Account
}

func NewShadow() *Shadow {
	return &Shadow{rows: make(map[int64]account.Account)}
}

func (s *Shadow) Put(a account.Account) {
	s.rows[a.ID] = a
}

// Get returns the shadow copy of a row, if the transaction wrote one.
func (s *Shadow) Get(id int64) (account.Account, bool) {
	a, ok := s.rows[id]
	return a, ok
}

// CommitTo copies every shadow row into target.
func (s *Shadow) CommitTo(target map[int64]account.Account) {
	for id, a := range s.rows {
		target[id] = a
	}
	s.Cleanup()
}

func (s *Shadow) Cleanup() {
	s.rows = make(map[int64]account.Account)
}

func (s *Shadow) Len() int {
	return len(s.rows)
}
