// Package account defines the customer account row and the value pairs the
// edit workflow passes around.
package account

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Account is one row of the accounts table. ID is the primary key and never
// changes once assigned.
type Account struct {
	ID    int64           `json:"id"`
	Name  string          `json:"name"`
	Limit decimal.Decimal `json:"limit"`
}

// Baseline is what the editor believes is stored for a row.
type Baseline struct {
	Name  string          `json:"name"`
	Limit decimal.Decimal `json:"limit"`
}

// Proposed holds the values the editor wants to write.
type Proposed struct {
	Name  string          `json:"name"`
	Limit decimal.Decimal `json:"limit"`
}

// Baseline captures the row's current values.
func (a Account) Baseline() Baseline {
	return Baseline{Name: a.Name, Limit: a.Limit}
}

// Matches reports whether the stored row still carries the baseline values.
// Limits compare numerically, so 100 and 100.00 match.
func (a Account) Matches(b Baseline) bool {
	return a.Name == b.Name && a.Limit.Equal(b.Limit)
}

// Apply returns a copy of the account with the proposed values.
func (a Account) Apply(p Proposed) Account {
	return Account{ID: a.ID, Name: p.Name, Limit: p.Limit}
}

func (a Account) String() string {
	return fmt.Sprintf("#%d %s (limit %s)", a.ID, a.Name, a.Limit.String())
}

func (b Baseline) String() string {
	return fmt.Sprintf("name: %s, limit: %s", b.Name, b.Limit.String())
}

func (p Proposed) String() string {
	return fmt.Sprintf("name: %s, limit: %s", p.Name, p.Limit.String())
}
