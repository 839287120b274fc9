package domain

import "github.com/google/uuid"

// AccountStatus is the lifecycle state of a ledger account.
type AccountStatus string

const (
	AccountOpen   AccountStatus = "open"
	AccountClosed AccountStatus = "closed"
)

// Account is the read-only view of a treasury account owned by the ledger
// service. Only open accounts may receive new payments; closed accounts remain
// displayable for subscriptions historically tied to them, flagged disabled so
// the frontend grays them out instead of offering them.
type Account struct {
	ID       uuid.UUID     `json:"id"`
	Name     string        `json:"name"`
	Status   AccountStatus `json:"status"`
	Disabled bool          `json:"disabled"`
}

// IsOpen reports whether the account may be selected for a new payment.
func (a Account) IsOpen() bool { return a.Status == AccountOpen }
