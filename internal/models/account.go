package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountType distinguishes the two supported account products.
type AccountType string

const (
	AccountTypeSavings  AccountType = "savings"
	AccountTypeChecking AccountType = "checking"
)

// Valid reports whether t is one of the supported account types.
func (t AccountType) Valid() bool {
	return t == AccountTypeSavings || t == AccountTypeChecking
}

// AccountStatus is the lifecycle state of an account.
//
// active is the initial state. frozen is reachable only from active, closed
// only from frozen, and unfreezing (frozen -> active) is the single reverse
// edge. closed is terminal.
type AccountStatus string

const (
	AccountStatusActive AccountStatus = "active"
	AccountStatusFrozen AccountStatus = "frozen"
	AccountStatusClosed AccountStatus = "closed"
)

// Account holds a user's balance. Balance never goes negative and is only
// mutated through the store's delta primitives while the account is active.
type Account struct {
	ID            string          `json:"id"`
	OwnerID       string          `json:"ownerId"`
	AccountNumber string          `json:"accountNumber"`
	Type          AccountType     `json:"accountType"`
	Balance       decimal.Decimal `json:"balance"`
	Status        AccountStatus   `json:"status"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// AccountDelta is one balance adjustment inside an atomic unit. A negative
// delta debits the account, a positive one credits it.
type AccountDelta struct {
	AccountNumber string
	Delta         decimal.Decimal
}
