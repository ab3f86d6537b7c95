// Package events defines the payloads handed to the message bus. Payloads are
// flat JSON structures; consumers tolerate extra fields but every field listed
// here is mandatory on the wire.
package events

import "github.com/shopspring/decimal"

// Bus topics. One topic per event kind, delivered at-least-once.
const (
	TopicTransactionCompleted = "TransactionCompleted"
	TopicTransactionFailed    = "TransactionFailed"
	TopicAccountFunded        = "AccountFunded"
)

// TransactionCompleted announces a committed transaction. Emitted strictly
// after the atomic unit commits.
type TransactionCompleted struct {
	UserID      string          `json:"userId"`
	Amount      decimal.Decimal `json:"amount"`
	Type        string          `json:"type"`
	Description string          `json:"description"`
	Status      string          `json:"status"`
	Timestamp   string          `json:"timestamp"`
}

// TransactionFailed announces a business-rule rejection. Internal faults do
// not produce this event.
type TransactionFailed struct {
	UserID      string          `json:"userId"`
	Amount      decimal.Decimal `json:"amount"`
	Type        string          `json:"type"`
	Reason      string          `json:"reason"`
	Description string          `json:"description"`
	Status      string          `json:"status"`
	Timestamp   string          `json:"timestamp"`
}

// AccountFunded announces a direct account credit. Balance is the account's
// balance immediately after the funding commit.
type AccountFunded struct {
	AccountNumber string          `json:"accountNumber"`
	UserID        string          `json:"userId"`
	Amount        decimal.Decimal `json:"amount"`
	Balance       decimal.Decimal `json:"balance"`
	Timestamp     string          `json:"timestamp"`
}
