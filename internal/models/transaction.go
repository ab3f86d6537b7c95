package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the kind of balance movement a transaction represents.
type TransactionType string

const (
	TransactionTypeDeposit    TransactionType = "deposit"
	TransactionTypeWithdrawal TransactionType = "withdrawal"
	TransactionTypeTransfer   TransactionType = "transfer"
)

// Valid reports whether t is one of the supported transaction types.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypeWithdrawal, TransactionTypeTransfer:
		return true
	}
	return false
}

// TransactionStatus is the outcome recorded on a transaction.
//
// pending is declared for forward compatibility with asynchronous settlement
// but is never produced by the coordinator today: records are written with
// their terminal status directly. successful and failed are terminal; a
// transaction is never mutated after one of them is set.
type TransactionStatus string

const (
	TransactionStatusPending    TransactionStatus = "pending"
	TransactionStatusSuccessful TransactionStatus = "successful"
	TransactionStatusFailed     TransactionStatus = "failed"
)

// Transaction is the append-only audit record of one settlement attempt.
// SenderAccountNumber is set for withdrawals and transfers,
// ReceiverAccountNumber for deposits and transfers.
type Transaction struct {
	ID                    string            `json:"id"`
	InitiatorUserID       string            `json:"userId"`
	Type                  TransactionType   `json:"type"`
	Amount                decimal.Decimal   `json:"amount"`
	Status                TransactionStatus `json:"status"`
	SenderAccountNumber   string            `json:"senderAccountNumber,omitempty"`
	ReceiverAccountNumber string            `json:"receiverAccountNumber,omitempty"`
	Description           string            `json:"description,omitempty"`
	CreatedAt             time.Time         `json:"createdAt"`
}
