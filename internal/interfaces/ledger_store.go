package interfaces

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/corebank/ledger-engine/internal/models"
)

// LedgerStore is the persistence contract for accounts and transactions.
//
// Balance mutation goes exclusively through ApplyDelta and ApplyTransaction;
// both enforce that the touched accounts are active and that no balance goes
// negative, and reject with models.ErrAccountNotFound, ErrAccountNotActive or
// ErrInsufficientBalance.
type LedgerStore interface {
	CreateAccount(ctx context.Context, account models.Account) error
	GetAccountByNumber(ctx context.Context, accountNumber string) (models.Account, error)
	GetAccountsByOwner(ctx context.Context, ownerID string) ([]models.Account, error)

	// UpdateAccountStatus is a compare-and-set: the transition applies only
	// if the account is still in from, otherwise models.ErrStatusConflict.
	UpdateAccountStatus(ctx context.Context, accountNumber string, from, to models.AccountStatus) (models.Account, error)
	DeleteAccount(ctx context.Context, accountNumber string) error

	// ApplyDelta adjusts a single account's balance and returns the updated
	// account.
	ApplyDelta(ctx context.Context, accountNumber string, delta decimal.Decimal) (models.Account, error)

	// ApplyTransaction applies every delta and inserts the transaction record
	// as one atomic unit: either all of it persists or none of it does.
	// Concurrent units touching an overlapping account are serialized.
	ApplyTransaction(ctx context.Context, tx models.Transaction, deltas []models.AccountDelta) ([]models.Account, error)

	// SaveTransaction writes a standalone audit record, outside any atomic
	// unit. Used for failed attempts after the unit rolled back.
	SaveTransaction(ctx context.Context, tx models.Transaction) error

	GetTransactionByID(ctx context.Context, id string) (models.Transaction, error)
	GetTransactionsByAccount(ctx context.Context, accountNumber string) ([]models.Transaction, error)
	GetTransactionsByInitiator(ctx context.Context, userID string) ([]models.Transaction, error)
}
