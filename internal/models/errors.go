package models

import "errors"

// Domain errors are pure sentinels; infrastructure wraps them and callers
// classify with errors.Is.
var (
	// Validation, rejected before any persistence.
	ErrInvalidAmount          = errors.New("amount must be positive")
	ErrInvalidAccountType     = errors.New("invalid account type")
	ErrInvalidTransactionType = errors.New("invalid transaction type")
	ErrMissingAccountRef      = errors.New("missing required account reference")
	ErrUnexpectedAccountRef   = errors.New("account reference not allowed for this transaction type")

	// Lookup
	ErrAccountNotFound     = errors.New("account not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrAccessDenied        = errors.New("account not found or access denied")

	// Business rules inside the atomic unit
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrAccountNotActive    = errors.New("account is not active")

	// Status state machine conflicts
	ErrAlreadyFrozenOrClosed = errors.New("account is already frozen or closed")
	ErrNotFrozen             = errors.New("only frozen accounts can be unfrozen")
	ErrMustBeFrozenFirst     = errors.New("account must be frozen before it can be closed")
	ErrStatusConflict        = errors.New("account status changed concurrently")

	// Storage
	ErrAccountNumberTaken = errors.New("account number already in use")

	// ErrInternal is what callers see for unexpected faults. Detail stays in
	// the logs, never in the response.
	ErrInternal = errors.New("transaction failed")
)
