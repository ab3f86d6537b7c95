// Package ledger implements the transaction coordinator: it turns a
// deposit, withdrawal or transfer request into exactly one terminal
// transaction record and, on success, an atomic balance change across the
// accounts involved.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/corebank/ledger-engine/internal/interfaces"
	"github.com/corebank/ledger-engine/internal/models"
	"github.com/corebank/ledger-engine/internal/models/events"
	"github.com/corebank/ledger-engine/internal/observability"
)

const defaultCommitTimeout = 5 * time.Second

// failedDescription is the audit-record description when the request
// supplied none.
const failedDescription = "Transaction failed"

// Request is a settlement request. The account references it must carry
// depend on Type: transfers need both, withdrawals only the sender,
// deposits only the receiver. References the type does not use must be
// empty.
type Request struct {
	Type                  models.TransactionType `json:"type"`
	Amount                decimal.Decimal        `json:"amount"`
	SenderAccountNumber   string                 `json:"senderAccountNumber,omitempty"`
	ReceiverAccountNumber string                 `json:"receiverAccountNumber,omitempty"`
	Description           string                 `json:"description,omitempty"`
	InitiatorUserID       string                 `json:"-"`
}

// Validate rejects malformed requests before any lookup or persistence.
func (r Request) Validate() error {
	if !r.Type.Valid() {
		return models.ErrInvalidTransactionType
	}
	if !r.Amount.IsPositive() {
		return models.ErrInvalidAmount
	}

	needSender := r.Type == models.TransactionTypeTransfer || r.Type == models.TransactionTypeWithdrawal
	needReceiver := r.Type == models.TransactionTypeTransfer || r.Type == models.TransactionTypeDeposit

	if needSender && r.SenderAccountNumber == "" {
		return models.ErrMissingAccountRef
	}
	if needReceiver && r.ReceiverAccountNumber == "" {
		return models.ErrMissingAccountRef
	}
	if !needSender && r.SenderAccountNumber != "" {
		return models.ErrUnexpectedAccountRef
	}
	if !needReceiver && r.ReceiverAccountNumber != "" {
		return models.ErrUnexpectedAccountRef
	}
	return nil
}

// deltas is the balance-change plan for the request: sender debit first,
// receiver credit second.
func (r Request) deltas() []models.AccountDelta {
	var d []models.AccountDelta
	if r.SenderAccountNumber != "" {
		d = append(d, models.AccountDelta{AccountNumber: r.SenderAccountNumber, Delta: r.Amount.Neg()})
	}
	if r.ReceiverAccountNumber != "" {
		d = append(d, models.AccountDelta{AccountNumber: r.ReceiverAccountNumber, Delta: r.Amount})
	}
	return d
}

// Ledger coordinates settlement. Serialization of concurrent requests over
// overlapping accounts is delegated to the store's atomic unit.
type Ledger struct {
	store         interfaces.LedgerStore
	publisher     interfaces.EventPublisher
	logger        *slog.Logger
	commitTimeout time.Duration
	now           func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithCommitTimeout bounds how long one atomic unit may take to acquire and
// commit. A unit that exceeds it is aborted like a business-rule failure.
func WithCommitTimeout(d time.Duration) Option {
	return func(l *Ledger) { l.commitTimeout = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func NewLedger(store interfaces.LedgerStore, publisher interfaces.EventPublisher, logger *slog.Logger, opts ...Option) *Ledger {
	l := &Ledger{
		store:         store,
		publisher:     publisher,
		logger:        logger,
		commitTimeout: defaultCommitTimeout,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// PostTransaction settles one request. Every request that passes validation
// leaves behind exactly one transaction record: status successful with the
// balance changes committed, or status failed with no balance change at all.
// The returned error is nil on success, a business sentinel on rejection,
// and models.ErrInternal for unexpected faults.
func (l *Ledger) PostTransaction(ctx context.Context, req Request) (models.Transaction, error) {
	if err := req.Validate(); err != nil {
		return models.Transaction{}, err
	}

	tx := models.Transaction{
		ID:                    uuid.NewString(),
		InitiatorUserID:       req.InitiatorUserID,
		Type:                  req.Type,
		Amount:                req.Amount,
		Status:                models.TransactionStatusSuccessful,
		SenderAccountNumber:   req.SenderAccountNumber,
		ReceiverAccountNumber: req.ReceiverAccountNumber,
		Description:           req.Description,
		CreatedAt:             l.now().UTC(),
	}

	unitCtx, cancel := context.WithTimeout(ctx, l.commitTimeout)
	defer cancel()

	if _, err := l.store.ApplyTransaction(unitCtx, tx, req.deltas()); err != nil {
		return l.recordFailure(ctx, req, err)
	}

	observability.TransactionsTotal.WithLabelValues(string(req.Type), string(models.TransactionStatusSuccessful)).Inc()

	l.emit(ctx, events.TopicTransactionCompleted, events.TransactionCompleted{
		UserID:      req.InitiatorUserID,
		Amount:      req.Amount,
		Type:        string(req.Type),
		Description: req.Description,
		Status:      "success",
		Timestamp:   l.now().UTC().Format(time.RFC3339),
	})

	return tx, nil
}

// recordFailure is the compensating action after the atomic unit rolled
// back: an unconditional standalone audit write, then a TransactionFailed
// event for known business-rule rejections only.
func (l *Ledger) recordFailure(ctx context.Context, req Request, cause error) (models.Transaction, error) {
	description := req.Description
	if description == "" {
		description = failedDescription
	}

	failed := models.Transaction{
		ID:                    uuid.NewString(),
		InitiatorUserID:       req.InitiatorUserID,
		Type:                  req.Type,
		Amount:                req.Amount,
		Status:                models.TransactionStatusFailed,
		SenderAccountNumber:   req.SenderAccountNumber,
		ReceiverAccountNumber: req.ReceiverAccountNumber,
		Description:           description,
		CreatedAt:             l.now().UTC(),
	}

	// The unit's context may already be cancelled or past its deadline; the
	// audit record is written regardless.
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.commitTimeout)
	defer cancel()

	if err := l.store.SaveTransaction(auditCtx, failed); err != nil {
		l.logger.Error("failed to write audit record for aborted transaction",
			"type", req.Type, "sender", req.SenderAccountNumber,
			"receiver", req.ReceiverAccountNumber, "error", err)
	}

	observability.TransactionsTotal.WithLabelValues(string(req.Type), string(models.TransactionStatusFailed)).Inc()

	reason, business := failureReason(req.Type, cause)
	if business {
		l.emit(auditCtx, events.TopicTransactionFailed, events.TransactionFailed{
			UserID:      req.InitiatorUserID,
			Amount:      req.Amount,
			Type:        string(req.Type),
			Reason:      reason,
			Description: description,
			Status:      "failed",
			Timestamp:   l.now().UTC().Format(time.RFC3339),
		})
	}

	switch {
	case errors.Is(cause, models.ErrInsufficientBalance),
		errors.Is(cause, models.ErrAccountNotFound),
		errors.Is(cause, models.ErrAccountNotActive):
		return failed, cause
	default:
		l.logger.Error("atomic unit aborted unexpectedly",
			"type", req.Type, "sender", req.SenderAccountNumber,
			"receiver", req.ReceiverAccountNumber, "error", cause)
		return failed, models.ErrInternal
	}
}

// failureReason maps a business-rule rejection to the reason published
// downstream. Internal faults report no reason and emit no event.
func failureReason(txType models.TransactionType, cause error) (string, bool) {
	switch {
	case errors.Is(cause, models.ErrInsufficientBalance):
		return "Insufficient balance", true
	case errors.Is(cause, models.ErrAccountNotFound):
		if txType == models.TransactionTypeTransfer {
			return "Sender or receiver not found", true
		}
		return "Account not found", true
	}
	return "", false
}

// emit publishes an event after commit. A publish failure never reverses the
// committed transaction; it is logged and counted.
func (l *Ledger) emit(ctx context.Context, topic string, event any) {
	if err := l.publisher.Publish(ctx, topic, event); err != nil {
		observability.EventPublishFailuresTotal.WithLabelValues(topic).Inc()
		l.logger.Error("event publish failed", "topic", topic, "error", err)
		return
	}
	observability.EventsPublishedTotal.WithLabelValues(topic).Inc()
}

// GetTransaction looks up one audit record by id.
func (l *Ledger) GetTransaction(ctx context.Context, id string) (models.Transaction, error) {
	return l.store.GetTransactionByID(ctx, id)
}

// UserTransactions returns every audit record initiated by userID.
func (l *Ledger) UserTransactions(ctx context.Context, userID string) ([]models.Transaction, error) {
	return l.store.GetTransactionsByInitiator(ctx, userID)
}

// AccountTransactions returns the audit trail touching an account,
// restricted to the account's owner.
func (l *Ledger) AccountTransactions(ctx context.Context, accountNumber, userID string) ([]models.Transaction, error) {
	account, err := l.store.GetAccountByNumber(ctx, accountNumber)
	if err != nil {
		return nil, err
	}
	if account.OwnerID != userID {
		return nil, models.ErrAccessDenied
	}
	return l.store.GetTransactionsByAccount(ctx, accountNumber)
}
