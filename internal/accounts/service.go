// Package accounts manages account records: creation with a unique generated
// account number, the status state machine, direct funding and balance
// queries. Balance mutation goes through the store's delta primitive only.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/corebank/ledger-engine/internal/interfaces"
	"github.com/corebank/ledger-engine/internal/models"
	"github.com/corebank/ledger-engine/internal/models/events"
	"github.com/corebank/ledger-engine/internal/observability"
)

const (
	accountNumberLength = 10
	// createAttempts bounds regeneration when a fresh account number collides
	// with an existing one.
	createAttempts = 5
)

type Service struct {
	store     interfaces.LedgerStore
	publisher interfaces.EventPublisher
	logger    *slog.Logger
	genNumber func() string
	now       func() time.Time
}

func NewService(store interfaces.LedgerStore, publisher interfaces.EventPublisher, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		publisher: publisher,
		logger:    logger,
		genNumber: randomAccountNumber,
		now:       time.Now,
	}
}

func randomAccountNumber() string {
	digits := make([]byte, accountNumberLength)
	for i := range digits {
		digits[i] = byte('0' + rand.Intn(10))
	}
	return string(digits)
}

// Create opens a new account for ownerID: balance zero, status active, a
// freshly generated account number. On a number collision it regenerates, up
// to createAttempts times.
func (s *Service) Create(ctx context.Context, ownerID string, accType models.AccountType) (models.Account, error) {
	if !accType.Valid() {
		return models.Account{}, models.ErrInvalidAccountType
	}

	for attempt := 0; attempt < createAttempts; attempt++ {
		now := s.now().UTC()
		account := models.Account{
			ID:            uuid.NewString(),
			OwnerID:       ownerID,
			AccountNumber: s.genNumber(),
			Type:          accType,
			Balance:       decimal.Zero,
			Status:        models.AccountStatusActive,
			CreatedAt:     now,
			UpdatedAt:     now,
		}

		err := s.store.CreateAccount(ctx, account)
		if errors.Is(err, models.ErrAccountNumberTaken) {
			continue
		}
		if err != nil {
			return models.Account{}, err
		}
		return account, nil
	}
	return models.Account{}, fmt.Errorf("%w: could not generate a unique account number", models.ErrInternal)
}

// GetByNumber returns the account with the given number.
func (s *Service) GetByNumber(ctx context.Context, accountNumber string) (models.Account, error) {
	return s.store.GetAccountByNumber(ctx, accountNumber)
}

// ListByOwner returns every account owned by ownerID.
func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]models.Account, error) {
	return s.store.GetAccountsByOwner(ctx, ownerID)
}

// Balance returns the balance of an active account owned by userID.
func (s *Service) Balance(ctx context.Context, accountNumber, userID string) (decimal.Decimal, error) {
	account, err := s.ownedAccount(ctx, accountNumber, userID)
	if err != nil {
		return decimal.Zero, err
	}
	if account.Status != models.AccountStatusActive {
		return decimal.Zero, fmt.Errorf("cannot retrieve balance for a non-active account: %w", models.ErrAccountNotActive)
	}
	return account.Balance, nil
}

// Freeze moves an active account to frozen.
func (s *Service) Freeze(ctx context.Context, accountNumber string) (models.Account, error) {
	account, err := s.store.GetAccountByNumber(ctx, accountNumber)
	if err != nil {
		return models.Account{}, err
	}
	if account.Status == models.AccountStatusFrozen || account.Status == models.AccountStatusClosed {
		return models.Account{}, models.ErrAlreadyFrozenOrClosed
	}
	return s.store.UpdateAccountStatus(ctx, accountNumber, models.AccountStatusActive, models.AccountStatusFrozen)
}

// Unfreeze moves a frozen account back to active. frozen -> active is the
// only reverse edge in the state machine.
func (s *Service) Unfreeze(ctx context.Context, accountNumber string) (models.Account, error) {
	account, err := s.store.GetAccountByNumber(ctx, accountNumber)
	if err != nil {
		return models.Account{}, err
	}
	if account.Status != models.AccountStatusFrozen {
		return models.Account{}, models.ErrNotFrozen
	}
	return s.store.UpdateAccountStatus(ctx, accountNumber, models.AccountStatusFrozen, models.AccountStatusActive)
}

// Close moves a frozen account to closed, a terminal state. Closing requires
// an explicit freeze first so no in-flight activity can race the closure.
func (s *Service) Close(ctx context.Context, accountNumber string) (models.Account, error) {
	account, err := s.store.GetAccountByNumber(ctx, accountNumber)
	if err != nil {
		return models.Account{}, err
	}
	if account.Status != models.AccountStatusFrozen {
		return models.Account{}, models.ErrMustBeFrozenFirst
	}
	return s.store.UpdateAccountStatus(ctx, accountNumber, models.AccountStatusFrozen, models.AccountStatusClosed)
}

// Delete removes the record regardless of status. Administrative; the
// gateway restricts it to elevated roles.
func (s *Service) Delete(ctx context.Context, accountNumber string) error {
	return s.store.DeleteAccount(ctx, accountNumber)
}

// Fund credits amount to an active account owned by userID and publishes an
// AccountFunded event carrying the post-commit balance.
func (s *Service) Fund(ctx context.Context, accountNumber, userID string, amount decimal.Decimal) (models.Account, error) {
	if !amount.IsPositive() {
		return models.Account{}, models.ErrInvalidAmount
	}

	account, err := s.ownedAccount(ctx, accountNumber, userID)
	if err != nil {
		return models.Account{}, err
	}
	if account.Status != models.AccountStatusActive {
		return models.Account{}, fmt.Errorf("cannot fund a non-active account: %w", models.ErrAccountNotActive)
	}

	updated, err := s.store.ApplyDelta(ctx, accountNumber, amount)
	if err != nil {
		return models.Account{}, err
	}

	event := events.AccountFunded{
		AccountNumber: accountNumber,
		UserID:        userID,
		Amount:        amount,
		Balance:       updated.Balance,
		Timestamp:     s.now().UTC().Format(time.RFC3339),
	}
	if err := s.publisher.Publish(ctx, events.TopicAccountFunded, event); err != nil {
		observability.EventPublishFailuresTotal.WithLabelValues(events.TopicAccountFunded).Inc()
		s.logger.Error("event publish failed", "topic", events.TopicAccountFunded, "error", err)
	} else {
		observability.EventsPublishedTotal.WithLabelValues(events.TopicAccountFunded).Inc()
	}

	return updated, nil
}

// ownedAccount fetches an account and hides its existence from non-owners.
func (s *Service) ownedAccount(ctx context.Context, accountNumber, userID string) (models.Account, error) {
	account, err := s.store.GetAccountByNumber(ctx, accountNumber)
	if errors.Is(err, models.ErrAccountNotFound) {
		return models.Account{}, models.ErrAccessDenied
	}
	if err != nil {
		return models.Account{}, err
	}
	if account.OwnerID != userID {
		return models.Account{}, models.ErrAccessDenied
	}
	return account, nil
}
