// Package memory is an in-memory LedgerStore used by tests and by local runs
// without a database. It is safe for concurrent use: atomic units take
// per-account locks in a deterministic order, so units touching disjoint
// accounts proceed independently.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/corebank/ledger-engine/internal/interfaces"
	"github.com/corebank/ledger-engine/internal/models"
)

type MemoryLedgerStore struct {
	mu           sync.Mutex // guards accounts, transactions, txOrder
	accounts     map[string]models.Account
	transactions map[string]models.Transaction
	txOrder      []string

	lockMu       sync.Mutex // protects accountLocks itself
	accountLocks map[string]*sync.Mutex
}

func NewMemoryLedgerStore() *MemoryLedgerStore {
	return &MemoryLedgerStore{
		accounts:     make(map[string]models.Account),
		transactions: make(map[string]models.Transaction),
		accountLocks: make(map[string]*sync.Mutex),
	}
}

func (m *MemoryLedgerStore) accountLock(accountNumber string) *sync.Mutex {
	m.lockMu.Lock()
	defer m.lockMu.Unlock()

	if _, exists := m.accountLocks[accountNumber]; !exists {
		m.accountLocks[accountNumber] = &sync.Mutex{}
	}
	return m.accountLocks[accountNumber]
}

// lockAccounts acquires the per-account locks in ascending account-number
// order to avoid deadlocks between overlapping units.
func (m *MemoryLedgerStore) lockAccounts(accountNumbers []string) func() {
	unique := make(map[string]struct{}, len(accountNumbers))
	for _, n := range accountNumbers {
		unique[n] = struct{}{}
	}
	ordered := make([]string, 0, len(unique))
	for n := range unique {
		ordered = append(ordered, n)
	}
	sort.Strings(ordered)

	locks := make([]*sync.Mutex, 0, len(ordered))
	for _, n := range ordered {
		l := m.accountLock(n)
		l.Lock()
		locks = append(locks, l)
	}
	return func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].Unlock()
		}
	}
}

func (m *MemoryLedgerStore) CreateAccount(ctx context.Context, account models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.accounts[account.AccountNumber]; exists {
		return models.ErrAccountNumberTaken
	}
	m.accounts[account.AccountNumber] = account
	return nil
}

func (m *MemoryLedgerStore) GetAccountByNumber(ctx context.Context, accountNumber string) (models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, exists := m.accounts[accountNumber]
	if !exists {
		return models.Account{}, models.ErrAccountNotFound
	}
	return account, nil
}

func (m *MemoryLedgerStore) GetAccountsByOwner(ctx context.Context, ownerID string) ([]models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []models.Account
	for _, account := range m.accounts {
		if account.OwnerID == ownerID {
			result = append(result, account)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].AccountNumber < result[j].AccountNumber
	})
	return result, nil
}

func (m *MemoryLedgerStore) UpdateAccountStatus(ctx context.Context, accountNumber string, from, to models.AccountStatus) (models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, exists := m.accounts[accountNumber]
	if !exists {
		return models.Account{}, models.ErrAccountNotFound
	}
	if account.Status != from {
		return models.Account{}, models.ErrStatusConflict
	}
	account.Status = to
	account.UpdatedAt = time.Now().UTC()
	m.accounts[accountNumber] = account
	return account, nil
}

func (m *MemoryLedgerStore) DeleteAccount(ctx context.Context, accountNumber string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.accounts[accountNumber]; !exists {
		return models.ErrAccountNotFound
	}
	delete(m.accounts, accountNumber)
	return nil
}

func (m *MemoryLedgerStore) ApplyDelta(ctx context.Context, accountNumber string, delta decimal.Decimal) (models.Account, error) {
	lock := m.accountLock(accountNumber)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applyDeltaLocked(accountNumber, delta)
}

// applyDeltaLocked enforces the account invariants: the account must exist,
// be active, and the resulting balance must not be negative. Callers hold
// both the account lock and m.mu.
func (m *MemoryLedgerStore) applyDeltaLocked(accountNumber string, delta decimal.Decimal) (models.Account, error) {
	account, exists := m.accounts[accountNumber]
	if !exists {
		return models.Account{}, models.ErrAccountNotFound
	}
	if account.Status != models.AccountStatusActive {
		return models.Account{}, models.ErrAccountNotActive
	}
	updated := account.Balance.Add(delta)
	if updated.IsNegative() {
		return models.Account{}, models.ErrInsufficientBalance
	}
	account.Balance = updated
	account.UpdatedAt = time.Now().UTC()
	m.accounts[accountNumber] = account
	return account, nil
}

func (m *MemoryLedgerStore) ApplyTransaction(ctx context.Context, tx models.Transaction, deltas []models.AccountDelta) ([]models.Account, error) {
	numbers := make([]string, 0, len(deltas))
	for _, d := range deltas {
		numbers = append(numbers, d.AccountNumber)
	}
	unlock := m.lockAccounts(numbers)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Validate everything before mutating anything, so a rejection on one
	// account is never paired with a completed mutation on another.
	for _, d := range deltas {
		account, exists := m.accounts[d.AccountNumber]
		if !exists {
			return nil, models.ErrAccountNotFound
		}
		if account.Status != models.AccountStatusActive {
			return nil, models.ErrAccountNotActive
		}
		if account.Balance.Add(d.Delta).IsNegative() {
			return nil, models.ErrInsufficientBalance
		}
	}

	updated := make([]models.Account, 0, len(deltas))
	for _, d := range deltas {
		account, err := m.applyDeltaLocked(d.AccountNumber, d.Delta)
		if err != nil {
			// Unreachable after validation above; surface it regardless.
			return nil, err
		}
		updated = append(updated, account)
	}

	m.transactions[tx.ID] = tx
	m.txOrder = append(m.txOrder, tx.ID)
	return updated, nil
}

func (m *MemoryLedgerStore) SaveTransaction(ctx context.Context, tx models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.transactions[tx.ID] = tx
	m.txOrder = append(m.txOrder, tx.ID)
	return nil
}

func (m *MemoryLedgerStore) GetTransactionByID(ctx context.Context, id string) (models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, exists := m.transactions[id]
	if !exists {
		return models.Transaction{}, models.ErrTransactionNotFound
	}
	return tx, nil
}

func (m *MemoryLedgerStore) GetTransactionsByAccount(ctx context.Context, accountNumber string) ([]models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []models.Transaction
	for _, id := range m.txOrder {
		tx := m.transactions[id]
		if tx.SenderAccountNumber == accountNumber || tx.ReceiverAccountNumber == accountNumber {
			result = append(result, tx)
		}
	}
	return result, nil
}

func (m *MemoryLedgerStore) GetTransactionsByInitiator(ctx context.Context, userID string) ([]models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []models.Transaction
	for _, id := range m.txOrder {
		tx := m.transactions[id]
		if tx.InitiatorUserID == userID {
			result = append(result, tx)
		}
	}
	return result, nil
}

// Compile-time check: MemoryLedgerStore implements LedgerStore.
var _ interfaces.LedgerStore = (*MemoryLedgerStore)(nil)
