// Package postgres implements LedgerStore on PostgreSQL. Atomic units are
// database transactions; the touched account rows are locked with
// SELECT ... FOR UPDATE in ascending account-number order so overlapping
// units serialize without deadlocking.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sort"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/corebank/ledger-engine/internal/interfaces"
	"github.com/corebank/ledger-engine/internal/models"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

type PostgresLedgerStore struct {
	db *sql.DB
}

func NewPostgresLedgerStore(db *sql.DB) *PostgresLedgerStore {
	return &PostgresLedgerStore{db: db}
}

// EnsureSchema creates the accounts and transactions tables and their
// indexes if they do not exist yet.
func (p *PostgresLedgerStore) EnsureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, schema)
	return err
}

func (p *PostgresLedgerStore) CreateAccount(ctx context.Context, account models.Account) error {
	const query = `INSERT INTO accounts (id, owner_id, account_number, account_type, balance, status, created_at, updated_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err := p.db.ExecContext(ctx, query,
		account.ID, account.OwnerID, account.AccountNumber, string(account.Type),
		account.Balance, string(account.Status), account.CreatedAt, account.UpdatedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return models.ErrAccountNumberTaken
	}
	return err
}

const accountColumns = `id, owner_id, account_number, account_type, balance, status, created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (models.Account, error) {
	var account models.Account
	var accType, status string
	err := row.Scan(&account.ID, &account.OwnerID, &account.AccountNumber,
		&accType, &account.Balance, &status, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return models.Account{}, err
	}
	account.Type = models.AccountType(accType)
	account.Status = models.AccountStatus(status)
	return account, nil
}

func (p *PostgresLedgerStore) GetAccountByNumber(ctx context.Context, accountNumber string) (models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE account_number = $1`

	account, err := scanAccount(p.db.QueryRowContext(ctx, query, accountNumber))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Account{}, models.ErrAccountNotFound
	}
	return account, err
}

func (p *PostgresLedgerStore) GetAccountsByOwner(ctx context.Context, ownerID string) ([]models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE owner_id = $1 ORDER BY account_number`

	rows, err := p.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

func (p *PostgresLedgerStore) UpdateAccountStatus(ctx context.Context, accountNumber string, from, to models.AccountStatus) (models.Account, error) {
	query := `UPDATE accounts SET status = $3, updated_at = now()
	WHERE account_number = $1 AND status = $2
	RETURNING ` + accountColumns

	account, err := scanAccount(p.db.QueryRowContext(ctx, query, accountNumber, string(from), string(to)))
	if errors.Is(err, sql.ErrNoRows) {
		// Either the account is gone or its status moved under us.
		if _, lookupErr := p.GetAccountByNumber(ctx, accountNumber); lookupErr != nil {
			return models.Account{}, lookupErr
		}
		return models.Account{}, models.ErrStatusConflict
	}
	return account, err
}

func (p *PostgresLedgerStore) DeleteAccount(ctx context.Context, accountNumber string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM accounts WHERE account_number = $1`, accountNumber)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return models.ErrAccountNotFound
	}
	return nil
}

func (p *PostgresLedgerStore) ApplyDelta(ctx context.Context, accountNumber string, delta decimal.Decimal) (models.Account, error) {
	var updated models.Account
	err := p.withTx(ctx, func(dbTx *sql.Tx) error {
		accounts, err := applyDeltas(ctx, dbTx, []models.AccountDelta{{AccountNumber: accountNumber, Delta: delta}})
		if err != nil {
			return err
		}
		updated = accounts[0]
		return nil
	})
	if err != nil {
		return models.Account{}, err
	}
	return updated, nil
}

func (p *PostgresLedgerStore) ApplyTransaction(ctx context.Context, tx models.Transaction, deltas []models.AccountDelta) ([]models.Account, error) {
	var updated []models.Account
	err := p.withTx(ctx, func(dbTx *sql.Tx) error {
		accounts, err := applyDeltas(ctx, dbTx, deltas)
		if err != nil {
			return err
		}
		if err := insertTransaction(ctx, dbTx, tx); err != nil {
			return err
		}
		updated = accounts
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (p *PostgresLedgerStore) withTx(ctx context.Context, fn func(dbTx *sql.Tx) error) error {
	dbTx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin atomic unit: %w", err)
	}

	if err := fn(dbTx); err != nil {
		dbTx.Rollback()
		return err
	}
	return dbTx.Commit()
}

// applyDeltas locks every touched row, validates the account invariants and
// applies the balance changes. Any rejection leaves the unit untouched; the
// caller rolls back.
func applyDeltas(ctx context.Context, dbTx *sql.Tx, deltas []models.AccountDelta) ([]models.Account, error) {
	ordered := make([]models.AccountDelta, len(deltas))
	copy(ordered, deltas)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].AccountNumber < ordered[j].AccountNumber
	})

	type locked struct {
		status  models.AccountStatus
		balance decimal.Decimal
	}
	held := make(map[string]locked, len(ordered))
	for _, d := range ordered {
		var l locked
		var status string
		err := dbTx.QueryRowContext(ctx,
			`SELECT status, balance FROM accounts WHERE account_number = $1 FOR UPDATE`,
			d.AccountNumber).Scan(&status, &l.balance)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrAccountNotFound
		}
		if err != nil {
			return nil, err
		}
		l.status = models.AccountStatus(status)
		held[d.AccountNumber] = l
	}

	for _, d := range deltas {
		l := held[d.AccountNumber]
		if l.status != models.AccountStatusActive {
			return nil, models.ErrAccountNotActive
		}
		if l.balance.Add(d.Delta).IsNegative() {
			return nil, models.ErrInsufficientBalance
		}
	}

	updated := make([]models.Account, 0, len(deltas))
	for _, d := range deltas {
		query := `UPDATE accounts SET balance = balance + $2, updated_at = now()
		WHERE account_number = $1
		RETURNING ` + accountColumns

		account, err := scanAccount(dbTx.QueryRowContext(ctx, query, d.AccountNumber, d.Delta))
		if err != nil {
			return nil, err
		}
		updated = append(updated, account)
	}
	return updated, nil
}

func insertTransaction(ctx context.Context, execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}, tx models.Transaction) error {
	const query = `INSERT INTO transactions (id, user_id, type, amount, status, sender_account_number, receiver_account_number, description, created_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err := execer.ExecContext(ctx, query,
		tx.ID, tx.InitiatorUserID, string(tx.Type), tx.Amount, string(tx.Status),
		tx.SenderAccountNumber, tx.ReceiverAccountNumber, tx.Description, tx.CreatedAt)
	return err
}

func (p *PostgresLedgerStore) SaveTransaction(ctx context.Context, tx models.Transaction) error {
	return insertTransaction(ctx, p.db, tx)
}

const transactionColumns = `id, user_id, type, amount, status, sender_account_number, receiver_account_number, description, created_at`

func scanTransaction(row interface{ Scan(...any) error }) (models.Transaction, error) {
	var tx models.Transaction
	var txType, status string
	err := row.Scan(&tx.ID, &tx.InitiatorUserID, &txType, &tx.Amount, &status,
		&tx.SenderAccountNumber, &tx.ReceiverAccountNumber, &tx.Description, &tx.CreatedAt)
	if err != nil {
		return models.Transaction{}, err
	}
	tx.Type = models.TransactionType(txType)
	tx.Status = models.TransactionStatus(status)
	return tx, nil
}

func (p *PostgresLedgerStore) GetTransactionByID(ctx context.Context, id string) (models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	tx, err := scanTransaction(p.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Transaction{}, models.ErrTransactionNotFound
	}
	return tx, err
}

func (p *PostgresLedgerStore) GetTransactionsByAccount(ctx context.Context, accountNumber string) ([]models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
	WHERE sender_account_number = $1 OR receiver_account_number = $1
	ORDER BY created_at`

	return p.queryTransactions(ctx, query, accountNumber)
}

func (p *PostgresLedgerStore) GetTransactionsByInitiator(ctx context.Context, userID string) ([]models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE user_id = $1 ORDER BY created_at`

	return p.queryTransactions(ctx, query, userID)
}

func (p *PostgresLedgerStore) queryTransactions(ctx context.Context, query string, args ...any) ([]models.Transaction, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, tx)
	}
	return result, rows.Err()
}

var _ interfaces.LedgerStore = (*PostgresLedgerStore)(nil)
