package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"moneta/internal/domain/account"
)

// AccountRepository implements the account.Repository interface for PostgreSQL
type AccountRepository struct {
	db *DB
}

func NewAccountRepository(db *DB) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `id, user_id, bank_code, account_id, consent_id, account_type, currency, name, iban, bic,
	current_balance, available_balance, balance_updated_at, last_synced_at, is_active, created_at, updated_at`

// GetByID retrieves an account by its local ID. Returns nil when not found.
func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*account.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM bank_accounts WHERE id = $1`

	acc, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return acc, nil
}

// GetByProviderID retrieves an account by the provider's account id.
// Returns nil when the account has never been synced.
func (r *AccountRepository) GetByProviderID(ctx context.Context, userID int64, bankCode, accountID string) (*account.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM bank_accounts WHERE user_id = $1 AND bank_code = $2 AND account_id = $3`

	acc, err := scanAccount(r.db.QueryRowContext(ctx, query, userID, bankCode, accountID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account by provider id: %w", err)
	}
	return acc, nil
}

// ListByUserID retrieves all accounts for a user
func (r *AccountRepository) ListByUserID(ctx context.Context, userID int64) ([]*account.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM bank_accounts WHERE user_id = $1 ORDER BY bank_code, account_id`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	return collectAccounts(rows)
}

// ListByUserAndBank retrieves a user's accounts at one bank
func (r *AccountRepository) ListByUserAndBank(ctx context.Context, userID int64, bankCode string) ([]*account.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM bank_accounts WHERE user_id = $1 AND bank_code = $2 ORDER BY account_id`

	rows, err := r.db.QueryContext(ctx, query, userID, bankCode)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts for bank: %w", err)
	}
	defer rows.Close()

	return collectAccounts(rows)
}

// Upsert creates or updates an account keyed on (user, bank, account id).
// A resynced account is always reactivated. Balances are kept when the
// new sync carries none.
func (r *AccountRepository) Upsert(ctx context.Context, params account.UpsertParams) (*account.Account, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO bank_accounts (user_id, bank_code, account_id, consent_id, account_type, currency, name, iban, bic,
			current_balance, available_balance, balance_updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (user_id, bank_code, account_id) DO UPDATE SET
			consent_id = EXCLUDED.consent_id,
			account_type = EXCLUDED.account_type,
			currency = EXCLUDED.currency,
			name = EXCLUDED.name,
			iban = EXCLUDED.iban,
			bic = EXCLUDED.bic,
			current_balance = COALESCE(EXCLUDED.current_balance, bank_accounts.current_balance),
			available_balance = COALESCE(EXCLUDED.available_balance, bank_accounts.available_balance),
			balance_updated_at = COALESCE(EXCLUDED.balance_updated_at, bank_accounts.balance_updated_at),
			is_active = TRUE,
			updated_at = NOW()
		RETURNING ` + accountColumns

	acc, err := scanAccount(r.db.QueryRowContext(
		ctx, query,
		params.UserID, params.BankCode, params.AccountID,
		nullString(params.ConsentID), nullString(params.AccountType),
		nullString(params.Currency), nullString(params.Name),
		nullString(params.IBAN), nullString(params.BIC),
		nullDecimal(params.CurrentBalance), nullDecimal(params.AvailableBalance),
		params.BalanceUpdatedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert account: %w", err)
	}
	return acc, nil
}

// MarkMissingInactive deactivates accounts at a bank that the latest
// provider listing no longer contains. Returns how many were deactivated.
func (r *AccountRepository) MarkMissingInactive(ctx context.Context, userID int64, bankCode string, presentIDs []string) (int64, error) {
	query := `
		UPDATE bank_accounts
		SET is_active = FALSE, updated_at = NOW()
		WHERE user_id = $1 AND bank_code = $2 AND is_active AND account_id <> ALL($3)
	`

	result, err := r.db.ExecContext(ctx, query, userID, bankCode, pq.Array(presentIDs))
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate missing accounts: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check deactivation result: %w", err)
	}
	return affected, nil
}

// UpdateLastSynced records a successful transaction sync
func (r *AccountRepository) UpdateLastSynced(ctx context.Context, id int64, at time.Time) error {
	query := `UPDATE bank_accounts SET last_synced_at = $2, updated_at = NOW() WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to update sync time: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check sync time update: %w", err)
	}
	if affected == 0 {
		return account.ErrAccountNotFound
	}
	return nil
}

func collectAccounts(rows *sql.Rows) ([]*account.Account, error) {
	var accounts []*account.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, acc)
	}
	return accounts, rows.Err()
}

func scanAccount(row rowScanner) (*account.Account, error) {
	var acc account.Account
	var consentID, accountType, currency, name, iban, bic sql.NullString
	var currentBalance, availableBalance decimal.NullDecimal
	var balanceUpdatedAt, lastSyncedAt sql.NullTime

	err := row.Scan(
		&acc.ID, &acc.UserID, &acc.BankCode, &acc.AccountID,
		&consentID, &accountType, &currency, &name, &iban, &bic,
		&currentBalance, &availableBalance, &balanceUpdatedAt, &lastSyncedAt,
		&acc.IsActive, &acc.CreatedAt, &acc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	acc.ConsentID = consentID.String
	acc.AccountType = accountType.String
	acc.Currency = currency.String
	acc.Name = name.String
	acc.IBAN = iban.String
	acc.BIC = bic.String
	if currentBalance.Valid {
		acc.CurrentBalance = &currentBalance.Decimal
	}
	if availableBalance.Valid {
		acc.AvailableBalance = &availableBalance.Decimal
	}
	if balanceUpdatedAt.Valid {
		acc.BalanceUpdatedAt = &balanceUpdatedAt.Time
	}
	if lastSyncedAt.Valid {
		acc.LastSyncedAt = &lastSyncedAt.Time
	}

	return &acc, nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}
