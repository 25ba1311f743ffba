package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"moneta/internal/domain/transaction"
)

// TransactionRepository implements the transaction.Repository interface
// for PostgreSQL. Rows are immutable once synced; the provider's
// transaction id keyed per (user, account) makes resyncs idempotent.
type TransactionRepository struct {
	db *DB
}

func NewTransactionRepository(db *DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

const transactionColumns = `id, user_id, account_id, transaction_id, amount, currency, type, category,
	booking_date, value_date, creditor_name, creditor_account, debtor_name, debtor_account, narrative, created_at`

// Upsert inserts the transaction if it is not cached yet. Returns true
// when a new row was created.
func (r *TransactionRepository) Upsert(ctx context.Context, params transaction.UpsertParams) (bool, error) {
	query := `
		INSERT INTO bank_transactions (user_id, account_id, transaction_id, amount, currency, type, category,
			booking_date, value_date, creditor_name, creditor_account, debtor_name, debtor_account, narrative)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (user_id, account_id, transaction_id) DO NOTHING
	`

	result, err := r.db.ExecContext(
		ctx, query,
		params.UserID, params.AccountID, params.TransactionID,
		params.Amount, nullString(params.Currency),
		params.Type, params.Category,
		params.BookingDate, params.ValueDate,
		nullString(params.CreditorName), nullString(params.CreditorAccount),
		nullString(params.DebtorName), nullString(params.DebtorAccount),
		nullString(params.Narrative),
	)
	if err != nil {
		return false, fmt.Errorf("failed to upsert transaction: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check upsert result: %w", err)
	}
	return affected > 0, nil
}

// ListPage retrieves one page of an account's transactions, newest first
func (r *TransactionRepository) ListPage(ctx context.Context, userID, accountID int64, q transaction.PageQuery) ([]*transaction.Transaction, error) {
	q = q.Normalize()

	where, args := transactionFilter(userID, accountID, q)
	query := `SELECT ` + transactionColumns + ` FROM bank_transactions ` + where +
		fmt.Sprintf(` ORDER BY booking_date DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, q.Limit, q.Offset())

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*transaction.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

// CountFiltered counts the transactions matching the query's filters
func (r *TransactionRepository) CountFiltered(ctx context.Context, userID, accountID int64, q transaction.PageQuery) (int64, error) {
	where, args := transactionFilter(userID, accountID, q)
	query := `SELECT COUNT(*) FROM bank_transactions ` + where

	var count int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

func transactionFilter(userID, accountID int64, q transaction.PageQuery) (string, []any) {
	clauses := []string{"user_id = $1", "account_id = $2"}
	args := []any{userID, accountID}

	if q.From != nil {
		args = append(args, *q.From)
		clauses = append(clauses, fmt.Sprintf("booking_date >= $%d", len(args)))
	}
	if q.To != nil {
		args = append(args, *q.To)
		clauses = append(clauses, fmt.Sprintf("booking_date <= $%d", len(args)))
	}

	return "WHERE " + strings.Join(clauses, " AND "), args
}

func scanTransaction(row rowScanner) (*transaction.Transaction, error) {
	var tx transaction.Transaction
	var currency, creditorName, creditorAccount, debtorName, debtorAccount, narrative sql.NullString
	var valueDate sql.NullTime

	err := row.Scan(
		&tx.ID, &tx.UserID, &tx.AccountID, &tx.TransactionID,
		&tx.Amount, &currency, &tx.Type, &tx.Category,
		&tx.BookingDate, &valueDate,
		&creditorName, &creditorAccount, &debtorName, &debtorAccount,
		&narrative, &tx.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	tx.Currency = currency.String
	tx.CreditorName = creditorName.String
	tx.CreditorAccount = creditorAccount.String
	tx.DebtorName = debtorName.String
	tx.DebtorAccount = debtorAccount.String
	tx.Narrative = narrative.String
	if valueDate.Valid {
		tx.ValueDate = &valueDate.Time
	}

	return &tx, nil
}
