package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"moneta/internal/domain/user"
)

// LinkRepository implements the user.LinkRepository interface for PostgreSQL
type LinkRepository struct {
	db *DB
}

func NewLinkRepository(db *DB) *LinkRepository {
	return &LinkRepository{db: db}
}

const linkColumns = `id, user_id, bank_code, bank_user_id, created_at, updated_at`

// GetByUserAndBank retrieves a user's link at one bank. Returns nil when
// the user has no link there.
func (r *LinkRepository) GetByUserAndBank(ctx context.Context, userID int64, bankCode string) (*user.BankLink, error) {
	query := `SELECT ` + linkColumns + ` FROM bank_links WHERE user_id = $1 AND bank_code = $2`

	link, err := scanLink(r.db.QueryRowContext(ctx, query, userID, bankCode))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bank link: %w", err)
	}
	return link, nil
}

// ListByUserID retrieves all bank links for a user
func (r *LinkRepository) ListByUserID(ctx context.Context, userID int64) ([]*user.BankLink, error) {
	query := `SELECT ` + linkColumns + ` FROM bank_links WHERE user_id = $1 ORDER BY bank_code`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bank links: %w", err)
	}
	defer rows.Close()

	var links []*user.BankLink
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bank link: %w", err)
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

// Upsert creates or updates the link keyed on (user, bank)
func (r *LinkRepository) Upsert(ctx context.Context, userID int64, bankCode, bankUserID string) (*user.BankLink, error) {
	query := `
		INSERT INTO bank_links (user_id, bank_code, bank_user_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, bank_code) DO UPDATE SET
			bank_user_id = EXCLUDED.bank_user_id,
			updated_at = NOW()
		RETURNING ` + linkColumns

	link, err := scanLink(r.db.QueryRowContext(ctx, query, userID, bankCode, bankUserID))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert bank link: %w", err)
	}
	return link, nil
}

// Delete removes the link for one (user, bank) pair
func (r *LinkRepository) Delete(ctx context.Context, userID int64, bankCode string) error {
	query := `DELETE FROM bank_links WHERE user_id = $1 AND bank_code = $2`

	result, err := r.db.ExecContext(ctx, query, userID, bankCode)
	if err != nil {
		return fmt.Errorf("failed to delete bank link: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return user.ErrLinkMissing
	}
	return nil
}

// ListLinkedUserIDs returns every user that has at least one bank link.
// Used by the scheduler to pick sync candidates.
func (r *LinkRepository) ListLinkedUserIDs(ctx context.Context) ([]int64, error) {
	query := `SELECT DISTINCT user_id FROM bank_links ORDER BY user_id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list linked users: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanLink(row rowScanner) (*user.BankLink, error) {
	var l user.BankLink
	err := row.Scan(&l.ID, &l.UserID, &l.BankCode, &l.BankUserID, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}
