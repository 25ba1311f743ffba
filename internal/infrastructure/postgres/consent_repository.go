package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"moneta/internal/domain/consent"
)

// ConsentRepository implements the consent.Repository interface for
// PostgreSQL. The bank_consents table holds at most one row per
// (user, bank) pair.
type ConsentRepository struct {
	db *DB
}

func NewConsentRepository(db *DB) *ConsentRepository {
	return &ConsentRepository{db: db}
}

const consentColumns = `id, user_id, bank_code, consent_id, status, auto_approved, permissions, expires_at, created_at, updated_at`

// GetByUserAndBank retrieves the consent for one (user, bank) pair.
// Returns nil when no consent exists.
func (r *ConsentRepository) GetByUserAndBank(ctx context.Context, userID int64, bankCode string) (*consent.Consent, error) {
	query := `SELECT ` + consentColumns + ` FROM bank_consents WHERE user_id = $1 AND bank_code = $2`

	row, err := scanConsent(r.db.QueryRowContext(ctx, query, userID, bankCode))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get consent: %w", err)
	}
	return row, nil
}

// ListByUserID retrieves all consents for a user
func (r *ConsentRepository) ListByUserID(ctx context.Context, userID int64) ([]*consent.Consent, error) {
	query := `SELECT ` + consentColumns + ` FROM bank_consents WHERE user_id = $1 ORDER BY bank_code`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list consents: %w", err)
	}
	defer rows.Close()

	return collectConsents(rows)
}

// ListPending retrieves every consent still awaiting a terminal status.
// Used by the scheduler to poll approvals in the background.
func (r *ConsentRepository) ListPending(ctx context.Context) ([]*consent.Consent, error) {
	query := `SELECT ` + consentColumns + ` FROM bank_consents WHERE status = $1 ORDER BY updated_at`

	rows, err := r.db.QueryContext(ctx, query, string(consent.StatusPending))
	if err != nil {
		return nil, fmt.Errorf("failed to list pending consents: %w", err)
	}
	defer rows.Close()

	return collectConsents(rows)
}

// Upsert stores the consent, replacing any previous row for the pair
func (r *ConsentRepository) Upsert(ctx context.Context, params consent.UpsertParams) (*consent.Consent, error) {
	query := `
		INSERT INTO bank_consents (user_id, bank_code, consent_id, status, auto_approved, permissions, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, bank_code) DO UPDATE SET
			consent_id = EXCLUDED.consent_id,
			status = EXCLUDED.status,
			auto_approved = EXCLUDED.auto_approved,
			permissions = EXCLUDED.permissions,
			expires_at = EXCLUDED.expires_at,
			updated_at = NOW()
		RETURNING ` + consentColumns

	row, err := scanConsent(r.db.QueryRowContext(
		ctx, query,
		params.UserID, params.BankCode, params.ConsentID,
		string(params.Status), params.AutoApproved,
		pq.Array(params.Permissions), params.ExpiresAt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert consent: %w", err)
	}
	return row, nil
}

// UpdateStatus moves the consent to a new status
func (r *ConsentRepository) UpdateStatus(ctx context.Context, userID int64, bankCode string, status consent.Status) error {
	query := `UPDATE bank_consents SET status = $3, updated_at = NOW() WHERE user_id = $1 AND bank_code = $2`

	result, err := r.db.ExecContext(ctx, query, userID, bankCode, string(status))
	if err != nil {
		return fmt.Errorf("failed to update consent status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check status update: %w", err)
	}
	if affected == 0 {
		return consent.ErrNoConsent
	}
	return nil
}

// ReplaceConsentID swaps an interim request id for the provider-issued
// consent id.
func (r *ConsentRepository) ReplaceConsentID(ctx context.Context, userID int64, bankCode, newConsentID string) error {
	query := `UPDATE bank_consents SET consent_id = $3, updated_at = NOW() WHERE user_id = $1 AND bank_code = $2`

	result, err := r.db.ExecContext(ctx, query, userID, bankCode, newConsentID)
	if err != nil {
		return fmt.Errorf("failed to replace consent id: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check consent id update: %w", err)
	}
	if affected == 0 {
		return consent.ErrNoConsent
	}
	return nil
}

// Retire deletes the consent row and detaches it from synced accounts,
// in one transaction. Called before re-requesting so a crash can never
// leave two consents for the pair.
func (r *ConsentRepository) Retire(ctx context.Context, userID int64, bankCode string) error {
	return r.detachAndFinish(ctx, userID, bankCode,
		`DELETE FROM bank_consents WHERE user_id = $1 AND bank_code = $2`)
}

// Revoke marks the consent revoked and detaches it from synced accounts,
// in one transaction. The row is kept for auditability.
func (r *ConsentRepository) Revoke(ctx context.Context, userID int64, bankCode string) error {
	return r.detachAndFinish(ctx, userID, bankCode,
		`UPDATE bank_consents SET status = 'revoked', updated_at = NOW() WHERE user_id = $1 AND bank_code = $2`)
}

func (r *ConsentRepository) detachAndFinish(ctx context.Context, userID int64, bankCode, finishQuery string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	detach := `UPDATE bank_accounts SET consent_id = NULL, updated_at = NOW() WHERE user_id = $1 AND bank_code = $2`
	if _, err := tx.ExecContext(ctx, detach, userID, bankCode); err != nil {
		return fmt.Errorf("failed to detach consent from accounts: %w", err)
	}

	if _, err := tx.ExecContext(ctx, finishQuery, userID, bankCode); err != nil {
		return fmt.Errorf("failed to finish consent: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit consent change: %w", err)
	}
	return nil
}

func collectConsents(rows *sql.Rows) ([]*consent.Consent, error) {
	var consents []*consent.Consent
	for rows.Next() {
		row, err := scanConsent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan consent: %w", err)
		}
		consents = append(consents, row)
	}
	return consents, rows.Err()
}

func scanConsent(row rowScanner) (*consent.Consent, error) {
	var c consent.Consent
	var status string
	var expiresAt sql.NullTime
	err := row.Scan(
		&c.ID, &c.UserID, &c.BankCode, &c.ConsentID,
		&status, &c.AutoApproved, pq.Array(&c.Permissions),
		&expiresAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Status = consent.Status(status)
	if expiresAt.Valid {
		c.ExpiresAt = &expiresAt.Time
	}
	return &c, nil
}
