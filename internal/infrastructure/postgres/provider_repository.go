package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"moneta/internal/domain/provider"
)

// ProviderRepository implements the provider.Repository interface for PostgreSQL
type ProviderRepository struct {
	db *DB
}

func NewProviderRepository(db *DB) *ProviderRepository {
	return &ProviderRepository{db: db}
}

const providerColumns = `bank_code, name, base_url, client_id, client_secret, requesting_bank, requesting_bank_name, created_at, updated_at`

// GetByCode retrieves a stored provider profile. Returns nil when the
// bank code is not stored; built-in fallbacks live in the registry.
func (r *ProviderRepository) GetByCode(ctx context.Context, bankCode string) (*provider.Profile, error) {
	query := `SELECT ` + providerColumns + ` FROM providers WHERE bank_code = $1`

	profile, err := scanProvider(r.db.QueryRowContext(ctx, query, bankCode))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get provider: %w", err)
	}
	return profile, nil
}

// List retrieves all stored provider profiles
func (r *ProviderRepository) List(ctx context.Context) ([]*provider.Profile, error) {
	query := `SELECT ` + providerColumns + ` FROM providers ORDER BY bank_code`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	defer rows.Close()

	var profiles []*provider.Profile
	for rows.Next() {
		profile, err := scanProvider(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan provider: %w", err)
		}
		profiles = append(profiles, profile)
	}
	return profiles, rows.Err()
}

// Upsert stores or updates a provider profile keyed on bank code
func (r *ProviderRepository) Upsert(ctx context.Context, profile *provider.Profile) (*provider.Profile, error) {
	query := `
		INSERT INTO providers (bank_code, name, base_url, client_id, client_secret, requesting_bank, requesting_bank_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (bank_code) DO UPDATE SET
			name = EXCLUDED.name,
			base_url = EXCLUDED.base_url,
			client_id = EXCLUDED.client_id,
			client_secret = EXCLUDED.client_secret,
			requesting_bank = EXCLUDED.requesting_bank,
			requesting_bank_name = EXCLUDED.requesting_bank_name,
			updated_at = NOW()
		RETURNING ` + providerColumns

	stored, err := scanProvider(r.db.QueryRowContext(
		ctx, query,
		profile.BankCode, profile.Name, profile.BaseURL,
		profile.ClientID, profile.ClientSecret,
		profile.RequestingBank, profile.RequestingBankName,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert provider: %w", err)
	}
	return stored, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProvider(row rowScanner) (*provider.Profile, error) {
	var p provider.Profile
	err := row.Scan(
		&p.BankCode, &p.Name, &p.BaseURL,
		&p.ClientID, &p.ClientSecret,
		&p.RequestingBank, &p.RequestingBankName,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
