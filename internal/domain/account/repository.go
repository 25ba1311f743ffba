package account

import (
	"context"
	"time"
)

// Repository defines the interface for account data access
// This interface is defined in the domain layer, but implemented in the infrastructure layer
type Repository interface {
	// GetByID retrieves an account by its local ID
	GetByID(ctx context.Context, id int64) (*Account, error)

	// GetByProviderID retrieves an account by the provider's account id
	GetByProviderID(ctx context.Context, userID int64, bankCode, accountID string) (*Account, error)

	// ListByUserID retrieves all accounts for a specific user
	ListByUserID(ctx context.Context, userID int64) ([]*Account, error)

	// ListByUserAndBank retrieves a user's accounts at one bank
	ListByUserAndBank(ctx context.Context, userID int64, bankCode string) ([]*Account, error)

	// Upsert creates or updates an account keyed on (user, bank, account id)
	Upsert(ctx context.Context, params UpsertParams) (*Account, error)

	// MarkMissingInactive deactivates accounts at a bank that the latest
	// provider listing no longer contains
	MarkMissingInactive(ctx context.Context, userID int64, bankCode string, presentIDs []string) (int64, error)

	// UpdateLastSynced records a successful transaction sync
	UpdateLastSynced(ctx context.Context, id int64, at time.Time) error
}
