package consent

import "context"

// Repository defines persistence for consent rows. One row per
// (user, bank) pair, enforced by a unique constraint.
type Repository interface {
	GetByUserAndBank(ctx context.Context, userID int64, bankCode string) (*Consent, error)
	ListByUserID(ctx context.Context, userID int64) ([]*Consent, error)
	ListPending(ctx context.Context) ([]*Consent, error)
	Upsert(ctx context.Context, params UpsertParams) (*Consent, error)
	UpdateStatus(ctx context.Context, userID int64, bankCode string, status Status) error
	ReplaceConsentID(ctx context.Context, userID int64, bankCode, newConsentID string) error
	// Retire removes the consent row and detaches it from any synced
	// accounts, in one transaction.
	Retire(ctx context.Context, userID int64, bankCode string) error
	// Revoke marks the consent revoked and detaches it from any synced
	// accounts, in one transaction.
	Revoke(ctx context.Context, userID int64, bankCode string) error
}
