package account

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Domain errors
var (
	ErrAccountNotFound = errors.New("account not found")
	ErrForbidden       = errors.New("access forbidden")
	ErrInvalidInput    = errors.New("invalid input")
)

// Account is a synced bank account. AccountID is the provider's
// identifier; ID is the local surrogate key. ConsentID records which
// consent authorized the last sync and empties when that consent ends.
type Account struct {
	ID               int64            `json:"id"`
	UserID           int64            `json:"userId"`
	BankCode         string           `json:"bankCode"`
	AccountID        string           `json:"accountId"`
	ConsentID        string           `json:"consentId,omitempty"`
	AccountType      string           `json:"accountType,omitempty"`
	Currency         string           `json:"currency,omitempty"`
	Name             string           `json:"name,omitempty"`
	IBAN             string           `json:"iban,omitempty"`
	BIC              string           `json:"bic,omitempty"`
	CurrentBalance   *decimal.Decimal `json:"currentBalance,omitempty"`
	AvailableBalance *decimal.Decimal `json:"availableBalance,omitempty"`
	BalanceUpdatedAt *time.Time       `json:"balanceUpdatedAt,omitempty"`
	LastSyncedAt     *time.Time       `json:"lastSyncedAt,omitempty"`
	IsActive         bool             `json:"isActive"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// Stale reports whether the account's transaction cache is older than
// the TTL. An account that never synced is always stale.
func (a *Account) Stale(now time.Time, ttl time.Duration) bool {
	if a.LastSyncedAt == nil {
		return true
	}
	return now.Sub(*a.LastSyncedAt) >= ttl
}

// UpsertParams contains parameters for upserting an account
type UpsertParams struct {
	UserID           int64
	BankCode         string
	AccountID        string
	ConsentID        string
	AccountType      string
	Currency         string
	Name             string
	IBAN             string
	BIC              string
	CurrentBalance   *decimal.Decimal
	AvailableBalance *decimal.Decimal
	BalanceUpdatedAt *time.Time
}

// Validate validates the upsert parameters
func (p UpsertParams) Validate() error {
	if p.UserID <= 0 {
		return errors.New("valid user ID is required for upsert")
	}
	if p.BankCode == "" {
		return errors.New("bank code is required for upsert")
	}
	if p.AccountID == "" {
		return errors.New("account ID is required for upsert")
	}
	return nil
}
