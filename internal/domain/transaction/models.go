package transaction

import (
	"time"

	"github.com/shopspring/decimal"
)

// Pagination bounds for cached transaction reads.
const (
	DefaultPageLimit = 50
	MaxPageLimit     = 500
)

// Transaction is a cached provider transaction. TransactionID is the
// provider's identifier; Amount is always non-negative with Type
// carrying the direction.
type Transaction struct {
	ID              int64           `json:"id"`
	UserID          int64           `json:"userId"`
	AccountID       int64           `json:"accountId"`
	TransactionID   string          `json:"transactionId"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency,omitempty"`
	Type            string          `json:"type"`     // "credit" or "debit"
	Category        string          `json:"category"` // "income" or "expense"
	BookingDate     time.Time       `json:"bookingDate"`
	ValueDate       *time.Time      `json:"valueDate,omitempty"`
	CreditorName    string          `json:"creditorName,omitempty"`
	CreditorAccount string          `json:"creditorAccount,omitempty"`
	DebtorName      string          `json:"debtorName,omitempty"`
	DebtorAccount   string          `json:"debtorAccount,omitempty"`
	Narrative       string          `json:"narrative,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// UpsertParams is used for syncing transactions from the provider
type UpsertParams struct {
	UserID          int64
	AccountID       int64
	TransactionID   string
	Amount          decimal.Decimal
	Currency        string
	Type            string
	Category        string
	BookingDate     time.Time
	ValueDate       *time.Time
	CreditorName    string
	CreditorAccount string
	DebtorName      string
	DebtorAccount   string
	Narrative       string
}

// PageQuery filters and paginates a cached transaction read.
type PageQuery struct {
	From  *time.Time
	To    *time.Time
	Page  int
	Limit int
}

// Normalize clamps the query to valid pagination bounds.
func (q PageQuery) Normalize() PageQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = DefaultPageLimit
	}
	if q.Limit > MaxPageLimit {
		q.Limit = MaxPageLimit
	}
	return q
}

// Offset returns the row offset for the normalized query.
func (q PageQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

// Page is one page of cached transactions plus the filtered total.
type Page struct {
	Transactions []*Transaction `json:"transactions"`
	TotalCount   int64          `json:"totalCount"`
	Page         int            `json:"page"`
	Limit        int            `json:"limit"`
}
