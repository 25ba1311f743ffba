package consent

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrNoConsent    = errors.New("no consent for bank")
	ErrNoIdentifier = errors.New("provider returned no consent identifier")
	ErrPollTimeout  = errors.New("consent approval poll timed out")
)

// Status is the canonical consent lifecycle state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusRevoked  Status = "revoked"
	StatusExpired  Status = "expired"
)

// Providers use different words for the same states. Anything not in
// this table stays pending: an unknown status must never grant access.
var statusVocabulary = map[string]Status{
	"pending":                StatusPending,
	"awaitingauthorisation":  StatusPending,
	"awaiting_authorisation": StatusPending,
	"approved":               StatusApproved,
	"authorised":             StatusApproved,
	"authorized":             StatusApproved,
	"given":                  StatusApproved,
	"valid":                  StatusApproved,
	"active":                 StatusApproved,
	"rejected":               StatusRejected,
	"denied":                 StatusRejected,
	"declined":               StatusRejected,
	"revoked":                StatusRevoked,
	"cancelled":              StatusRevoked,
	"expired":                StatusExpired,
}

// NormalizeStatus maps a raw provider status onto the canonical set.
func NormalizeStatus(raw string) Status {
	if status, ok := statusVocabulary[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return status
	}
	return StatusPending
}

// Terminal reports whether the status ends the approval flow.
func (s Status) Terminal() bool {
	return s != StatusPending
}

// DefaultPermissions requested when the caller does not name any.
var DefaultPermissions = []string{
	"ReadAccountsDetail",
	"ReadBalances",
	"ReadTransactionsDetail",
}

// Interim request ids carry this prefix until the provider assigns the
// final consent id.
const interimPrefix = "req-"

// Consent is the stored consent row for one (user, bank) pair.
type Consent struct {
	ID           int64      `json:"id"`
	UserID       int64      `json:"userId"`
	BankCode     string     `json:"bankCode"`
	ConsentID    string     `json:"consentId"`
	Status       Status     `json:"status"`
	AutoApproved bool       `json:"autoApproved"`
	Permissions  []string   `json:"permissions"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Interim reports whether the consent still carries a provisional
// request id instead of the provider-issued consent id.
func (c *Consent) Interim() bool {
	return strings.HasPrefix(c.ConsentID, interimPrefix)
}

// Live reports whether the consent currently authorizes data access.
func (c *Consent) Live(now time.Time) bool {
	if c.Status != StatusApproved {
		return false
	}
	if c.ExpiresAt != nil && !now.Before(*c.ExpiresAt) {
		return false
	}
	return true
}

type UpsertParams struct {
	UserID       int64
	BankCode     string
	ConsentID    string
	Status       Status
	AutoApproved bool
	Permissions  []string
	ExpiresAt    *time.Time
}
