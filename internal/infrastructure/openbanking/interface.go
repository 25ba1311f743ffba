package openbanking

import (
	"context"
	"encoding/json"
)

// ClientInterface defines the provider bank API surface. Used to allow
// mocking in tests.
type ClientInterface interface {
	AcquireToken(ctx context.Context, ep Endpoint) (string, error)
	RequestConsent(ctx context.Context, ep Endpoint, token, bankUserID string, permissions []string, reason string) (*ConsentReply, error)
	GetConsent(ctx context.Context, ep Endpoint, token, consentID string) (*ConsentDetails, error)
	DeleteConsent(ctx context.Context, ep Endpoint, token, consentID string) error
	GetAccounts(ctx context.Context, ep Endpoint, token, bankUserID, consentID string) (json.RawMessage, error)
	GetBalances(ctx context.Context, ep Endpoint, token, accountID, consentID string) (json.RawMessage, error)
	GetTransactions(ctx context.Context, ep Endpoint, token, accountID, consentID string, query TransactionQuery) (json.RawMessage, error)
}
