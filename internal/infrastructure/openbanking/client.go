package openbanking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultTimeout = 30 * time.Second

	tokenPath    = "/auth/bank-token"
	consentsPath = "/account-consents"
	accountsPath = "/accounts"

	// Provider APIs cap transaction pages at 500 records.
	MaxPageLimit = 500
)

// Endpoint carries everything needed to call one provider bank: the API
// base URL, the aggregator's credentials at that bank, and the identity
// sent in the X-Requesting-Bank header.
type Endpoint struct {
	BaseURL            string
	ClientID           string
	ClientSecret       string
	RequestingBank     string
	RequestingBankName string
}

// APIError is a non-2xx response from a provider bank.
type APIError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s failed with status %d: %s", e.Operation, e.StatusCode, e.Body)
}

// Temporary reports whether the failure looks transient (server side).
func (e *APIError) Temporary() bool {
	return e.StatusCode >= 500
}

// Client handles communication with provider bank APIs.
type Client struct {
	httpClient *http.Client
}

// Ensure Client implements ClientInterface
var _ ClientInterface = (*Client)(nil)

// NewClient creates a provider API client. Outbound calls are traced
// through the OpenTelemetry transport.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// TokenResponse represents the provider token endpoint response
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// ConsentReply represents the response to a consent request. Banks with
// manual approval return an interim request_id instead of a consent_id.
type ConsentReply struct {
	Status       string `json:"status"`
	ConsentID    string `json:"consent_id"`
	RequestID    string `json:"request_id"`
	AutoApproved bool   `json:"auto_approved"`
}

// Identifier returns the consent_id when present, else the request_id.
func (r *ConsentReply) Identifier() string {
	if r.ConsentID != "" {
		return r.ConsentID
	}
	return r.RequestID
}

// ConsentDetails represents a consent lookup response. Providers are not
// consistent about the id field casing, so both spellings are accepted.
type ConsentDetails struct {
	Status       string `json:"status"`
	ConsentID    string `json:"consentId"`
	AltConsentID string `json:"consent_id"`
}

// Identifier returns whichever consent id field the provider populated.
func (d *ConsentDetails) Identifier() string {
	if d.ConsentID != "" {
		return d.ConsentID
	}
	return d.AltConsentID
}

// TransactionQuery bounds a provider transaction fetch.
type TransactionQuery struct {
	From  time.Time
	To    time.Time
	Page  int
	Limit int
}

type consentRequestBody struct {
	ClientID           string   `json:"client_id"`
	Permissions        []string `json:"permissions"`
	Reason             string   `json:"reason"`
	RequestingBank     string   `json:"requesting_bank"`
	RequestingBankName string   `json:"requesting_bank_name"`
}

// AcquireToken obtains a short-lived bearer token from the provider.
// Tokens are not cached: every pipeline operation acquires a fresh one.
func (c *Client) AcquireToken(ctx context.Context, ep Endpoint) (string, error) {
	q := url.Values{}
	q.Set("client_id", ep.ClientID)
	q.Set("client_secret", ep.ClientSecret)
	reqURL := ep.BaseURL + tokenPath + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req, ep, "", "")

	body, err := c.do(req, "token request")
	if err != nil {
		return "", err
	}

	var tokenResp TokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("token response missing access_token")
	}

	return tokenResp.AccessToken, nil
}

// RequestConsent asks the provider for access to the bank user's accounts.
func (c *Client) RequestConsent(ctx context.Context, ep Endpoint, token, bankUserID string, permissions []string, reason string) (*ConsentReply, error) {
	payload, err := json.Marshal(consentRequestBody{
		ClientID:           bankUserID,
		Permissions:        permissions,
		Reason:             reason,
		RequestingBank:     ep.RequestingBank,
		RequestingBankName: ep.RequestingBankName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal consent request: %w", err)
	}

	reqURL := ep.BaseURL + consentsPath + "/request"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req, ep, token, "")

	body, err := c.do(req, "consent request")
	if err != nil {
		return nil, err
	}

	var reply ConsentReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, fmt.Errorf("failed to unmarshal consent response: %w", err)
	}

	return &reply, nil
}

// GetConsent fetches the current state of a consent from the provider.
func (c *Client) GetConsent(ctx context.Context, ep Endpoint, token, consentID string) (*ConsentDetails, error) {
	reqURL := ep.BaseURL + consentsPath + "/" + url.PathEscape(consentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req, ep, token, "")

	body, err := c.do(req, "consent lookup")
	if err != nil {
		return nil, err
	}

	var details ConsentDetails
	if err := json.Unmarshal(body, &details); err != nil {
		return nil, fmt.Errorf("failed to unmarshal consent details: %w", err)
	}

	return &details, nil
}

// DeleteConsent revokes a consent at the provider.
func (c *Client) DeleteConsent(ctx context.Context, ep Endpoint, token, consentID string) error {
	reqURL := ep.BaseURL + consentsPath + "/" + url.PathEscape(consentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req, ep, token, "")

	_, err = c.do(req, "consent revocation")
	return err
}

// GetAccounts fetches the raw accounts payload for a bank user. The
// payload shape varies per provider, so it is returned undecoded for the
// normalizer.
func (c *Client) GetAccounts(ctx context.Context, ep Endpoint, token, bankUserID, consentID string) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("client_id", bankUserID)
	reqURL := ep.BaseURL + accountsPath + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req, ep, token, consentID)

	return c.do(req, "accounts fetch")
}

// GetBalances fetches the raw balances payload for one account.
func (c *Client) GetBalances(ctx context.Context, ep Endpoint, token, accountID, consentID string) (json.RawMessage, error) {
	reqURL := ep.BaseURL + accountsPath + "/" + url.PathEscape(accountID) + "/balances"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req, ep, token, consentID)

	return c.do(req, "balances fetch")
}

// GetTransactions fetches the raw transactions payload for one account
// within the given booking window.
func (c *Client) GetTransactions(ctx context.Context, ep Endpoint, token, accountID, consentID string, query TransactionQuery) (json.RawMessage, error) {
	limit := query.Limit
	if limit <= 0 || limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	page := query.Page
	if page < 1 {
		page = 1
	}

	q := url.Values{}
	if !query.From.IsZero() {
		q.Set("from_booking_date_time", query.From.UTC().Format(time.RFC3339))
	}
	if !query.To.IsZero() {
		q.Set("to_booking_date_time", query.To.UTC().Format(time.RFC3339))
	}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))

	reqURL := ep.BaseURL + accountsPath + "/" + url.PathEscape(accountID) + "/transactions?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req, ep, token, consentID)

	return c.do(req, "transactions fetch")
}

func (c *Client) setHeaders(req *http.Request, ep Endpoint, token, consentID string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Requesting-Bank", ep.RequestingBank)
	req.Header.Set("X-Request-Id", uuid.NewString())
	if token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	}
	if consentID != "" {
		req.Header.Set("X-Consent-Id", consentID)
	}
}

func (c *Client) do(req *http.Request, operation string) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Body:       truncateBody(body),
		}
	}

	return body, nil
}

func truncateBody(body []byte) string {
	const max = 512
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
