package banking

import (
	"errors"
	"fmt"

	"moneta/internal/domain/consent"
	"moneta/internal/domain/provider"
	"moneta/internal/domain/user"
	"moneta/internal/infrastructure/openbanking"
)

// Code classifies why a bank operation failed. Codes are stable API
// values; handlers map them to HTTP statuses.
type Code string

const (
	CodeConfiguration       Code = "configuration_error"
	CodeLinkMissing         Code = "link_missing"
	CodeConsentRequired     Code = "consent_required"
	CodeConsentExpired      Code = "consent_expired"
	CodeConsentRejected     Code = "consent_rejected"
	CodeProviderUnreachable Code = "provider_unreachable"
	CodeMalformedResponse   Code = "malformed_response"
)

// Error is a classified failure for one bank. It wraps the underlying
// cause so callers can still unwrap sentinels.
type Error struct {
	Code    Code   `json:"code"`
	Bank    string `json:"bank"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Code, e.Bank, e.Message, e.Err)
	}
	return fmt.Sprintf("%s (%s): %s", e.Code, e.Bank, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code Code, bank, message, hint string, err error) *Error {
	return &Error{Code: code, Bank: bank, Message: message, Hint: hint, Err: err}
}

// Classify maps an error from the provider pipeline to a classified
// bank error. Already classified errors pass through unchanged.
func Classify(bank string, err error) *Error {
	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	switch {
	case errors.Is(err, provider.ErrProviderNotFound):
		return newError(CodeConfiguration, bank, "unknown bank code", "check the bank code against GET /api/banks", err)
	case errors.Is(err, user.ErrLinkMissing):
		return newError(CodeLinkMissing, bank, "no bank user id linked for this bank", "link the bank account before syncing", err)
	case errors.Is(err, consent.ErrNoConsent):
		return newError(CodeConsentRequired, bank, "no consent on record for this bank", "request consent first", err)
	case errors.Is(err, consent.ErrPollTimeout):
		return newError(CodeConsentRequired, bank, "consent approval still pending", "approve the consent at the bank and retry", err)
	case errors.Is(err, consent.ErrNoIdentifier):
		return newError(CodeProviderUnreachable, bank, "bank returned an unusable consent response", "", err)
	}

	var apiErr *openbanking.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 401, 403:
			return newError(CodeConsentRequired, bank, "bank rejected the request as unauthorized", "the consent may have been revoked at the bank", err)
		default:
			return newError(CodeProviderUnreachable, bank, fmt.Sprintf("bank responded with status %d", apiErr.StatusCode), "", err)
		}
	}

	return newError(CodeProviderUnreachable, bank, "bank request failed", "", err)
}

// consentCode maps a non-live consent status to its failure code.
func consentCode(status consent.Status) Code {
	switch status {
	case consent.StatusExpired:
		return CodeConsentExpired
	case consent.StatusRejected, consent.StatusRevoked:
		return CodeConsentRejected
	default:
		return CodeConsentRequired
	}
}

// consentError builds the classified error for a consent that does not
// currently authorize access.
func consentError(bank string, status consent.Status) *Error {
	code := consentCode(status)
	switch code {
	case CodeConsentExpired:
		return newError(code, bank, "consent has expired", "request a new consent", nil)
	case CodeConsentRejected:
		return newError(code, bank, "consent was rejected or revoked", "request a new consent", nil)
	default:
		return newError(code, bank, "consent is not approved yet", "approve the consent at the bank", nil)
	}
}
