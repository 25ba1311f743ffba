package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"moneta/internal/domain/account"
	"moneta/internal/domain/banking"
	"moneta/internal/domain/consent"
	"moneta/internal/domain/notification"
	"moneta/internal/domain/provider"
	"moneta/internal/domain/user"
)

// Envelope is the uniform response shape for the JSON API
type Envelope struct {
	Success bool           `json:"success"`
	Data    any            `json:"data,omitempty"`
	Error   *ErrorResponse `json:"error,omitempty"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, code, message, hint string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Envelope{
		Success: false,
		Error:   &ErrorResponse{Code: code, Message: message, Hint: hint},
	})
}

// writeDomainError maps domain failures to an HTTP status and the
// envelope error shape. Unrecognized errors become an opaque 500.
func writeDomainError(w http.ResponseWriter, err error) {
	var bankErr *banking.Error
	if errors.As(err, &bankErr) {
		writeError(w, statusForBankCode(bankErr.Code), string(bankErr.Code), bankErr.Message, bankErr.Hint)
		return
	}

	switch {
	case errors.Is(err, account.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, "account_not_found", "Account not found", "")
	case errors.Is(err, account.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "Account belongs to another user", "")
	case errors.Is(err, account.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error(), "")
	case errors.Is(err, provider.ErrProviderNotFound):
		writeError(w, http.StatusNotFound, "unknown_bank", "Unknown bank code", "list available banks at /api/banks")
	case errors.Is(err, user.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user_not_found", "User not found", "")
	case errors.Is(err, user.ErrLinkMissing):
		writeError(w, http.StatusBadRequest, string(banking.CodeLinkMissing), "No bank user id linked for this bank", "link the bank first")
	case errors.Is(err, consent.ErrNoConsent):
		writeError(w, http.StatusNotFound, "no_consent", "No consent on record for this bank", "request consent first")
	case errors.Is(err, consent.ErrPollTimeout):
		writeError(w, http.StatusAccepted, "consent_pending", "Consent approval still pending at the bank", "poll the consent status")
	case errors.Is(err, notification.ErrNotificationNotFound):
		writeError(w, http.StatusNotFound, "notification_not_found", "Notification not found", "")
	default:
		log.Printf("Unhandled error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Something went wrong", "")
	}
}

func statusForBankCode(code banking.Code) int {
	switch code {
	case banking.CodeConfiguration, banking.CodeLinkMissing:
		return http.StatusBadRequest
	case banking.CodeConsentRequired, banking.CodeConsentExpired, banking.CodeConsentRejected:
		return http.StatusForbidden
	case banking.CodeProviderUnreachable, banking.CodeMalformedResponse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
