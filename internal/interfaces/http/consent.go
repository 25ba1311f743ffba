package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"moneta/internal/domain/consent"
	"moneta/internal/shared/middleware"
)

type ConsentHandler struct {
	orchestrator *consent.Orchestrator
}

func NewConsentHandler(orchestrator *consent.Orchestrator) *ConsentHandler {
	return &ConsentHandler{orchestrator: orchestrator}
}

type ConsentRequest struct {
	BankCode    string   `json:"bankCode"`
	Permissions []string `json:"permissions,omitempty"`
	// Wait blocks the request until the bank approves or rejects,
	// bounded by the poll budget.
	Wait bool `json:"wait,omitempty"`
}

// HandleConsents lists the user's consents or requests a new one
func (h *ConsentHandler) HandleConsents(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserIDKey).(int64)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	switch r.Method {
	case http.MethodGet:
		consents, err := h.orchestrator.List(r.Context(), userID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if consents == nil {
			consents = []*consent.Consent{}
		}
		writeJSON(w, http.StatusOK, consents)

	case http.MethodPost:
		var req ConsentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_body", "Invalid request body", "")
			return
		}
		if req.BankCode == "" {
			writeError(w, http.StatusBadRequest, "invalid_input", "bankCode is required", "")
			return
		}

		row, err := h.orchestrator.Request(r.Context(), userID, req.BankCode, req.Permissions)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		if req.Wait && !row.Status.Terminal() {
			row, err = h.orchestrator.Poll(r.Context(), userID, req.BankCode)
			if errors.Is(err, consent.ErrPollTimeout) {
				// Still pending at the bank; hand the row back so the
				// client can keep polling.
				writeJSON(w, http.StatusAccepted, row)
				return
			}
			if err != nil {
				writeDomainError(w, err)
				return
			}
		}

		writeJSON(w, http.StatusCreated, row)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleConsentByBank checks or revokes the consent at one bank
func (h *ConsentHandler) HandleConsentByBank(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserIDKey).(int64)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	bankCode := r.PathValue("code")
	if bankCode == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "Bank code is required", "")
		return
	}

	switch r.Method {
	case http.MethodGet:
		row, err := h.orchestrator.Status(r.Context(), userID, bankCode)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, row)

	case http.MethodDelete:
		row, err := h.orchestrator.Revoke(r.Context(), userID, bankCode)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, row)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
