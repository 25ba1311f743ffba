package http

import (
	"encoding/json"
	"net/http"

	"moneta/internal/domain/provider"
	"moneta/internal/domain/user"
	"moneta/internal/shared/middleware"
)

type LinkHandler struct {
	linkRepo user.LinkRepository
	registry *provider.Registry
}

func NewLinkHandler(linkRepo user.LinkRepository, registry *provider.Registry) *LinkHandler {
	return &LinkHandler{linkRepo: linkRepo, registry: registry}
}

type LinkRequest struct {
	BankCode   string `json:"bankCode"`
	BankUserID string `json:"bankUserId"`
}

// HandleLinks lists the user's bank links or creates one
func (h *LinkHandler) HandleLinks(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserIDKey).(int64)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	switch r.Method {
	case http.MethodGet:
		links, err := h.linkRepo.ListByUserID(r.Context(), userID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if links == nil {
			links = []*user.BankLink{}
		}
		writeJSON(w, http.StatusOK, links)

	case http.MethodPost:
		var req LinkRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_body", "Invalid request body", "")
			return
		}
		if req.BankCode == "" || req.BankUserID == "" {
			writeError(w, http.StatusBadRequest, "invalid_input", "bankCode and bankUserId are required", "")
			return
		}

		// Reject bank codes nobody can resolve
		if _, err := h.registry.Resolve(r.Context(), req.BankCode); err != nil {
			writeDomainError(w, err)
			return
		}

		link, err := h.linkRepo.Upsert(r.Context(), userID, req.BankCode, req.BankUserID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, link)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleLinkByBank removes the link at one bank
func (h *LinkHandler) HandleLinkByBank(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

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

	if err := h.linkRepo.Delete(r.Context(), userID, bankCode); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
