package http

import (
	"encoding/json"
	"net/http"

	"moneta/internal/domain/banking"
	"moneta/internal/shared/middleware"
)

type SyncHandler struct {
	aggregator *banking.Aggregator
	syncer     *banking.TransactionSyncer
}

func NewSyncHandler(aggregator *banking.Aggregator, syncer *banking.TransactionSyncer) *SyncHandler {
	return &SyncHandler{aggregator: aggregator, syncer: syncer}
}

type SyncRequest struct {
	// BankCodes limits the sync; empty means every linked bank.
	BankCodes []string `json:"bankCodes,omitempty"`
}

type SyncResponse struct {
	Results []banking.BankResult `json:"results"`
}

// HandleSyncAccounts fans an account sync out across the user's banks.
// Per-bank failures land in the per-bank results, not the HTTP status.
func (h *SyncHandler) HandleSyncAccounts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := r.Context().Value(middleware.UserIDKey).(int64)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req SyncRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_body", "Invalid request body", "")
			return
		}
	}

	results, err := h.aggregator.SyncAccounts(r.Context(), userID, req.BankCodes)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SyncResponse{Results: results})
}

// HandleSyncTransactions refreshes the transaction cache for every
// stale active account of the user
func (h *SyncHandler) HandleSyncTransactions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := r.Context().Value(middleware.UserIDKey).(int64)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	refreshed, err := h.syncer.RefreshUserTransactions(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"accountsRefreshed": refreshed})
}
