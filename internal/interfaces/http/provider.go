package http

import (
	"net/http"

	"moneta/internal/domain/provider"
)

type ProviderHandler struct {
	registry *provider.Registry
}

func NewProviderHandler(registry *provider.Registry) *ProviderHandler {
	return &ProviderHandler{registry: registry}
}

// BankResponse is a provider profile with credentials redacted
type BankResponse struct {
	BankCode   string `json:"bankCode"`
	Name       string `json:"name"`
	BaseURL    string `json:"baseUrl"`
	Configured bool   `json:"configured"`
}

// HandleListBanks returns every known provider bank
func (h *ProviderHandler) HandleListBanks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	profiles, err := h.registry.List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	banks := make([]BankResponse, 0, len(profiles))
	for _, p := range profiles {
		banks = append(banks, BankResponse{
			BankCode:   p.BankCode,
			Name:       p.Name,
			BaseURL:    p.BaseURL,
			Configured: p.Usable() == nil,
		})
	}

	writeJSON(w, http.StatusOK, banks)
}

// HandleValidateBank probes one bank's credentials
func (h *ProviderHandler) HandleValidateBank(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	bankCode := r.PathValue("code")
	if bankCode == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "Bank code is required", "")
		return
	}

	validation, err := h.registry.Validate(r.Context(), bankCode)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, validation)
}
