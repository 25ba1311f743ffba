package http

import (
	"net/http"
	"strconv"
	"time"

	"moneta/internal/domain/banking"
	"moneta/internal/domain/transaction"
	"moneta/internal/shared/middleware"
)

type TransactionHandler struct {
	syncer *banking.TransactionSyncer
}

func NewTransactionHandler(syncer *banking.TransactionSyncer) *TransactionHandler {
	return &TransactionHandler{syncer: syncer}
}

// TransactionPageResponse adds the cache disposition to the page
type TransactionPageResponse struct {
	*transaction.Page
	// Stale is true when the provider refresh failed and cached data
	// was served instead.
	Stale bool `json:"stale"`
}

// HandleAccountTransactions returns one page of an account's cached
// transactions, refreshing the cache from the provider when stale.
// Route: /api/banks/{code}/accounts/{accountId}/transactions
func (h *TransactionHandler) HandleAccountTransactions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := r.Context().Value(middleware.UserIDKey).(int64)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	bankCode := r.PathValue("code")
	accountID := r.PathValue("accountId")
	if bankCode == "" || accountID == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "Bank code and account id are required", "")
		return
	}

	query, err := parsePageQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error(), "")
		return
	}

	page, stale, err := h.syncer.GetTransactionsPage(r.Context(), userID, bankCode, accountID, query)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if page.Transactions == nil {
		page.Transactions = []*transaction.Transaction{}
	}

	writeJSON(w, http.StatusOK, TransactionPageResponse{Page: page, Stale: stale})
}

func parsePageQuery(r *http.Request) (transaction.PageQuery, error) {
	var q transaction.PageQuery
	params := r.URL.Query()

	if raw := params.Get("from_date"); raw != "" {
		from, err := parseQueryDate(raw)
		if err != nil {
			return q, err
		}
		q.From = &from
	}
	if raw := params.Get("to_date"); raw != "" {
		to, err := parseQueryDate(raw)
		if err != nil {
			return q, err
		}
		q.To = &to
	}
	if raw := params.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil {
			return q, errInvalidPage
		}
		q.Page = page
	}
	if raw := params.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return q, errInvalidLimit
		}
		q.Limit = limit
	}

	return q, nil
}

var (
	errInvalidPage  = queryError("page must be an integer")
	errInvalidLimit = queryError("limit must be an integer")
	errInvalidDate  = queryError("dates must be RFC 3339 or YYYY-MM-DD")
)

type queryError string

func (e queryError) Error() string { return string(e) }

func parseQueryDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	return time.Time{}, errInvalidDate
}
