package openbanking

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction directions after normalization.
const (
	DirectionCredit = "credit"
	DirectionDebit  = "debit"
)

// Account is a provider account reduced to the canonical shape. Provider
// payloads disagree on envelopes and field names; the normalizer flattens
// all known variants into this struct.
type Account struct {
	AccountID   string
	AccountType string
	Currency    string
	Name        string
	IBAN        string
	BIC         string
}

// Transaction is a provider transaction reduced to the canonical shape.
// Amount is always non-negative; Direction carries the sign.
type Transaction struct {
	TransactionID   string
	Amount          decimal.Decimal
	Currency        string
	Direction       string
	BookingDate     time.Time
	ValueDate       *time.Time
	CreditorName    string
	CreditorAccount string
	DebtorName      string
	DebtorAccount   string
	Narrative       string
}

// Balances holds the two balance figures tracked per account. Either
// pointer may be nil when the provider omitted that balance type.
type Balances struct {
	Current   *decimal.Decimal
	Available *decimal.Decimal
}

// NormalizeAccounts decodes a raw provider accounts payload. Records
// without a resolvable account id are dropped; the second return value
// reports how many. An undecodable payload is an error.
func NormalizeAccounts(raw []byte) ([]Account, int, error) {
	root, err := decodeRoot(raw)
	if err != nil {
		return nil, 0, fmt.Errorf("malformed accounts payload: %w", err)
	}

	records := extractRecords(root, "accounts", "account")
	accounts := make([]Account, 0, len(records))
	dropped := 0

	for _, rec := range records {
		id := firstString(rec, "account_id", "id", "accountId")
		sub, hasSub := asMap(rec["account"])
		if id == "" && hasSub {
			id = firstString(sub, "identification", "account_id", "id")
		}
		if id == "" {
			dropped++
			continue
		}

		acct := Account{
			AccountID:   id,
			AccountType: firstString(rec, "account_type", "accountType", "account_sub_type", "accountSubType", "type"),
			Currency:    firstString(rec, "currency", "currency_code", "currencyCode"),
			Name:        firstString(rec, "account_name", "accountName", "name", "nickname"),
			IBAN:        firstString(rec, "iban"),
			BIC:         firstString(rec, "bic"),
		}
		if hasSub {
			if acct.IBAN == "" {
				acct.IBAN = firstString(sub, "iban")
			}
			if acct.BIC == "" {
				acct.BIC = firstString(sub, "bic")
			}
			if acct.Name == "" {
				acct.Name = firstString(sub, "name", "nickname")
			}
		}

		accounts = append(accounts, acct)
	}

	return accounts, dropped, nil
}

// NormalizeTransactions decodes a raw provider transactions payload.
// Records missing an id or a parseable amount are dropped, counted in the
// second return value. Missing booking dates default to now.
func NormalizeTransactions(raw []byte, now time.Time) ([]Transaction, int, error) {
	root, err := decodeRoot(raw)
	if err != nil {
		return nil, 0, fmt.Errorf("malformed transactions payload: %w", err)
	}

	records := extractRecords(root, "transactions", "transaction")
	transactions := make([]Transaction, 0, len(records))
	dropped := 0

	for _, rec := range records {
		id := firstString(rec, "transaction_id", "id", "transactionId")
		if id == "" {
			dropped++
			continue
		}

		amount, currency, ok := amountOf(rec["amount"])
		if !ok {
			dropped++
			continue
		}
		if currency == "" {
			currency = firstString(rec, "currency", "currency_code", "currencyCode")
		}

		tx := Transaction{
			TransactionID: id,
			Amount:        amount.Abs(),
			Currency:      currency,
			Direction:     directionOf(rec, amount),
			Narrative:     narrativeOf(rec),
		}

		if booked, ok := parseTime(firstString(rec, "booking_date", "booking_date_time", "bookingDateTime", "bookingDate")); ok {
			tx.BookingDate = booked
		} else {
			tx.BookingDate = now.UTC()
		}
		if valued, ok := parseTime(firstString(rec, "value_date", "value_date_time", "valueDateTime", "valueDate")); ok {
			tx.ValueDate = &valued
		}

		tx.CreditorName, tx.CreditorAccount = partyOf(rec, "creditor")
		tx.DebtorName, tx.DebtorAccount = partyOf(rec, "debtor")

		transactions = append(transactions, tx)
	}

	return transactions, dropped, nil
}

// NormalizeBalances decodes a raw provider balances payload. Unknown
// balance types fall into the current bucket; the first entry per bucket
// wins.
func NormalizeBalances(raw []byte) (Balances, error) {
	var balances Balances

	root, err := decodeRoot(raw)
	if err != nil {
		return balances, fmt.Errorf("malformed balances payload: %w", err)
	}

	for _, rec := range extractRecords(root, "balances", "balance") {
		amount, _, ok := amountOf(rec["amount"])
		if !ok {
			continue
		}

		balanceType := strings.ToLower(firstString(rec, "type", "balance_type", "balanceType"))
		if strings.Contains(balanceType, "avail") {
			if balances.Available == nil {
				balances.Available = &amount
			}
		} else {
			if balances.Current == nil {
				balances.Current = &amount
			}
		}
	}

	return balances, nil
}

// decodeRoot unmarshals and strips explicit nulls so downstream lookups
// never see typed nils.
func decodeRoot(raw []byte) (map[string]any, error) {
	var root any
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, err
	}
	m, ok := stripNulls(root).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected JSON object at payload root")
	}
	return m, nil
}

// extractRecords finds the record list behind the known envelope shapes:
// a top-level plural key, or a data wrapper holding a singular key with
// either a list or a single object.
func extractRecords(root map[string]any, plural, singular string) []map[string]any {
	if records := mapSlice(root[plural]); records != nil {
		return records
	}

	data, ok := asMap(root["data"])
	if !ok {
		return nil
	}
	if records := mapSlice(data[singular]); records != nil {
		return records
	}
	if records := mapSlice(data[plural]); records != nil {
		return records
	}
	if single, ok := asMap(data[singular]); ok {
		return []map[string]any{single}
	}
	return nil
}

func mapSlice(v any) []map[string]any {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	records := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := asMap(item); ok {
			records = append(records, m)
		}
	}
	return records
}

func stripNulls(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for key, val := range t {
			if val == nil {
				continue
			}
			out[key] = stripNulls(val)
		}
		return out
	case []any:
		out := make([]any, 0, len(t))
		for _, val := range t {
			if val == nil {
				continue
			}
			out = append(out, stripNulls(val))
		}
		return out
	default:
		return v
	}
}

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

// firstString returns the first key present with a non-empty scalar
// value, rendering numbers as strings since providers are inconsistent
// about quoting ids.
func firstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		switch t := m[key].(type) {
		case string:
			if trimmed := strings.TrimSpace(t); trimmed != "" {
				return trimmed
			}
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64)
		}
	}
	return ""
}

// amountOf parses the amount variants: a nested {"amount": "...",
// "currency": "..."} object, a quoted decimal string, or a bare number.
func amountOf(v any) (decimal.Decimal, string, bool) {
	switch t := v.(type) {
	case map[string]any:
		amount, currency, ok := amountOf(t["amount"])
		if ok && currency == "" {
			currency = firstString(t, "currency", "currency_code", "currencyCode")
		}
		return amount, currency, ok
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(t))
		if err != nil {
			return decimal.Zero, "", false
		}
		return d, "", true
	case float64:
		return decimal.NewFromFloat(t), "", true
	default:
		return decimal.Zero, "", false
	}
}

func directionOf(rec map[string]any, amount decimal.Decimal) string {
	indicator := strings.ToLower(firstString(rec, "credit_debit_indicator", "creditDebitIndicator", "direction"))
	switch {
	case strings.Contains(indicator, "credit") || strings.Contains(indicator, "crdt"):
		return DirectionCredit
	case strings.Contains(indicator, "debit") || strings.Contains(indicator, "dbit"):
		return DirectionDebit
	}
	if amount.Sign() < 0 {
		return DirectionDebit
	}
	return DirectionCredit
}

func narrativeOf(rec map[string]any) string {
	if s := firstString(rec, "description", "narrative", "transaction_information", "transactionInformation"); s != "" {
		return s
	}
	for _, key := range []string{"remittance_information", "remittanceInformation"} {
		switch t := rec[key].(type) {
		case string:
			return strings.TrimSpace(t)
		case map[string]any:
			if s := firstString(t, "unstructured", "reference"); s != "" {
				return s
			}
		}
	}
	return ""
}

// partyOf extracts the counterparty name and account identifier for the
// given role (creditor or debtor), handling flat and nested layouts.
func partyOf(rec map[string]any, role string) (name, accountID string) {
	name = firstString(rec, role+"_name", role+"Name")
	accountID = firstString(rec, role+"_account", role+"_account_id")

	for _, key := range []string{role + "_account", role + "Account"} {
		if sub, ok := asMap(rec[key]); ok {
			if accountID == "" {
				accountID = firstString(sub, "identification", "iban", "account_id", "id")
			}
			if name == "" {
				name = firstString(sub, "name")
			}
		}
	}
	if sub, ok := asMap(rec[role]); ok {
		if name == "" {
			name = firstString(sub, "name")
		}
		if accountID == "" {
			accountID = firstString(sub, "identification", "iban", "account_id", "id")
		}
	}
	return name, accountID
}

func parseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
