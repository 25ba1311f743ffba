package banking

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"moneta/internal/domain/account"
	"moneta/internal/domain/consent"
	"moneta/internal/domain/provider"
	"moneta/internal/domain/transaction"
	"moneta/internal/domain/user"
	"moneta/internal/infrastructure/openbanking"
)

type MockBankClient struct {
	AcquireTokenFunc    func(ctx context.Context, ep openbanking.Endpoint) (string, error)
	RequestConsentFunc  func(ctx context.Context, ep openbanking.Endpoint, token, bankUserID string, permissions []string, reason string) (*openbanking.ConsentReply, error)
	GetConsentFunc      func(ctx context.Context, ep openbanking.Endpoint, token, consentID string) (*openbanking.ConsentDetails, error)
	DeleteConsentFunc   func(ctx context.Context, ep openbanking.Endpoint, token, consentID string) error
	GetAccountsFunc     func(ctx context.Context, ep openbanking.Endpoint, token, bankUserID, consentID string) (json.RawMessage, error)
	GetBalancesFunc     func(ctx context.Context, ep openbanking.Endpoint, token, accountID, consentID string) (json.RawMessage, error)
	GetTransactionsFunc func(ctx context.Context, ep openbanking.Endpoint, token, accountID, consentID string, query openbanking.TransactionQuery) (json.RawMessage, error)
}

func (m *MockBankClient) AcquireToken(ctx context.Context, ep openbanking.Endpoint) (string, error) {
	if m.AcquireTokenFunc != nil {
		return m.AcquireTokenFunc(ctx, ep)
	}
	return "test-token", nil
}

func (m *MockBankClient) RequestConsent(ctx context.Context, ep openbanking.Endpoint, token, bankUserID string, permissions []string, reason string) (*openbanking.ConsentReply, error) {
	if m.RequestConsentFunc != nil {
		return m.RequestConsentFunc(ctx, ep, token, bankUserID, permissions, reason)
	}
	return &openbanking.ConsentReply{Status: "approved", ConsentID: "consent-1", AutoApproved: true}, nil
}

func (m *MockBankClient) GetConsent(ctx context.Context, ep openbanking.Endpoint, token, consentID string) (*openbanking.ConsentDetails, error) {
	if m.GetConsentFunc != nil {
		return m.GetConsentFunc(ctx, ep, token, consentID)
	}
	return &openbanking.ConsentDetails{Status: "approved", ConsentID: consentID}, nil
}

func (m *MockBankClient) DeleteConsent(ctx context.Context, ep openbanking.Endpoint, token, consentID string) error {
	if m.DeleteConsentFunc != nil {
		return m.DeleteConsentFunc(ctx, ep, token, consentID)
	}
	return nil
}

func (m *MockBankClient) GetAccounts(ctx context.Context, ep openbanking.Endpoint, token, bankUserID, consentID string) (json.RawMessage, error) {
	if m.GetAccountsFunc != nil {
		return m.GetAccountsFunc(ctx, ep, token, bankUserID, consentID)
	}
	return json.RawMessage(`{"accounts":[{"account_id":"acc-1","currency":"RUB"}]}`), nil
}

func (m *MockBankClient) GetBalances(ctx context.Context, ep openbanking.Endpoint, token, accountID, consentID string) (json.RawMessage, error) {
	if m.GetBalancesFunc != nil {
		return m.GetBalancesFunc(ctx, ep, token, accountID, consentID)
	}
	return json.RawMessage(`{"balances":[]}`), nil
}

func (m *MockBankClient) GetTransactions(ctx context.Context, ep openbanking.Endpoint, token, accountID, consentID string, query openbanking.TransactionQuery) (json.RawMessage, error) {
	if m.GetTransactionsFunc != nil {
		return m.GetTransactionsFunc(ctx, ep, token, accountID, consentID, query)
	}
	return json.RawMessage(`{"transactions":[]}`), nil
}

var _ openbanking.ClientInterface = (*MockBankClient)(nil)

type MockConsentRepo struct {
	GetByUserAndBankFunc func(ctx context.Context, userID int64, bankCode string) (*consent.Consent, error)
}

func (m *MockConsentRepo) GetByUserAndBank(ctx context.Context, userID int64, bankCode string) (*consent.Consent, error) {
	if m.GetByUserAndBankFunc != nil {
		return m.GetByUserAndBankFunc(ctx, userID, bankCode)
	}
	future := time.Now().Add(time.Hour)
	return &consent.Consent{
		UserID:    userID,
		BankCode:  bankCode,
		ConsentID: "consent-1",
		Status:    consent.StatusApproved,
		ExpiresAt: &future,
	}, nil
}

func (m *MockConsentRepo) ListByUserID(ctx context.Context, userID int64) ([]*consent.Consent, error) {
	return nil, nil
}

func (m *MockConsentRepo) ListPending(ctx context.Context) ([]*consent.Consent, error) {
	return nil, nil
}

func (m *MockConsentRepo) Upsert(ctx context.Context, params consent.UpsertParams) (*consent.Consent, error) {
	return &consent.Consent{
		UserID:      params.UserID,
		BankCode:    params.BankCode,
		ConsentID:   params.ConsentID,
		Status:      params.Status,
		Permissions: params.Permissions,
		ExpiresAt:   params.ExpiresAt,
	}, nil
}

func (m *MockConsentRepo) UpdateStatus(ctx context.Context, userID int64, bankCode string, status consent.Status) error {
	return nil
}

func (m *MockConsentRepo) ReplaceConsentID(ctx context.Context, userID int64, bankCode, newConsentID string) error {
	return nil
}

func (m *MockConsentRepo) Retire(ctx context.Context, userID int64, bankCode string) error {
	return nil
}

func (m *MockConsentRepo) Revoke(ctx context.Context, userID int64, bankCode string) error {
	return nil
}

type MockLinkRepo struct {
	GetByUserAndBankFunc func(ctx context.Context, userID int64, bankCode string) (*user.BankLink, error)
	ListByUserIDFunc     func(ctx context.Context, userID int64) ([]*user.BankLink, error)
}

func (m *MockLinkRepo) GetByUserAndBank(ctx context.Context, userID int64, bankCode string) (*user.BankLink, error) {
	if m.GetByUserAndBankFunc != nil {
		return m.GetByUserAndBankFunc(ctx, userID, bankCode)
	}
	return &user.BankLink{UserID: userID, BankCode: bankCode, BankUserID: "bank-user-1"}, nil
}

func (m *MockLinkRepo) ListByUserID(ctx context.Context, userID int64) ([]*user.BankLink, error) {
	if m.ListByUserIDFunc != nil {
		return m.ListByUserIDFunc(ctx, userID)
	}
	return nil, nil
}

func (m *MockLinkRepo) Upsert(ctx context.Context, userID int64, bankCode, bankUserID string) (*user.BankLink, error) {
	return &user.BankLink{UserID: userID, BankCode: bankCode, BankUserID: bankUserID}, nil
}

func (m *MockLinkRepo) Delete(ctx context.Context, userID int64, bankCode string) error {
	return nil
}

func (m *MockLinkRepo) ListLinkedUserIDs(ctx context.Context) ([]int64, error) {
	return nil, nil
}

type MockProviderRepo struct{}

func (m *MockProviderRepo) GetByCode(ctx context.Context, bankCode string) (*provider.Profile, error) {
	return nil, nil
}

func (m *MockProviderRepo) List(ctx context.Context) ([]*provider.Profile, error) {
	return nil, nil
}

func (m *MockProviderRepo) Upsert(ctx context.Context, profile *provider.Profile) (*provider.Profile, error) {
	return profile, nil
}

type MockAccountRepo struct {
	GetByIDFunc             func(ctx context.Context, id int64) (*account.Account, error)
	GetByProviderIDFunc     func(ctx context.Context, userID int64, bankCode, accountID string) (*account.Account, error)
	ListByUserIDFunc        func(ctx context.Context, userID int64) ([]*account.Account, error)
	ListByUserAndBankFunc   func(ctx context.Context, userID int64, bankCode string) ([]*account.Account, error)
	UpsertFunc              func(ctx context.Context, params account.UpsertParams) (*account.Account, error)
	MarkMissingInactiveFunc func(ctx context.Context, userID int64, bankCode string, presentIDs []string) (int64, error)
	UpdateLastSyncedFunc    func(ctx context.Context, id int64, at time.Time) error
}

func (m *MockAccountRepo) GetByID(ctx context.Context, id int64) (*account.Account, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockAccountRepo) GetByProviderID(ctx context.Context, userID int64, bankCode, accountID string) (*account.Account, error) {
	if m.GetByProviderIDFunc != nil {
		return m.GetByProviderIDFunc(ctx, userID, bankCode, accountID)
	}
	return nil, nil
}

func (m *MockAccountRepo) ListByUserID(ctx context.Context, userID int64) ([]*account.Account, error) {
	if m.ListByUserIDFunc != nil {
		return m.ListByUserIDFunc(ctx, userID)
	}
	return nil, nil
}

func (m *MockAccountRepo) ListByUserAndBank(ctx context.Context, userID int64, bankCode string) ([]*account.Account, error) {
	if m.ListByUserAndBankFunc != nil {
		return m.ListByUserAndBankFunc(ctx, userID, bankCode)
	}
	return nil, nil
}

func (m *MockAccountRepo) Upsert(ctx context.Context, params account.UpsertParams) (*account.Account, error) {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, params)
	}
	return &account.Account{
		ID:        1,
		UserID:    params.UserID,
		BankCode:  params.BankCode,
		AccountID: params.AccountID,
		IsActive:  true,
	}, nil
}

func (m *MockAccountRepo) MarkMissingInactive(ctx context.Context, userID int64, bankCode string, presentIDs []string) (int64, error) {
	if m.MarkMissingInactiveFunc != nil {
		return m.MarkMissingInactiveFunc(ctx, userID, bankCode, presentIDs)
	}
	return 0, nil
}

func (m *MockAccountRepo) UpdateLastSynced(ctx context.Context, id int64, at time.Time) error {
	if m.UpdateLastSyncedFunc != nil {
		return m.UpdateLastSyncedFunc(ctx, id, at)
	}
	return nil
}

type MockTransactionRepo struct {
	UpsertFunc        func(ctx context.Context, params transaction.UpsertParams) (bool, error)
	ListPageFunc      func(ctx context.Context, userID, accountID int64, q transaction.PageQuery) ([]*transaction.Transaction, error)
	CountFilteredFunc func(ctx context.Context, userID, accountID int64, q transaction.PageQuery) (int64, error)
}

func (m *MockTransactionRepo) Upsert(ctx context.Context, params transaction.UpsertParams) (bool, error) {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, params)
	}
	return true, nil
}

func (m *MockTransactionRepo) ListPage(ctx context.Context, userID, accountID int64, q transaction.PageQuery) ([]*transaction.Transaction, error) {
	if m.ListPageFunc != nil {
		return m.ListPageFunc(ctx, userID, accountID, q)
	}
	return nil, nil
}

func (m *MockTransactionRepo) CountFiltered(ctx context.Context, userID, accountID int64, q transaction.PageQuery) (int64, error) {
	if m.CountFilteredFunc != nil {
		return m.CountFilteredFunc(ctx, userID, accountID, q)
	}
	return 0, nil
}

func testRegistry() *provider.Registry {
	return provider.NewRegistry(&MockProviderRepo{}, nil, provider.Defaults{
		ClientID:           "team24",
		ClientSecret:       "secret",
		RequestingBank:     "team24",
		RequestingBankName: "Moneta",
	})
}

func testOrchestrator(client openbanking.ClientInterface, consents consent.Repository, links user.LinkRepository) *consent.Orchestrator {
	return consent.NewOrchestrator(testRegistry(), client, consents, links, nil, consent.Config{
		Reason:       "Account aggregation",
		Validity:     time.Hour,
		PollInterval: time.Millisecond,
		PollAttempts: 3,
	})
}

func newTestAggregator(client *MockBankClient, consents consent.Repository, links user.LinkRepository, accounts account.Repository) *Aggregator {
	return NewAggregator(testRegistry(), client, testOrchestrator(client, consents, links), links, accounts, Config{})
}

func TestSyncAccounts_PartialFailureIsolated(t *testing.T) {
	client := &MockBankClient{
		GetAccountsFunc: func(ctx context.Context, ep openbanking.Endpoint, token, bankUserID, consentID string) (json.RawMessage, error) {
			return json.RawMessage(`{"accounts":[{"account_id":"acc-1"},{"account_id":"acc-2"}]}`), nil
		},
	}
	accounts := &MockAccountRepo{}
	agg := newTestAggregator(client, &MockConsentRepo{}, &MockLinkRepo{}, accounts)

	results, err := agg.SyncAccounts(context.Background(), 1, []string{"vbank", "nobank"})
	if err != nil {
		t.Fatalf("SyncAccounts() failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}

	if !results[0].Success {
		t.Errorf("vbank sync failed: %v", results[0].Error)
	}
	if results[0].AccountsSynced != 2 {
		t.Errorf("AccountsSynced = %d, want 2", results[0].AccountsSynced)
	}
	if results[1].Success {
		t.Error("unknown bank should not succeed")
	}
	if results[1].Error == nil || results[1].Error.Code != CodeConfiguration {
		t.Errorf("unknown bank error = %v, want %s", results[1].Error, CodeConfiguration)
	}
}

func TestSyncAccounts_DerivesBanksFromLinks(t *testing.T) {
	links := &MockLinkRepo{
		ListByUserIDFunc: func(ctx context.Context, userID int64) ([]*user.BankLink, error) {
			return []*user.BankLink{
				{UserID: userID, BankCode: "vbank", BankUserID: "u-1"},
				{UserID: userID, BankCode: "abank", BankUserID: "u-2"},
			}, nil
		},
	}
	agg := newTestAggregator(&MockBankClient{}, &MockConsentRepo{}, links, &MockAccountRepo{})

	results, err := agg.SyncAccounts(context.Background(), 1, nil)
	if err != nil {
		t.Fatalf("SyncAccounts() failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].BankCode != "vbank" || results[1].BankCode != "abank" {
		t.Errorf("bank order = %s, %s; want vbank, abank", results[0].BankCode, results[1].BankCode)
	}
}

func TestSyncBank_LinkMissing(t *testing.T) {
	links := &MockLinkRepo{
		GetByUserAndBankFunc: func(ctx context.Context, userID int64, bankCode string) (*user.BankLink, error) {
			return nil, nil
		},
	}
	agg := newTestAggregator(&MockBankClient{}, &MockConsentRepo{}, links, &MockAccountRepo{})

	result := agg.SyncBank(context.Background(), 1, "vbank")
	if result.Success {
		t.Fatal("sync should fail without a bank link")
	}
	if result.Error.Code != CodeLinkMissing {
		t.Errorf("Code = %s, want %s", result.Error.Code, CodeLinkMissing)
	}
}

func TestSyncBank_ConsentNotApproved(t *testing.T) {
	consents := &MockConsentRepo{
		GetByUserAndBankFunc: func(ctx context.Context, userID int64, bankCode string) (*consent.Consent, error) {
			return &consent.Consent{UserID: userID, BankCode: bankCode, ConsentID: "consent-1", Status: consent.StatusPending}, nil
		},
	}
	client := &MockBankClient{
		GetConsentFunc: func(ctx context.Context, ep openbanking.Endpoint, token, consentID string) (*openbanking.ConsentDetails, error) {
			return &openbanking.ConsentDetails{Status: "awaiting_authorisation", ConsentID: consentID}, nil
		},
	}
	agg := newTestAggregator(client, consents, &MockLinkRepo{}, &MockAccountRepo{})

	result := agg.SyncBank(context.Background(), 1, "vbank")
	if result.Success {
		t.Fatal("sync should fail with a pending consent")
	}
	if result.Error.Code != CodeConsentRequired {
		t.Errorf("Code = %s, want %s", result.Error.Code, CodeConsentRequired)
	}
}

func TestSyncBank_MalformedAccountsPayload(t *testing.T) {
	client := &MockBankClient{
		GetAccountsFunc: func(ctx context.Context, ep openbanking.Endpoint, token, bankUserID, consentID string) (json.RawMessage, error) {
			return json.RawMessage(`[1,2,3]`), nil
		},
	}
	agg := newTestAggregator(client, &MockConsentRepo{}, &MockLinkRepo{}, &MockAccountRepo{})

	result := agg.SyncBank(context.Background(), 1, "vbank")
	if result.Success {
		t.Fatal("sync should fail on an undecodable payload")
	}
	if result.Error.Code != CodeMalformedResponse {
		t.Errorf("Code = %s, want %s", result.Error.Code, CodeMalformedResponse)
	}
}

func TestSyncBank_ProviderUnreachable(t *testing.T) {
	client := &MockBankClient{
		GetAccountsFunc: func(ctx context.Context, ep openbanking.Endpoint, token, bankUserID, consentID string) (json.RawMessage, error) {
			return nil, &openbanking.APIError{Operation: "accounts fetch", StatusCode: 502}
		},
	}
	agg := newTestAggregator(client, &MockConsentRepo{}, &MockLinkRepo{}, &MockAccountRepo{})

	result := agg.SyncBank(context.Background(), 1, "vbank")
	if result.Success {
		t.Fatal("sync should fail when the provider is down")
	}
	if result.Error.Code != CodeProviderUnreachable {
		t.Errorf("Code = %s, want %s", result.Error.Code, CodeProviderUnreachable)
	}
}

func TestSyncBank_BalanceFailureDoesNotFailSync(t *testing.T) {
	var upserted []account.UpsertParams
	client := &MockBankClient{
		GetBalancesFunc: func(ctx context.Context, ep openbanking.Endpoint, token, accountID, consentID string) (json.RawMessage, error) {
			return nil, errors.New("balance endpoint down")
		},
	}
	accounts := &MockAccountRepo{
		UpsertFunc: func(ctx context.Context, params account.UpsertParams) (*account.Account, error) {
			upserted = append(upserted, params)
			return &account.Account{ID: 1, UserID: params.UserID, BankCode: params.BankCode, AccountID: params.AccountID, IsActive: true}, nil
		},
	}
	agg := newTestAggregator(client, &MockConsentRepo{}, &MockLinkRepo{}, accounts)

	result := agg.SyncBank(context.Background(), 1, "vbank")
	if !result.Success {
		t.Fatalf("sync failed: %v", result.Error)
	}
	if len(upserted) != 1 {
		t.Fatalf("got %d upserts, want 1", len(upserted))
	}
	if upserted[0].CurrentBalance != nil || upserted[0].AvailableBalance != nil {
		t.Error("balances should stay unset when the balance fetch fails")
	}
}

func TestSyncBank_DeactivatesMissingAccounts(t *testing.T) {
	var gotPresent []string
	client := &MockBankClient{
		GetAccountsFunc: func(ctx context.Context, ep openbanking.Endpoint, token, bankUserID, consentID string) (json.RawMessage, error) {
			return json.RawMessage(`{"accounts":[{"account_id":"acc-1"},{"account_id":"acc-2"}]}`), nil
		},
	}
	accounts := &MockAccountRepo{
		MarkMissingInactiveFunc: func(ctx context.Context, userID int64, bankCode string, presentIDs []string) (int64, error) {
			gotPresent = presentIDs
			return 1, nil
		},
	}
	agg := newTestAggregator(client, &MockConsentRepo{}, &MockLinkRepo{}, accounts)

	result := agg.SyncBank(context.Background(), 1, "vbank")
	if !result.Success {
		t.Fatalf("sync failed: %v", result.Error)
	}
	if len(gotPresent) != 2 || gotPresent[0] != "acc-1" || gotPresent[1] != "acc-2" {
		t.Errorf("presentIDs = %v, want [acc-1 acc-2]", gotPresent)
	}
}

func TestSyncBank_BalancesLandOnAccount(t *testing.T) {
	var upserted []account.UpsertParams
	client := &MockBankClient{
		GetBalancesFunc: func(ctx context.Context, ep openbanking.Endpoint, token, accountID, consentID string) (json.RawMessage, error) {
			return json.RawMessage(`{"balances":[{"type":"interimAvailable","amount":{"amount":"150.00","currency":"RUB"}},{"type":"closingBooked","amount":{"amount":"120.00","currency":"RUB"}}]}`), nil
		},
	}
	accounts := &MockAccountRepo{
		UpsertFunc: func(ctx context.Context, params account.UpsertParams) (*account.Account, error) {
			upserted = append(upserted, params)
			return &account.Account{ID: 1, UserID: params.UserID, AccountID: params.AccountID, IsActive: true}, nil
		},
	}
	agg := newTestAggregator(client, &MockConsentRepo{}, &MockLinkRepo{}, accounts)

	result := agg.SyncBank(context.Background(), 1, "vbank")
	if !result.Success {
		t.Fatalf("sync failed: %v", result.Error)
	}
	if len(upserted) != 1 {
		t.Fatalf("got %d upserts, want 1", len(upserted))
	}
	if upserted[0].AvailableBalance == nil || upserted[0].AvailableBalance.String() != "150" {
		t.Errorf("AvailableBalance = %v, want 150", upserted[0].AvailableBalance)
	}
	if upserted[0].CurrentBalance == nil || upserted[0].CurrentBalance.String() != "120" {
		t.Errorf("CurrentBalance = %v, want 120", upserted[0].CurrentBalance)
	}
	if upserted[0].BalanceUpdatedAt == nil {
		t.Error("BalanceUpdatedAt should be set when balances arrive")
	}
}
