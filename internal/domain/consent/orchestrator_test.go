package consent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"moneta/internal/domain/provider"
	"moneta/internal/domain/user"
	"moneta/internal/infrastructure/openbanking"
)

type MockConsentRepo struct {
	GetByUserAndBankFunc func(ctx context.Context, userID int64, bankCode string) (*Consent, error)
	ListByUserIDFunc     func(ctx context.Context, userID int64) ([]*Consent, error)
	ListPendingFunc      func(ctx context.Context) ([]*Consent, error)
	UpsertFunc           func(ctx context.Context, params UpsertParams) (*Consent, error)
	UpdateStatusFunc     func(ctx context.Context, userID int64, bankCode string, status Status) error
	ReplaceConsentIDFunc func(ctx context.Context, userID int64, bankCode, newConsentID string) error
	RetireFunc           func(ctx context.Context, userID int64, bankCode string) error
	RevokeFunc           func(ctx context.Context, userID int64, bankCode string) error
}

func (m *MockConsentRepo) GetByUserAndBank(ctx context.Context, userID int64, bankCode string) (*Consent, error) {
	if m.GetByUserAndBankFunc != nil {
		return m.GetByUserAndBankFunc(ctx, userID, bankCode)
	}
	return nil, nil
}

func (m *MockConsentRepo) ListByUserID(ctx context.Context, userID int64) ([]*Consent, error) {
	if m.ListByUserIDFunc != nil {
		return m.ListByUserIDFunc(ctx, userID)
	}
	return nil, nil
}

func (m *MockConsentRepo) ListPending(ctx context.Context) ([]*Consent, error) {
	if m.ListPendingFunc != nil {
		return m.ListPendingFunc(ctx)
	}
	return nil, nil
}

func (m *MockConsentRepo) Upsert(ctx context.Context, params UpsertParams) (*Consent, error) {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, params)
	}
	return &Consent{
		UserID:       params.UserID,
		BankCode:     params.BankCode,
		ConsentID:    params.ConsentID,
		Status:       params.Status,
		AutoApproved: params.AutoApproved,
		Permissions:  params.Permissions,
		ExpiresAt:    params.ExpiresAt,
	}, nil
}

func (m *MockConsentRepo) UpdateStatus(ctx context.Context, userID int64, bankCode string, status Status) error {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, userID, bankCode, status)
	}
	return nil
}

func (m *MockConsentRepo) ReplaceConsentID(ctx context.Context, userID int64, bankCode, newConsentID string) error {
	if m.ReplaceConsentIDFunc != nil {
		return m.ReplaceConsentIDFunc(ctx, userID, bankCode, newConsentID)
	}
	return nil
}

func (m *MockConsentRepo) Retire(ctx context.Context, userID int64, bankCode string) error {
	if m.RetireFunc != nil {
		return m.RetireFunc(ctx, userID, bankCode)
	}
	return nil
}

func (m *MockConsentRepo) Revoke(ctx context.Context, userID int64, bankCode string) error {
	if m.RevokeFunc != nil {
		return m.RevokeFunc(ctx, userID, bankCode)
	}
	return nil
}

type MockLinkRepo struct {
	GetByUserAndBankFunc func(ctx context.Context, userID int64, bankCode string) (*user.BankLink, error)
}

func (m *MockLinkRepo) GetByUserAndBank(ctx context.Context, userID int64, bankCode string) (*user.BankLink, error) {
	if m.GetByUserAndBankFunc != nil {
		return m.GetByUserAndBankFunc(ctx, userID, bankCode)
	}
	return &user.BankLink{UserID: userID, BankCode: bankCode, BankUserID: "bank-user-1"}, nil
}

func (m *MockLinkRepo) ListByUserID(ctx context.Context, userID int64) ([]*user.BankLink, error) {
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
	return "token", nil
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
	return json.RawMessage(`{"accounts":[]}`), nil
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

type MockProviderRepo struct{}

func (m *MockProviderRepo) GetByCode(ctx context.Context, bankCode string) (*provider.Profile, error) {
	return nil, nil
}

func (m *MockProviderRepo) List(ctx context.Context) ([]*provider.Profile, error) {
	return nil, nil
}

func (m *MockProviderRepo) Upsert(ctx context.Context, p *provider.Profile) (*provider.Profile, error) {
	return p, nil
}

type recordingNotifier struct {
	calls []Status
}

func (n *recordingNotifier) NotifyConsentOutcome(ctx context.Context, userID int64, bankCode string, status Status) {
	n.calls = append(n.calls, status)
}

func testRegistry() *provider.Registry {
	return provider.NewRegistry(&MockProviderRepo{}, nil, provider.Defaults{
		ClientID:           "team24",
		ClientSecret:       "secret",
		RequestingBank:     "team24",
		RequestingBankName: "Moneta",
	})
}

func testConfig() Config {
	return Config{
		Reason:       "Account aggregation",
		Validity:     time.Hour,
		PollInterval: time.Millisecond,
		PollAttempts: 3,
	}
}

func TestRequest_LiveConsentShortCircuits(t *testing.T) {
	future := time.Now().Add(time.Hour)
	repo := &MockConsentRepo{
		GetByUserAndBankFunc: func(ctx context.Context, userID int64, bankCode string) (*Consent, error) {
			return &Consent{UserID: userID, BankCode: bankCode, ConsentID: "consent-1", Status: StatusApproved, ExpiresAt: &future}, nil
		},
	}
	client := &MockBankClient{
		RequestConsentFunc: func(ctx context.Context, ep openbanking.Endpoint, token, bankUserID string, permissions []string, reason string) (*openbanking.ConsentReply, error) {
			t.Error("RequestConsent should not be called for a live consent")
			return nil, nil
		},
	}

	o := NewOrchestrator(testRegistry(), client, repo, &MockLinkRepo{}, nil, testConfig())

	got, err := o.Request(context.Background(), 1, "vbank", nil)
	if err != nil {
		t.Fatalf("Request() failed: %v", err)
	}
	if got.ConsentID != "consent-1" {
		t.Errorf("ConsentID = %q, want consent-1", got.ConsentID)
	}
}

func TestRequest_RetiresOldConsentFirst(t *testing.T) {
	var order []string
	repo := &MockConsentRepo{
		GetByUserAndBankFunc: func(ctx context.Context, userID int64, bankCode string) (*Consent, error) {
			return &Consent{UserID: userID, BankCode: bankCode, ConsentID: "old", Status: StatusRejected}, nil
		},
		RetireFunc: func(ctx context.Context, userID int64, bankCode string) error {
			order = append(order, "retire")
			return nil
		},
	}
	client := &MockBankClient{
		RequestConsentFunc: func(ctx context.Context, ep openbanking.Endpoint, token, bankUserID string, permissions []string, reason string) (*openbanking.ConsentReply, error) {
			order = append(order, "request")
			return &openbanking.ConsentReply{Status: "approved", ConsentID: "new", AutoApproved: true}, nil
		},
	}

	o := NewOrchestrator(testRegistry(), client, repo, &MockLinkRepo{}, nil, testConfig())

	got, err := o.Request(context.Background(), 1, "vbank", nil)
	if err != nil {
		t.Fatalf("Request() failed: %v", err)
	}
	if got.ConsentID != "new" {
		t.Errorf("ConsentID = %q, want new", got.ConsentID)
	}
	if len(order) != 2 || order[0] != "retire" || order[1] != "request" {
		t.Errorf("operation order = %v, want [retire request]", order)
	}
}

func TestRequest_LinkMissing(t *testing.T) {
	links := &MockLinkRepo{
		GetByUserAndBankFunc: func(ctx context.Context, userID int64, bankCode string) (*user.BankLink, error) {
			return nil, nil
		},
	}

	o := NewOrchestrator(testRegistry(), &MockBankClient{}, &MockConsentRepo{}, links, nil, testConfig())

	_, err := o.Request(context.Background(), 1, "vbank", nil)
	if !errors.Is(err, user.ErrLinkMissing) {
		t.Errorf("Request() error = %v, want ErrLinkMissing", err)
	}
}

func TestRequest_NoIdentifier(t *testing.T) {
	upserted := false
	repo := &MockConsentRepo{
		UpsertFunc: func(ctx context.Context, params UpsertParams) (*Consent, error) {
			upserted = true
			return nil, nil
		},
	}
	client := &MockBankClient{
		RequestConsentFunc: func(ctx context.Context, ep openbanking.Endpoint, token, bankUserID string, permissions []string, reason string) (*openbanking.ConsentReply, error) {
			return &openbanking.ConsentReply{Status: "pending"}, nil
		},
	}

	o := NewOrchestrator(testRegistry(), client, repo, &MockLinkRepo{}, nil, testConfig())

	_, err := o.Request(context.Background(), 1, "vbank", nil)
	if !errors.Is(err, ErrNoIdentifier) {
		t.Errorf("Request() error = %v, want ErrNoIdentifier", err)
	}
	if upserted {
		t.Error("nothing should be persisted without an identifier")
	}
}

func TestRequest_SwapsInterimID(t *testing.T) {
	var replaced string
	repo := &MockConsentRepo{
		ReplaceConsentIDFunc: func(ctx context.Context, userID int64, bankCode, newConsentID string) error {
			replaced = newConsentID
			return nil
		},
	}
	client := &MockBankClient{
		RequestConsentFunc: func(ctx context.Context, ep openbanking.Endpoint, token, bankUserID string, permissions []string, reason string) (*openbanking.ConsentReply, error) {
			return &openbanking.ConsentReply{Status: "pending", RequestID: "req-123"}, nil
		},
		GetConsentFunc: func(ctx context.Context, ep openbanking.Endpoint, token, consentID string) (*openbanking.ConsentDetails, error) {
			return &openbanking.ConsentDetails{Status: "pending", ConsentID: "consent-456"}, nil
		},
	}

	o := NewOrchestrator(testRegistry(), client, repo, &MockLinkRepo{}, nil, testConfig())

	got, err := o.Request(context.Background(), 1, "vbank", nil)
	if err != nil {
		t.Fatalf("Request() failed: %v", err)
	}
	if replaced != "consent-456" {
		t.Errorf("ReplaceConsentID got %q, want consent-456", replaced)
	}
	if got.ConsentID != "consent-456" {
		t.Errorf("ConsentID = %q, want consent-456", got.ConsentID)
	}
	if got.Status != StatusPending {
		t.Errorf("Status = %s, want pending", got.Status)
	}
}

func TestRequest_ApprovedGetsExpiry(t *testing.T) {
	var stored UpsertParams
	repo := &MockConsentRepo{
		UpsertFunc: func(ctx context.Context, params UpsertParams) (*Consent, error) {
			stored = params
			return &Consent{ConsentID: params.ConsentID, Status: params.Status, ExpiresAt: params.ExpiresAt}, nil
		},
	}

	o := NewOrchestrator(testRegistry(), &MockBankClient{}, repo, &MockLinkRepo{}, nil, testConfig())

	got, err := o.Request(context.Background(), 1, "vbank", nil)
	if err != nil {
		t.Fatalf("Request() failed: %v", err)
	}
	if got.Status != StatusApproved {
		t.Errorf("Status = %s, want approved", got.Status)
	}
	if stored.ExpiresAt == nil {
		t.Error("approved consent should carry an expiry")
	}
	if len(stored.Permissions) != len(DefaultPermissions) {
		t.Errorf("Permissions = %v, want defaults", stored.Permissions)
	}
}

func TestPoll_ApprovedAfterRetries(t *testing.T) {
	attempts := 0
	repo := &MockConsentRepo{
		GetByUserAndBankFunc: func(ctx context.Context, userID int64, bankCode string) (*Consent, error) {
			return &Consent{UserID: userID, BankCode: bankCode, ConsentID: "consent-1", Status: StatusPending}, nil
		},
	}
	client := &MockBankClient{
		GetConsentFunc: func(ctx context.Context, ep openbanking.Endpoint, token, consentID string) (*openbanking.ConsentDetails, error) {
			attempts++
			if attempts < 3 {
				return &openbanking.ConsentDetails{Status: "AwaitingAuthorisation"}, nil
			}
			return &openbanking.ConsentDetails{Status: "Authorised", ConsentID: consentID}, nil
		},
	}
	notifier := &recordingNotifier{}

	o := NewOrchestrator(testRegistry(), client, repo, &MockLinkRepo{}, notifier, testConfig())

	got, err := o.Poll(context.Background(), 1, "vbank")
	if err != nil {
		t.Fatalf("Poll() failed: %v", err)
	}
	if got.Status != StatusApproved {
		t.Errorf("Status = %s, want approved", got.Status)
	}
	if attempts != 3 {
		t.Errorf("provider checked %d times, want 3", attempts)
	}
	if len(notifier.calls) != 1 || notifier.calls[0] != StatusApproved {
		t.Errorf("notifier calls = %v, want [approved]", notifier.calls)
	}
}

func TestPoll_TimeoutKeepsPending(t *testing.T) {
	repo := &MockConsentRepo{
		GetByUserAndBankFunc: func(ctx context.Context, userID int64, bankCode string) (*Consent, error) {
			return &Consent{UserID: userID, BankCode: bankCode, ConsentID: "consent-1", Status: StatusPending}, nil
		},
		UpsertFunc: func(ctx context.Context, params UpsertParams) (*Consent, error) {
			t.Error("no terminal transition should be persisted on timeout")
			return nil, nil
		},
	}
	client := &MockBankClient{
		GetConsentFunc: func(ctx context.Context, ep openbanking.Endpoint, token, consentID string) (*openbanking.ConsentDetails, error) {
			return &openbanking.ConsentDetails{Status: "pending"}, nil
		},
	}

	o := NewOrchestrator(testRegistry(), client, repo, &MockLinkRepo{}, nil, testConfig())

	got, err := o.Poll(context.Background(), 1, "vbank")
	if !errors.Is(err, ErrPollTimeout) {
		t.Fatalf("Poll() error = %v, want ErrPollTimeout", err)
	}
	if got.Status != StatusPending {
		t.Errorf("Status = %s, want pending", got.Status)
	}
}

func TestPoll_ContextCancelled(t *testing.T) {
	repo := &MockConsentRepo{
		GetByUserAndBankFunc: func(ctx context.Context, userID int64, bankCode string) (*Consent, error) {
			return &Consent{UserID: userID, BankCode: bankCode, ConsentID: "consent-1", Status: StatusPending}, nil
		},
	}
	client := &MockBankClient{
		GetConsentFunc: func(ctx context.Context, ep openbanking.Endpoint, token, consentID string) (*openbanking.ConsentDetails, error) {
			return &openbanking.ConsentDetails{Status: "pending"}, nil
		},
	}

	cfg := testConfig()
	cfg.PollInterval = time.Minute

	o := NewOrchestrator(testRegistry(), client, repo, &MockLinkRepo{}, nil, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := o.Poll(ctx, 1, "vbank")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Poll() error = %v, want context.Canceled", err)
	}
}

func TestPoll_NoConsent(t *testing.T) {
	o := NewOrchestrator(testRegistry(), &MockBankClient{}, &MockConsentRepo{}, &MockLinkRepo{}, nil, testConfig())

	_, err := o.Poll(context.Background(), 1, "vbank")
	if !errors.Is(err, ErrNoConsent) {
		t.Errorf("Poll() error = %v, want ErrNoConsent", err)
	}
}

func TestStatus_DowngradesExpired(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	var updatedTo Status
	repo := &MockConsentRepo{
		GetByUserAndBankFunc: func(ctx context.Context, userID int64, bankCode string) (*Consent, error) {
			return &Consent{UserID: userID, BankCode: bankCode, ConsentID: "consent-1", Status: StatusApproved, ExpiresAt: &past}, nil
		},
		UpdateStatusFunc: func(ctx context.Context, userID int64, bankCode string, status Status) error {
			updatedTo = status
			return nil
		},
	}

	o := NewOrchestrator(testRegistry(), &MockBankClient{}, repo, &MockLinkRepo{}, nil, testConfig())

	got, err := o.Status(context.Background(), 1, "vbank")
	if err != nil {
		t.Fatalf("Status() failed: %v", err)
	}
	if got.Status != StatusExpired {
		t.Errorf("Status = %s, want expired", got.Status)
	}
	if updatedTo != StatusExpired {
		t.Errorf("persisted status = %s, want expired", updatedTo)
	}
}

func TestRevoke(t *testing.T) {
	deleted := false
	revoked := false
	repo := &MockConsentRepo{
		GetByUserAndBankFunc: func(ctx context.Context, userID int64, bankCode string) (*Consent, error) {
			return &Consent{UserID: userID, BankCode: bankCode, ConsentID: "consent-1", Status: StatusApproved}, nil
		},
		RevokeFunc: func(ctx context.Context, userID int64, bankCode string) error {
			revoked = true
			return nil
		},
	}
	client := &MockBankClient{
		DeleteConsentFunc: func(ctx context.Context, ep openbanking.Endpoint, token, consentID string) error {
			deleted = true
			return nil
		},
	}

	o := NewOrchestrator(testRegistry(), client, repo, &MockLinkRepo{}, nil, testConfig())

	got, err := o.Revoke(context.Background(), 1, "vbank")
	if err != nil {
		t.Fatalf("Revoke() failed: %v", err)
	}
	if !deleted {
		t.Error("consent should be deleted at the provider")
	}
	if !revoked {
		t.Error("local row should be marked revoked")
	}
	if got.Status != StatusRevoked {
		t.Errorf("Status = %s, want revoked", got.Status)
	}
}

func TestRevoke_ProviderAlreadyForgot(t *testing.T) {
	repo := &MockConsentRepo{
		GetByUserAndBankFunc: func(ctx context.Context, userID int64, bankCode string) (*Consent, error) {
			return &Consent{UserID: userID, BankCode: bankCode, ConsentID: "consent-1", Status: StatusApproved}, nil
		},
	}
	client := &MockBankClient{
		DeleteConsentFunc: func(ctx context.Context, ep openbanking.Endpoint, token, consentID string) error {
			return &openbanking.APIError{Operation: "consent revocation", StatusCode: 404, Body: "not found"}
		},
	}

	o := NewOrchestrator(testRegistry(), client, repo, &MockLinkRepo{}, nil, testConfig())

	got, err := o.Revoke(context.Background(), 1, "vbank")
	if err != nil {
		t.Fatalf("Revoke() failed: %v", err)
	}
	if got.Status != StatusRevoked {
		t.Errorf("Status = %s, want revoked", got.Status)
	}
}

func TestEnsure_PendingChecksProviderOnce(t *testing.T) {
	checks := 0
	repo := &MockConsentRepo{
		GetByUserAndBankFunc: func(ctx context.Context, userID int64, bankCode string) (*Consent, error) {
			return &Consent{UserID: userID, BankCode: bankCode, ConsentID: "consent-1", Status: StatusPending}, nil
		},
	}
	client := &MockBankClient{
		GetConsentFunc: func(ctx context.Context, ep openbanking.Endpoint, token, consentID string) (*openbanking.ConsentDetails, error) {
			checks++
			return &openbanking.ConsentDetails{Status: "Authorised", ConsentID: consentID}, nil
		},
		RequestConsentFunc: func(ctx context.Context, ep openbanking.Endpoint, token, bankUserID string, permissions []string, reason string) (*openbanking.ConsentReply, error) {
			t.Error("pending consent should not trigger a new request")
			return nil, nil
		},
	}

	o := NewOrchestrator(testRegistry(), client, repo, &MockLinkRepo{}, nil, testConfig())

	got, err := o.Ensure(context.Background(), 1, "vbank")
	if err != nil {
		t.Fatalf("Ensure() failed: %v", err)
	}
	if checks != 1 {
		t.Errorf("provider checked %d times, want 1", checks)
	}
	if got.Status != StatusApproved {
		t.Errorf("Status = %s, want approved", got.Status)
	}
}

func TestReconcilePending_ResolvesTerminalRows(t *testing.T) {
	var persisted []UpsertParams
	repo := &MockConsentRepo{
		ListPendingFunc: func(ctx context.Context) ([]*Consent, error) {
			return []*Consent{
				{UserID: 1, BankCode: "vbank", ConsentID: "c1", Status: StatusPending},
				{UserID: 2, BankCode: "vbank", ConsentID: "c2", Status: StatusPending},
			}, nil
		},
		UpsertFunc: func(ctx context.Context, params UpsertParams) (*Consent, error) {
			persisted = append(persisted, params)
			return &Consent{UserID: params.UserID, BankCode: params.BankCode, ConsentID: params.ConsentID, Status: params.Status}, nil
		},
	}
	client := &MockBankClient{
		GetConsentFunc: func(ctx context.Context, ep openbanking.Endpoint, token, consentID string) (*openbanking.ConsentDetails, error) {
			if consentID == "c1" {
				return &openbanking.ConsentDetails{Status: "Authorised", ConsentID: consentID}, nil
			}
			return &openbanking.ConsentDetails{Status: "AwaitingAuthorisation"}, nil
		},
	}
	notifier := &recordingNotifier{}

	o := NewOrchestrator(testRegistry(), client, repo, &MockLinkRepo{}, notifier, testConfig())

	resolved, err := o.ReconcilePending(context.Background())
	if err != nil {
		t.Fatalf("ReconcilePending() failed: %v", err)
	}
	if resolved != 1 {
		t.Errorf("resolved = %d, want 1", resolved)
	}
	if len(persisted) != 1 || persisted[0].UserID != 1 {
		t.Errorf("persisted = %v, want a single row for user 1", persisted)
	}
	if len(notifier.calls) != 1 || notifier.calls[0] != StatusApproved {
		t.Errorf("notifier calls = %v, want [approved]", notifier.calls)
	}
}

func TestReconcilePending_FailingBankSkipsItsRows(t *testing.T) {
	repo := &MockConsentRepo{
		ListPendingFunc: func(ctx context.Context) ([]*Consent, error) {
			return []*Consent{
				{UserID: 1, BankCode: "nobank", ConsentID: "c1", Status: StatusPending},
				{UserID: 2, BankCode: "vbank", ConsentID: "c2", Status: StatusPending},
			}, nil
		},
	}
	client := &MockBankClient{
		GetConsentFunc: func(ctx context.Context, ep openbanking.Endpoint, token, consentID string) (*openbanking.ConsentDetails, error) {
			return &openbanking.ConsentDetails{Status: "Rejected"}, nil
		},
	}

	o := NewOrchestrator(testRegistry(), client, repo, &MockLinkRepo{}, nil, testConfig())

	resolved, err := o.ReconcilePending(context.Background())
	if err != nil {
		t.Fatalf("ReconcilePending() failed: %v", err)
	}
	if resolved != 1 {
		t.Errorf("resolved = %d, want 1 (unknown bank row skipped)", resolved)
	}
}

func TestReconcilePending_ListError(t *testing.T) {
	repo := &MockConsentRepo{
		ListPendingFunc: func(ctx context.Context) ([]*Consent, error) {
			return nil, errors.New("db down")
		},
	}

	o := NewOrchestrator(testRegistry(), &MockBankClient{}, repo, &MockLinkRepo{}, nil, testConfig())

	if _, err := o.ReconcilePending(context.Background()); err == nil {
		t.Error("ReconcilePending() expected error when listing fails")
	}
}

func TestEnsure_RejectedRequestsNew(t *testing.T) {
	requested := false
	repo := &MockConsentRepo{
		GetByUserAndBankFunc: func(ctx context.Context, userID int64, bankCode string) (*Consent, error) {
			return &Consent{UserID: userID, BankCode: bankCode, ConsentID: "old", Status: StatusRejected}, nil
		},
	}
	client := &MockBankClient{
		RequestConsentFunc: func(ctx context.Context, ep openbanking.Endpoint, token, bankUserID string, permissions []string, reason string) (*openbanking.ConsentReply, error) {
			requested = true
			return &openbanking.ConsentReply{Status: "approved", ConsentID: "new", AutoApproved: true}, nil
		},
	}

	o := NewOrchestrator(testRegistry(), client, repo, &MockLinkRepo{}, nil, testConfig())

	got, err := o.Ensure(context.Background(), 1, "vbank")
	if err != nil {
		t.Fatalf("Ensure() failed: %v", err)
	}
	if !requested {
		t.Error("rejected consent should trigger a new request")
	}
	if got.ConsentID != "new" {
		t.Errorf("ConsentID = %q, want new", got.ConsentID)
	}
}
