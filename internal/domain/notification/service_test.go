package notification

import (
	"context"
	"testing"

	"moneta/internal/domain/consent"
	"moneta/internal/domain/user"
)

type MockNotificationRepo struct {
	CreateNotificationFunc func(ctx context.Context, params CreateNotificationParams) (*Notification, error)
	ListByUserIDFunc       func(ctx context.Context, userID int64, page, perPage int) ([]*Notification, int, error)
	MarkOpenedFunc         func(ctx context.Context, notificationID string, userID int64) error
}

func (m *MockNotificationRepo) CreateNotification(ctx context.Context, params CreateNotificationParams) (*Notification, error) {
	if m.CreateNotificationFunc != nil {
		return m.CreateNotificationFunc(ctx, params)
	}
	return &Notification{ID: "n-1", UserID: params.UserID, Title: params.Title, Message: params.Message, Category: params.Category}, nil
}

func (m *MockNotificationRepo) ListByUserID(ctx context.Context, userID int64, page, perPage int) ([]*Notification, int, error) {
	if m.ListByUserIDFunc != nil {
		return m.ListByUserIDFunc(ctx, userID, page, perPage)
	}
	return nil, 0, nil
}

func (m *MockNotificationRepo) MarkOpened(ctx context.Context, notificationID string, userID int64) error {
	if m.MarkOpenedFunc != nil {
		return m.MarkOpenedFunc(ctx, notificationID, userID)
	}
	return nil
}

type MockUserRepo struct {
	GetByIDFunc           func(ctx context.Context, id int64) (*user.User, error)
	UpdateDeviceTokenFunc func(ctx context.Context, userID int64, deviceToken *string) error
}

func (m *MockUserRepo) Create(ctx context.Context, params user.CreateUserParams) (*user.User, error) {
	return nil, nil
}

func (m *MockUserRepo) GetByID(ctx context.Context, id int64) (*user.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockUserRepo) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	return nil, nil
}

func (m *MockUserRepo) List(ctx context.Context) ([]*user.User, error) {
	return nil, nil
}

func (m *MockUserRepo) UpdateDeviceToken(ctx context.Context, userID int64, deviceToken *string) error {
	if m.UpdateDeviceTokenFunc != nil {
		return m.UpdateDeviceTokenFunc(ctx, userID, deviceToken)
	}
	return nil
}

func (m *MockUserRepo) ClearDeviceToken(ctx context.Context, deviceToken string) error {
	return nil
}

type MockMessenger struct {
	SendFunc func(ctx context.Context, token string, title, body string, data map[string]string) error
}

func (m *MockMessenger) Send(ctx context.Context, token string, title, body string, data map[string]string) error {
	if m.SendFunc != nil {
		return m.SendFunc(ctx, token, title, body, data)
	}
	return nil
}

func (m *MockMessenger) SendMulticast(ctx context.Context, tokens []string, title, body string, data map[string]string) error {
	return nil
}

func userWithToken(token string) *MockUserRepo {
	return &MockUserRepo{
		GetByIDFunc: func(ctx context.Context, id int64) (*user.User, error) {
			t := token
			u := &user.User{ID: id, Email: "test@example.com"}
			if token != "" {
				u.DeviceToken = &t
			}
			return u, nil
		},
	}
}

func TestNotifyConsentOutcome_ApprovedSendsPush(t *testing.T) {
	var sent []string
	var stored []CreateNotificationParams
	messenger := &MockMessenger{
		SendFunc: func(ctx context.Context, token string, title, body string, data map[string]string) error {
			sent = append(sent, token)
			if data["bank_code"] != "vbank" {
				t.Errorf("bank_code = %q, want vbank", data["bank_code"])
			}
			return nil
		},
	}
	repo := &MockNotificationRepo{
		CreateNotificationFunc: func(ctx context.Context, params CreateNotificationParams) (*Notification, error) {
			stored = append(stored, params)
			return &Notification{ID: "n-1"}, nil
		},
	}
	svc := NewService(repo, userWithToken("fcm-token-1"), messenger, nil)

	svc.NotifyConsentOutcome(context.Background(), 1, "vbank", consent.StatusApproved)

	if len(sent) != 1 || sent[0] != "fcm-token-1" {
		t.Errorf("sent to %v, want [fcm-token-1]", sent)
	}
	if len(stored) != 1 {
		t.Fatalf("stored %d records, want 1", len(stored))
	}
	if stored[0].Category != CategoryConsents {
		t.Errorf("Category = %q, want %q", stored[0].Category, CategoryConsents)
	}
}

func TestNotifyConsentOutcome_PendingIgnored(t *testing.T) {
	repo := &MockNotificationRepo{
		CreateNotificationFunc: func(ctx context.Context, params CreateNotificationParams) (*Notification, error) {
			t.Error("pending status should not produce a notification")
			return nil, nil
		},
	}
	svc := NewService(repo, userWithToken("fcm-token-1"), &MockMessenger{}, nil)

	svc.NotifyConsentOutcome(context.Background(), 1, "vbank", consent.StatusPending)
}

func TestSendToUser_NoDeviceTokenStillStores(t *testing.T) {
	var stored int
	messenger := &MockMessenger{
		SendFunc: func(ctx context.Context, token string, title, body string, data map[string]string) error {
			t.Error("no push should go out without a device token")
			return nil
		},
	}
	repo := &MockNotificationRepo{
		CreateNotificationFunc: func(ctx context.Context, params CreateNotificationParams) (*Notification, error) {
			stored++
			return &Notification{ID: "n-1"}, nil
		},
	}
	svc := NewService(repo, userWithToken(""), messenger, nil)

	if err := svc.SendToUser(context.Background(), 1, "Title", "Body", CategoryGeneral, nil); err != nil {
		t.Fatalf("SendToUser() failed: %v", err)
	}
	if stored != 1 {
		t.Errorf("stored = %d, want 1", stored)
	}
}

func TestSendToUser_InvalidCategory(t *testing.T) {
	svc := NewService(&MockNotificationRepo{}, userWithToken(""), nil, nil)

	if err := svc.SendToUser(context.Background(), 1, "Title", "Body", "bogus", nil); err != ErrInvalidCategory {
		t.Errorf("err = %v, want ErrInvalidCategory", err)
	}
}

func TestRegisterDevice(t *testing.T) {
	var gotToken *string
	users := &MockUserRepo{
		UpdateDeviceTokenFunc: func(ctx context.Context, userID int64, deviceToken *string) error {
			gotToken = deviceToken
			return nil
		},
	}
	svc := NewService(&MockNotificationRepo{}, users, nil, nil)

	if err := svc.RegisterDevice(context.Background(), 1, "fcm-token-1"); err != nil {
		t.Fatalf("RegisterDevice() failed: %v", err)
	}
	if gotToken == nil || *gotToken != "fcm-token-1" {
		t.Errorf("stored token = %v, want fcm-token-1", gotToken)
	}

	if err := svc.RegisterDevice(context.Background(), 1, ""); err != nil {
		t.Fatalf("RegisterDevice(unregister) failed: %v", err)
	}
	if gotToken != nil {
		t.Error("empty token should clear the stored token")
	}
}
