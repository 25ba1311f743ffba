package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"moneta/internal/domain/user"
	"moneta/internal/shared/auth"
)

// MockUserRepo implements user.Repository for testing
type MockUserRepo struct {
	CreateFunc            func(ctx context.Context, params user.CreateUserParams) (*user.User, error)
	GetByIDFunc           func(ctx context.Context, id int64) (*user.User, error)
	GetByEmailFunc        func(ctx context.Context, email string) (*user.User, error)
	ListFunc              func(ctx context.Context) ([]*user.User, error)
	UpdateDeviceTokenFunc func(ctx context.Context, userID int64, deviceToken *string) error
	ClearDeviceTokenFunc  func(ctx context.Context, deviceToken string) error
}

func (m *MockUserRepo) Create(ctx context.Context, params user.CreateUserParams) (*user.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, params)
	}
	return &user.User{ID: 1, Email: params.Email, Name: params.Name, PasswordHash: params.PasswordHash}, nil
}

func (m *MockUserRepo) GetByID(ctx context.Context, id int64) (*user.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockUserRepo) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, nil
}

func (m *MockUserRepo) List(ctx context.Context) ([]*user.User, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx)
	}
	return nil, nil
}

func (m *MockUserRepo) UpdateDeviceToken(ctx context.Context, userID int64, deviceToken *string) error {
	if m.UpdateDeviceTokenFunc != nil {
		return m.UpdateDeviceTokenFunc(ctx, userID, deviceToken)
	}
	return nil
}

func (m *MockUserRepo) ClearDeviceToken(ctx context.Context, deviceToken string) error {
	if m.ClearDeviceTokenFunc != nil {
		return m.ClearDeviceTokenFunc(ctx, deviceToken)
	}
	return nil
}

func postJSON(target string, body any) *http.Request {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestHandleRegister(t *testing.T) {
	tests := []struct {
		name           string
		body           RegisterRequest
		mockRepo       func() *MockUserRepo
		expectedStatus int
	}{
		{
			name: "Success",
			body: RegisterRequest{Email: "new@example.com", Name: "New User", Password: "secret123"},
			mockRepo: func() *MockUserRepo {
				return &MockUserRepo{}
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name: "Email Taken",
			body: RegisterRequest{Email: "taken@example.com", Name: "Someone", Password: "secret123"},
			mockRepo: func() *MockUserRepo {
				return &MockUserRepo{
					GetByEmailFunc: func(ctx context.Context, email string) (*user.User, error) {
						return &user.User{ID: 7, Email: email}, nil
					},
				}
			},
			expectedStatus: http.StatusConflict,
		},
		{
			name:           "Missing Fields",
			body:           RegisterRequest{Email: "new@example.com"},
			mockRepo:       func() *MockUserRepo { return &MockUserRepo{} },
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewAuthHandler(tt.mockRepo(), auth.NewJWT("test-secret"))

			rr := httptest.NewRecorder()
			handler.HandleRegister(rr, postJSON("/api/auth/register", tt.body))

			if rr.Code != tt.expectedStatus {
				t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, tt.expectedStatus)
			}
		})
	}
}

func TestHandleRegister_SetsCookie(t *testing.T) {
	handler := NewAuthHandler(&MockUserRepo{}, auth.NewJWT("test-secret"))

	rr := httptest.NewRecorder()
	handler.HandleRegister(rr, postJSON("/api/auth/register", RegisterRequest{
		Email: "new@example.com", Name: "New User", Password: "secret123",
	}))

	if rr.Code != http.StatusCreated {
		t.Fatalf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusCreated)
	}

	found := false
	for _, c := range rr.Result().Cookies() {
		if c.Name == "access_token" && c.Value != "" && c.HttpOnly {
			found = true
		}
	}
	if !found {
		t.Error("expected HttpOnly access_token cookie to be set")
	}
}

func TestHandleLogin(t *testing.T) {
	hash, err := auth.HashPassword("correct-password")
	if err != nil {
		t.Fatalf("HashPassword() failed: %v", err)
	}

	stored := &user.User{ID: 1, Email: "dev@example.com", Name: "Dev", PasswordHash: hash}

	tests := []struct {
		name           string
		body           LoginRequest
		mockRepo       func() *MockUserRepo
		expectedStatus int
	}{
		{
			name: "Success",
			body: LoginRequest{Email: "dev@example.com", Password: "correct-password"},
			mockRepo: func() *MockUserRepo {
				return &MockUserRepo{
					GetByEmailFunc: func(ctx context.Context, email string) (*user.User, error) {
						return stored, nil
					},
				}
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "Wrong Password",
			body: LoginRequest{Email: "dev@example.com", Password: "wrong"},
			mockRepo: func() *MockUserRepo {
				return &MockUserRepo{
					GetByEmailFunc: func(ctx context.Context, email string) (*user.User, error) {
						return stored, nil
					},
				}
			},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Unknown Email",
			body:           LoginRequest{Email: "ghost@example.com", Password: "whatever"},
			mockRepo:       func() *MockUserRepo { return &MockUserRepo{} },
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "Missing Password",
			body:           LoginRequest{Email: "dev@example.com"},
			mockRepo:       func() *MockUserRepo { return &MockUserRepo{} },
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewAuthHandler(tt.mockRepo(), auth.NewJWT("test-secret"))

			rr := httptest.NewRecorder()
			handler.HandleLogin(rr, postJSON("/api/auth/login", tt.body))

			if rr.Code != tt.expectedStatus {
				t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, tt.expectedStatus)
			}
		})
	}
}

func TestHandleLogout_ClearsCookie(t *testing.T) {
	handler := NewAuthHandler(&MockUserRepo{}, auth.NewJWT("test-secret"))

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	rr := httptest.NewRecorder()
	handler.HandleLogout(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusNoContent)
	}

	cleared := false
	for _, c := range rr.Result().Cookies() {
		if c.Name == "access_token" && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Error("expected access_token cookie to be expired")
	}
}
