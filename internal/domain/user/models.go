package user

import (
	"errors"
	"time"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrLinkMissing  = errors.New("bank link missing")
)

type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	DeviceToken  *string   `json:"-"` // Push notification target, nullable
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type CreateUserParams struct {
	Email        string
	Name         string
	PasswordHash string
}

// BankLink ties a local user to their identity at one provider bank.
// BankUserID is the client_id the provider knows the user by.
type BankLink struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"userId"`
	BankCode   string    `json:"bankCode"`
	BankUserID string    `json:"bankUserId"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}
