package user

import "context"

// Repository defines the interface for user data access
type Repository interface {
	Create(ctx context.Context, params CreateUserParams) (*User, error)
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context) ([]*User, error)
	UpdateDeviceToken(ctx context.Context, userID int64, deviceToken *string) error
	// ClearDeviceToken removes the token from whichever user holds it.
	// Used when the push provider reports the token as dead.
	ClearDeviceToken(ctx context.Context, deviceToken string) error
}

// LinkRepository defines the interface for bank link data access
type LinkRepository interface {
	GetByUserAndBank(ctx context.Context, userID int64, bankCode string) (*BankLink, error)
	ListByUserID(ctx context.Context, userID int64) ([]*BankLink, error)
	Upsert(ctx context.Context, userID int64, bankCode, bankUserID string) (*BankLink, error)
	Delete(ctx context.Context, userID int64, bankCode string) error
	ListLinkedUserIDs(ctx context.Context) ([]int64, error)
}
