package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"moneta/internal/domain/user"
)

// UserRepository implements the user.Repository interface for PostgreSQL
type UserRepository struct {
	db *DB
}

func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, name, password_hash, device_token, created_at, updated_at`

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, params user.CreateUserParams) (*user.User, error) {
	query := `
		INSERT INTO users (email, name, password_hash)
		VALUES ($1, $2, $3)
		RETURNING ` + userColumns

	u, err := scanUser(r.db.QueryRowContext(ctx, query, params.Email, params.Name, params.PasswordHash))
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return u, nil
}

// GetByID retrieves a user by ID. Returns nil when not found.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*user.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	u, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// GetByEmail retrieves a user by email. Returns nil when not found.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	u, err := scanUser(r.db.QueryRowContext(ctx, query, email))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return u, nil
}

// List retrieves all users
func (r *UserRepository) List(ctx context.Context) ([]*user.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*user.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpdateDeviceToken sets or clears the user's push notification token
func (r *UserRepository) UpdateDeviceToken(ctx context.Context, userID int64, deviceToken *string) error {
	query := `UPDATE users SET device_token = $2, updated_at = NOW() WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, userID, deviceToken)
	if err != nil {
		return fmt.Errorf("failed to update device token: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return user.ErrUserNotFound
	}
	return nil
}

// ClearDeviceToken removes a dead token from whichever user holds it
func (r *UserRepository) ClearDeviceToken(ctx context.Context, deviceToken string) error {
	query := `UPDATE users SET device_token = NULL, updated_at = NOW() WHERE device_token = $1`

	if _, err := r.db.ExecContext(ctx, query, deviceToken); err != nil {
		return fmt.Errorf("failed to clear device token: %w", err)
	}
	return nil
}

func scanUser(row rowScanner) (*user.User, error) {
	var u user.User
	var deviceToken sql.NullString
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &deviceToken, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if deviceToken.Valid {
		u.DeviceToken = &deviceToken.String
	}
	return &u, nil
}
