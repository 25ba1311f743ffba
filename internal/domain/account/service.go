package account

import (
	"context"
	"errors"
)

// Service contains the business logic for account read operations
type Service struct {
	repo Repository
}

// NewService creates a new account service
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// GetAccount retrieves an account by ID and verifies user ownership
func (s *Service) GetAccount(ctx context.Context, id int64, userID int64) (*Account, error) {
	acct, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, ErrAccountNotFound
	}

	// Business rule: verify ownership
	if acct.UserID != userID {
		return nil, ErrForbidden
	}

	return acct, nil
}

// ListAccounts retrieves a user's accounts, optionally filtered by bank
func (s *Service) ListAccounts(ctx context.Context, userID int64, bankCode string) ([]*Account, error) {
	if userID <= 0 {
		return nil, errors.New("valid user ID is required")
	}

	if bankCode != "" {
		return s.repo.ListByUserAndBank(ctx, userID, bankCode)
	}
	return s.repo.ListByUserID(ctx, userID)
}
