package transaction

import (
	"context"
)

// Repository defines the interface for transaction data access
type Repository interface {
	// Upsert inserts a transaction if it does not exist yet.
	// Returns true when a new row was created.
	Upsert(ctx context.Context, params UpsertParams) (bool, error)
	ListPage(ctx context.Context, userID, accountID int64, q PageQuery) ([]*Transaction, error)
	CountFiltered(ctx context.Context, userID, accountID int64, q PageQuery) (int64, error)
}
