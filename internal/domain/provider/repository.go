package provider

import "context"

// Repository defines persistence for provider profiles.
type Repository interface {
	GetByCode(ctx context.Context, bankCode string) (*Profile, error)
	List(ctx context.Context) ([]*Profile, error)
	Upsert(ctx context.Context, profile *Profile) (*Profile, error)
}
