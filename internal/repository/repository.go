package repository

import (
	"context"

	"github.com/medusa2112/HealiosHealth-sub005/internal/domain"
)

// UserRepository defines the persistence operations for users. Emails are
// stored lower-cased; lookups are case-insensitive.
type UserRepository interface {
	Create(ctx context.Context, u *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Update(ctx context.Context, u *domain.User) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	RecordLogin(ctx context.Context, id string) error
	Deactivate(ctx context.Context, id string) error
}
