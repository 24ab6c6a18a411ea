package repository

import (
	"context"

	"auth-control-plane/backend/internal/user/domain"
)

// Repository defines persistence for users as consumed by the session subsystem.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	Exists(ctx context.Context, id string) (bool, error)
	Create(ctx context.Context, u *domain.User) error
}
