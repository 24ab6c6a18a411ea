package repository

import (
	"context"
	"time"

	"auth-control-plane/backend/internal/session/domain"
)

// Repository defines persistence for sessions. The durable store is the source
// of truth; the cache layer is a derived accelerator maintained elsewhere.
type Repository interface {
	// GetByToken returns the session for token, or nil if not found.
	GetByToken(ctx context.Context, token string) (*domain.Session, error)
	// ListByUser returns the user's sessions ordered by last_use_at ascending
	// (oldest first, the eviction order).
	ListByUser(ctx context.Context, userID string) ([]*domain.Session, error)
	// CreateWithEvictions inserts s and deletes the sessions named by
	// evictTokens in a single transaction; no partial eviction is observable.
	CreateWithEvictions(ctx context.Context, s *domain.Session, evictTokens []string) error
	// UpdateRefresh sets last_refresh_ip and last_use_at for the session.
	UpdateRefresh(ctx context.Context, token, ip string, at time.Time) error
	// TouchLastUse sets last_use_at for the session.
	TouchLastUse(ctx context.Context, token string, at time.Time) error
	// Delete removes the session row; deleting a missing row is not an error.
	Delete(ctx context.Context, token string) error
	// DeleteAllByUser removes all rows for the user and returns how many were deleted.
	DeleteAllByUser(ctx context.Context, userID string) (int64, error)
}
