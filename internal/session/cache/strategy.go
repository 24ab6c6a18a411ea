package cache

import (
	"context"

	"auth-control-plane/backend/internal/session/domain"
)

// Strategy covers the removal operations both deployment modes support.
// Removal is invoked with full session records because the bearer variant
// needs lastUseAt to size its revocation markers.
type Strategy interface {
	// Remove invalidates any cached state for the session.
	Remove(ctx context.Context, sess *domain.Session) error
	// RemoveMany invalidates cached state for all given sessions.
	RemoveMany(ctx context.Context, sessions []*domain.Session) error
}

// PointerCache is the cookie-mode extension: sessions are cached as
// sessionID -> userID pointers. Bearer mode does not implement it, so code
// that needs these operations cannot compile against a bearer strategy.
type PointerCache interface {
	Strategy
	// Set caches the session pointer, replacing any previously cached
	// session for the same user.
	Set(ctx context.Context, sessionID, userID string) error
	// GetUserID resolves a cached pointer; ok is false on miss.
	GetUserID(ctx context.Context, sessionID string) (userID string, ok bool, err error)
	// RemoveByIDs invalidates pointers by session id alone.
	RemoveByIDs(ctx context.Context, sessionIDs []string) error
}
