package cache

import (
	"context"

	"auth-control-plane/backend/internal/session/domain"
)

// BearerStrategy never caches session pointers; stateless access tokens carry
// their own state. Removal writes revocation markers so outstanding access
// tokens die before their natural expiry. It deliberately does not implement
// PointerCache: pointer operations have no meaning in bearer mode.
type BearerStrategy struct {
	revocations *RevocationStore
}

var _ Strategy = (*BearerStrategy)(nil)

func NewBearerStrategy(revocations *RevocationStore) *BearerStrategy {
	return &BearerStrategy{revocations: revocations}
}

func (s *BearerStrategy) Remove(ctx context.Context, sess *domain.Session) error {
	return s.revocations.MarkSessionRevoked(ctx, sess)
}

func (s *BearerStrategy) RemoveMany(ctx context.Context, sessions []*domain.Session) error {
	return s.revocations.MarkAllRevoked(ctx, sessions)
}
