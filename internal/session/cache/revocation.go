package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"auth-control-plane/backend/internal/session/domain"
)

const revocationKeyPrefix = "rv:"

// RevocationStore writes and checks access-token revocation markers. A marker
// for (userID, tokenRef) means every access token carrying that ref must be
// rejected regardless of its signature and expiry.
type RevocationStore struct {
	rdb       *redis.Client
	accessTTL time.Duration
	offset    time.Duration
	now       func() time.Time
}

func NewRevocationStore(rdb *redis.Client, accessTTL, offset time.Duration) *RevocationStore {
	return &RevocationStore{
		rdb:       rdb,
		accessTTL: accessTTL,
		offset:    offset,
		now:       time.Now,
	}
}

func revocationKey(userID, tokenRef string) string {
	return revocationKeyPrefix + userID + ":" + tokenRef
}

// MarkSessionRevoked writes a marker for the session's token ref. Sessions
// whose newest possible access token already expired more than offset ago
// need no marker and are skipped.
func (s *RevocationStore) MarkSessionRevoked(ctx context.Context, sess *domain.Session) error {
	return s.MarkAllRevoked(ctx, []*domain.Session{sess})
}

// MarkAllRevoked writes markers for all given sessions in one round trip.
func (s *RevocationStore) MarkAllRevoked(ctx context.Context, sessions []*domain.Session) error {
	now := s.now()
	offsetSeconds := int64(s.offset.Seconds())

	type marker struct {
		key string
		ttl time.Duration
	}
	var markers []marker
	for _, sess := range sessions {
		secondsToExpire := SecondsToExpire(sess.LastUseAt, now, s.accessTTL)
		if secondsToExpire <= -offsetSeconds {
			continue
		}
		markers = append(markers, marker{
			key: revocationKey(sess.UserID, TokenRef(sess.Token)),
			ttl: time.Duration(secondsToExpire+offsetSeconds) * time.Second,
		})
	}
	if len(markers) == 0 {
		return nil
	}

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, m := range markers {
			pipe.Set(ctx, m.key, "1", m.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("write revocation markers: %w", err)
	}
	return nil
}

// IsAccessTokenRevoked reports whether a marker exists for (userID, tokenRef).
// A cache failure propagates; callers must not treat it as "not revoked".
func (s *RevocationStore) IsAccessTokenRevoked(ctx context.Context, userID, tokenRef string) (bool, error) {
	n, err := s.rdb.Exists(ctx, revocationKey(userID, tokenRef)).Result()
	if err != nil {
		return false, fmt.Errorf("check revocation marker: %w", err)
	}
	return n > 0, nil
}
