package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"auth-control-plane/backend/internal/session/domain"
)

const (
	pointerKeyPrefix = "sp:"
	userKeyPrefix    = "spu:"
)

// Both scripts derive pointer keys from values read inside the script, which
// Redis Cluster's key-declaration rules forbid. The cache store is a single
// node; a cluster deployment would need hash tags grouping a user's keys into
// one slot.

// setPointerScript caches sessionID -> userID and maintains the per-user
// reverse index, evicting the user's previously cached pointer so at most one
// session per user is cached at a time.
var setPointerScript = redis.NewScript(`
local prev = redis.call('GET', KEYS[2])
if prev and prev ~= ARGV[3] then
  redis.call('DEL', ARGV[4] .. prev)
end
redis.call('SET', KEYS[1], ARGV[1], 'EX', ARGV[2])
redis.call('SET', KEYS[2], ARGV[3], 'EX', ARGV[2])
return 1
`)

// removePointerScript deletes a pointer and clears the reverse index entry
// when it still names this session.
var removePointerScript = redis.NewScript(`
local uid = redis.call('GET', KEYS[1])
redis.call('DEL', KEYS[1])
if uid then
  local ukey = ARGV[1] .. uid
  if redis.call('GET', ukey) == ARGV[2] then
    redis.call('DEL', ukey)
  end
end
return 1
`)

// CookieStrategy caches sessions as TTL-bound sessionID -> userID pointers.
type CookieStrategy struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ PointerCache = (*CookieStrategy)(nil)

func NewCookieStrategy(rdb *redis.Client, ttl time.Duration) *CookieStrategy {
	return &CookieStrategy{rdb: rdb, ttl: ttl}
}

func pointerKey(sessionID string) string {
	return pointerKeyPrefix + sessionID
}

func (s *CookieStrategy) Set(ctx context.Context, sessionID, userID string) error {
	keys := []string{pointerKey(sessionID), userKeyPrefix + userID}
	ttlSeconds := strconv.FormatInt(int64(s.ttl.Seconds()), 10)
	err := setPointerScript.Run(ctx, s.rdb, keys, userID, ttlSeconds, sessionID, pointerKeyPrefix).Err()
	if err != nil {
		return fmt.Errorf("cache session pointer: %w", err)
	}
	return nil
}

func (s *CookieStrategy) GetUserID(ctx context.Context, sessionID string) (string, bool, error) {
	userID, err := s.rdb.Get(ctx, pointerKey(sessionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read session pointer: %w", err)
	}
	return userID, true, nil
}

func (s *CookieStrategy) Remove(ctx context.Context, sess *domain.Session) error {
	return s.RemoveByIDs(ctx, []string{sess.Token})
}

func (s *CookieStrategy) RemoveMany(ctx context.Context, sessions []*domain.Session) error {
	ids := make([]string, 0, len(sessions))
	for _, sess := range sessions {
		ids = append(ids, sess.Token)
	}
	return s.RemoveByIDs(ctx, ids)
}

func (s *CookieStrategy) RemoveByIDs(ctx context.Context, sessionIDs []string) error {
	for _, id := range sessionIDs {
		err := removePointerScript.Run(ctx, s.rdb, []string{pointerKey(id)}, userKeyPrefix, id).Err()
		if err != nil {
			return fmt.Errorf("remove session pointer: %w", err)
		}
	}
	return nil
}
