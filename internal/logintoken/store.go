// Package logintoken stores short-lived one-time login tokens, handed out
// after the first authentication factor and consumed when the second factor
// completes.
package logintoken

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "lt:"

var ErrUnavailable = errors.New("login token store unavailable")

// Store keeps login tokens in redis with a single TTL.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func New(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

// Create mints a token for the user and stores it for the configured TTL.
func (s *Store) Create(ctx context.Context, userID string) (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	token := hex.EncodeToString(b)

	if err := s.rdb.Set(ctx, keyPrefix+token, userID, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return token, nil
}

// Consume resolves and deletes the token in one step. Returns "" with no
// error when the token is unknown or already used.
func (s *Store) Consume(ctx context.Context, token string) (string, error) {
	userID, err := s.rdb.GetDel(ctx, keyPrefix+token).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return userID, nil
}
