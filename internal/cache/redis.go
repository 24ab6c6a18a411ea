// Package cache opens the Redis client backing the volatile acceleration layer
// (session pointers, revocation markers, one-time tokens).
package cache

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Open creates a Redis client for the given address and verifies connectivity.
// Caller must call Close on the returned client when done. The cache is a
// disposable accelerator; callers must not treat it as a source of truth.
func Open(ctx context.Context, addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
