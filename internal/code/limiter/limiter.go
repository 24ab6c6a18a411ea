// Package limiter implements a fixed-window request limiter on redis, used to
// guard code generation per subject or per IP.
package limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "rl:"

// allowScript bumps the counter and arms its TTL in one step, so a counter
// can never be left behind without an expiry.
var allowScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// Limiter allows up to limit requests per key in each fixed window.
type Limiter struct {
	rdb    *redis.Client
	limit  int64
	window time.Duration
}

func New(rdb *redis.Client, limit int64, window time.Duration) *Limiter {
	return &Limiter{rdb: rdb, limit: limit, window: window}
}

// Allow counts a request against key and reports whether it is within the
// limit. The window starts at the first request and is not sliding.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	n, err := allowScript.Run(ctx, l.rdb, []string{keyPrefix + key}, l.window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("rate limit incr: %w", err)
	}
	return n <= l.limit, nil
}

// Reset clears the window for key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	return l.rdb.Del(ctx, keyPrefix+key).Err()
}
