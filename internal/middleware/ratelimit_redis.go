package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is a fixed-window limiter shared by every server instance
type RedisLimiter struct {
	redis   redis.UniversalClient
	prefix  string
	window  time.Duration
	maxReqs int
}

func NewRedisLimiter(client redis.UniversalClient, prefix string, window time.Duration, maxReqs int) *RedisLimiter {
	return &RedisLimiter{redis: client, prefix: prefix, window: window, maxReqs: maxReqs}
}

// Allow counts the hit and sets the window expiry in one transaction. EXPIRE NX
// runs on every hit so a key left without a TTL regains one on the next request.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	k := l.prefix + ":" + key

	var incr *redis.IntCmd
	_, err := l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pipe.ExpireNX(ctx, k, l.window)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("redis incr: %w", err)
	}

	return incr.Val() <= int64(l.maxReqs), nil
}
