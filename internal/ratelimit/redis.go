package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"
)

// RedisRateLimiter is a sliding-window limiter backed by one sorted set per user.
type RedisRateLimiter struct {
	client     redis.Cmdable
	rejections metric.Int64Counter
	now        func() time.Time
}

// NewRedisRateLimiter creates a limiter. rejections may be nil.
func NewRedisRateLimiter(client redis.Cmdable, rejections metric.Int64Counter) *RedisRateLimiter {
	return &RedisRateLimiter{
		client:     client,
		rejections: rejections,
		now:        time.Now,
	}
}

// Key returns the redis key holding userID's request timestamps.
func Key(userID string) string {
	return "ratelimit:user:" + userID
}

// Allow records one request for userID and reports whether it fits in limit
// requests per window, plus how many remain.
func (rl *RedisRateLimiter) Allow(ctx context.Context, userID string, limit int, window time.Duration) (bool, int, error) {
	now := rl.now()
	windowStart := now.Add(-window)
	key := Key(userID)

	pipe := rl.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart.UnixMilli(), 10))
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: strconv.FormatInt(now.UnixNano(), 10),
	})
	countCmd := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, 2*window)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("rate limit pipeline: %w", err)
	}

	count, err := countCmd.Result()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit count: %w", err)
	}

	remaining := max(limit-int(count), 0)
	allowed := count <= int64(limit)
	if !allowed && rl.rejections != nil {
		rl.rejections.Add(ctx, 1)
	}
	return allowed, remaining, nil
}
