package ratelimit_test

import (
	"context"
	"os"
	"testing"
	"time"

	"crm-api/internal/ratelimit"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// setupRedis returns a client for REDIS_URL, or for a throwaway container
// when TEST_INTEGRATION is set.
func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	if url := os.Getenv("REDIS_URL"); url != "" {
		opts, err := redis.ParseURL(url)
		require.NoError(t, err)
		client := redis.NewClient(opts)
		t.Cleanup(func() { _ = client.Close() })
		return client
	}
	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("integration test: set TEST_INTEGRATION or REDIS_URL")
	}

	container, err := testcontainers.Run(ctx, "docker.io/redis:7-alpine",
		testcontainers.WithExposedPorts("6379/tcp"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err, "failed to start redis container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	addr, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisRateLimiter_SlidingWindow(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	rejections, err := provider.Meter("test").Int64Counter("rate_limit_rejections_total")
	require.NoError(t, err)

	limiter := ratelimit.NewRedisRateLimiter(client, rejections)
	userID := "user-" + time.Now().Format("150405.000000")
	t.Cleanup(func() { client.Del(ctx, ratelimit.Key(userID)) })

	for i := 1; i <= 3; i++ {
		allowed, remaining, err := limiter.Allow(ctx, userID, 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed, "request %d", i)
		assert.Equal(t, 3-i, remaining)
	}

	allowed, remaining, err := limiter.Allow(ctx, userID, 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Zero(t, remaining)

	ttl, err := client.TTL(ctx, ratelimit.Key(userID)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Minute)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)
	require.Len(t, rm.ScopeMetrics[0].Metrics, 1)
	sum, ok := rm.ScopeMetrics[0].Metrics[0].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(1), sum.DataPoints[0].Value)
}

func TestRedisRateLimiter_WindowExpires(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()

	limiter := ratelimit.NewRedisRateLimiter(client, nil)
	userID := "user-expiry-" + time.Now().Format("150405.000000")
	t.Cleanup(func() { client.Del(ctx, ratelimit.Key(userID)) })

	allowed, _, err := limiter.Allow(ctx, userID, 1, 200*time.Millisecond)
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, _, err = limiter.Allow(ctx, userID, 1, 200*time.Millisecond)
	require.NoError(t, err)
	require.False(t, allowed)

	time.Sleep(300 * time.Millisecond)

	allowed, _, err = limiter.Allow(ctx, userID, 1, 200*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "ratelimit:user:abc", ratelimit.Key("abc"))
}
