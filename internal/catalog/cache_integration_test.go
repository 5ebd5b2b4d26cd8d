//go:build integration

package catalog

import (
	"context"
	"fmt"
	"testing"
	"time"

	"FanatiquePay/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	rc, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, c := context.WithTimeout(context.Background(), 30*time.Second)
		defer c()
		_ = rc.Terminate(ctx)
	})

	host, err := rc.Host(ctx)
	require.NoError(t, err)
	port, err := rc.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	rdb, err := NewRedisClient(ctx, fmt.Sprintf("%s:%s", host, port.Port()), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestCachedAgainstRedis(t *testing.T) {
	rdb := startRedis(t)
	ctx := context.Background()
	next := &countingCatalog{products: map[int64]models.Product{1: beer()}}
	c := NewCached(next, rdb, time.Minute, nil)

	t.Run("second read is served from redis", func(t *testing.T) {
		first, err := c.GetProduct(ctx, 1)
		require.NoError(t, err)
		second, err := c.GetProduct(ctx, 1)
		require.NoError(t, err)

		assert.Equal(t, 1, next.calls)
		assert.Equal(t, first.Name, second.Name)
		assert.True(t, second.ValueReal.Equal(first.ValueReal), second.ValueReal.String())

		ttl, err := rdb.TTL(ctx, cacheKeyPrefix+"1").Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, time.Duration(0))
		assert.LessOrEqual(t, ttl, time.Minute)
	})

	t.Run("corrupt entry is replaced", func(t *testing.T) {
		require.NoError(t, rdb.Set(ctx, cacheKeyPrefix+"1", "{not json", time.Minute).Err())
		calls := next.calls

		p, err := c.GetProduct(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "beer", p.Name)
		assert.Equal(t, calls+1, next.calls)

		raw, err := rdb.Get(ctx, cacheKeyPrefix+"1").Result()
		require.NoError(t, err)
		assert.Contains(t, raw, `"beer"`)
	})

	t.Run("missing products are not cached", func(t *testing.T) {
		_, err := c.GetProduct(ctx, 404)
		require.ErrorIs(t, err, ErrProductNotFound)
		n, err := rdb.Exists(ctx, cacheKeyPrefix+"404").Result()
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}
