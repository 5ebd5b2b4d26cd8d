package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"FanatiquePay/internal/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const cacheKeyPrefix = "catalog:product:"

// Cached is a read-through Redis cache in front of another Catalog.
// Redis failures degrade to reading the underlying catalog.
type Cached struct {
	Next   Catalog
	Redis  redis.Cmdable
	TTL    time.Duration
	Logger *zap.Logger
}

func NewCached(next Catalog, rdb redis.Cmdable, ttl time.Duration, logger *zap.Logger) *Cached {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cached{Next: next, Redis: rdb, TTL: ttl, Logger: logger}
}

func (c *Cached) GetProduct(ctx context.Context, productID int64) (models.Product, error) {
	key := cacheKeyPrefix + strconv.FormatInt(productID, 10)

	raw, err := c.Redis.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var p models.Product
		if jerr := json.Unmarshal(raw, &p); jerr == nil {
			return p, nil
		}
		c.Logger.Warn("catalog cache entry corrupt", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.Logger.Warn("catalog cache read failed", zap.String("key", key), zap.Error(err))
	}

	p, err := c.Next.GetProduct(ctx, productID)
	if err != nil {
		return models.Product{}, err
	}

	if data, jerr := json.Marshal(p); jerr == nil {
		if serr := c.Redis.Set(ctx, key, data, c.TTL).Err(); serr != nil {
			c.Logger.Warn("catalog cache write failed", zap.String("key", key), zap.Error(serr))
		}
	}
	return p, nil
}

// NewRedisClient returns a client verified with PING.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:            addr,
		Password:        password,
		DB:              db,
		DialTimeout:     3 * time.Second,
		ReadTimeout:     2 * time.Second,
		WriteTimeout:    2 * time.Second,
		PoolSize:        10,
		MinIdleConns:    2,
		MaxRetries:      3,
		MinRetryBackoff: 50 * time.Millisecond,
		MaxRetryBackoff: 500 * time.Millisecond,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
