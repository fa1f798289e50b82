package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/procuredesk/tender-evaluation-backend/internal/infrastructure/config"
)

// RedisCache is the read-side cache for derived evaluation reports. A miss
// or a Redis failure is never an error to the caller: the service falls
// back to recomputing from the source of truth.
type RedisCache struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(ctx context.Context, cfg *config.RedisConfig, logger *zap.Logger) (*RedisCache, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	opts.DB = cfg.DB
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &RedisCache{client: client, logger: logger}, nil
}

// NewRedisCacheFromClient wraps an existing client, primarily for tests.
func NewRedisCacheFromClient(client *redis.Client, logger *zap.Logger) *RedisCache {
	return &RedisCache{client: client, logger: logger}
}

// Get returns a cached report body.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return val, true
}

// Set stores a report body with a TTL.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		c.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate drops cached reports.
func (c *RedisCache) Invalidate(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("cache invalidate failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

// HealthCheck verifies Redis is reachable.
func (c *RedisCache) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
