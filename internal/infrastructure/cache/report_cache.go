// Package cache provides the report cache backed by redis, with a no-op fallback.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"tpvcore/internal/domain/reports"
	"tpvcore/pkg/logger"
)

// RedisConfig configures the redis connection.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisReportCache stores encoded reports in redis.
type RedisReportCache struct {
	client *redis.Client
}

var _ reports.Cache = (*RedisReportCache)(nil)

// NewRedisReportCache creates a redis client. The connection is lazy; call Ping to check it.
func NewRedisReportCache(cfg RedisConfig) *RedisReportCache {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisReportCache{client: client}
}

// Ping checks the connection.
func (c *RedisReportCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the client.
func (c *RedisReportCache) Close() error {
	return c.client.Close()
}

// Get returns reports.ErrCacheMiss for absent keys.
func (c *RedisReportCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, reports.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

// Set stores value with ttl.
func (c *RedisReportCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete removes keys. Missing keys are not an error.
func (c *RedisReportCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Noop never stores anything.
type Noop struct{}

var _ reports.Cache = Noop{}

func (Noop) Get(context.Context, string) ([]byte, error) { return nil, reports.ErrCacheMiss }

func (Noop) Set(context.Context, string, []byte, time.Duration) error { return nil }

func (Noop) Delete(context.Context, ...string) error { return nil }

// Closer is returned by New to release the cache on shutdown.
type Closer func() error

// New returns a redis cache when addr is set and reachable, otherwise Noop.
func New(ctx context.Context, cfg RedisConfig) (reports.Cache, Closer) {
	if cfg.Addr == "" {
		logger.Info(ctx, "report cache disabled")
		return Noop{}, func() error { return nil }
	}

	c := NewRedisReportCache(cfg)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx); err != nil {
		logger.Warn(ctx, "redis unreachable, report cache disabled", "addr", cfg.Addr, "error", err)
		_ = c.Close()
		return Noop{}, func() error { return nil }
	}
	logger.Info(ctx, "report cache connected", "addr", cfg.Addr, "db", cfg.DB)
	return c, c.Close
}
