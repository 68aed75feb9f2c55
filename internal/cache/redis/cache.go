// Package redis stores archive addresses in Redis so several resolver instances share hits.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultKeyPrefix namespaces cache keys.
const DefaultKeyPrefix = "archiver:found:"

// Config configures the Redis cache.
type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// Cache is a Redis-backed archive address cache.
type Cache struct {
	client *goredis.Client
	prefix string
	logger *zap.Logger
}

// New connects to Redis and verifies the connection with PING.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Cache, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewWithClient(client, cfg.KeyPrefix, logger), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *goredis.Client, prefix string, logger *zap.Logger) *Cache {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{client: client, prefix: prefix, logger: logger.Named("redis_cache")}
}

func (c *Cache) key(target string) string {
	return c.prefix + target
}

// Get returns the cached address for target.
func (c *Cache) Get(ctx context.Context, target string) (string, bool, error) {
	val, err := c.client.Get(ctx, c.key(target)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		c.logger.Warn("redis get failed", zap.String("target", target), zap.Error(err))
		return "", false, fmt.Errorf("redis get: %w", err)
	}
	return val, true, nil
}

// Set stores archiveURL for ttl; a non-positive ttl keeps the key without expiry.
func (c *Cache) Set(ctx context.Context, target, archiveURL string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := c.client.Set(ctx, c.key(target), archiveURL, ttl).Err(); err != nil {
		c.logger.Warn("redis set failed", zap.String("target", target), zap.Error(err))
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Ping checks the connection; used for readiness.
func (c *Cache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// Close releases the client.
func (c *Cache) Close() error {
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("close redis: %w", err)
	}
	return nil
}
