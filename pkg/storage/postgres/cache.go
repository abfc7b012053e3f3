package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ResultCache is a Redis-backed cache for serialized search responses.
// Values are opaque bytes; callers own the encoding so the cache stays
// decoupled from response types.
type ResultCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// CacheConfig holds Redis cache configuration.
type CacheConfig struct {
	URL      string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// NewResultCache connects to Redis and verifies the connection.
func NewResultCache(cfg CacheConfig) (*ResultCache, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB > 0 {
		opts.DB = cfg.DB
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "search"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &ResultCache{client: client, prefix: prefix, ttl: ttl}, nil
}

// NewResultCacheWithClient wraps an existing client. Used by tests.
func NewResultCacheWithClient(client *redis.Client, prefix string, ttl time.Duration) *ResultCache {
	if prefix == "" {
		prefix = "search"
	}
	return &ResultCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *ResultCache) key(k string) string {
	return c.prefix + ":" + k
}

// Get returns the cached value for key, or (nil, false, nil) on a miss.
func (c *ResultCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}
	return data, true, nil
}

// Set stores value under key with the configured TTL.
func (c *ResultCache) Set(ctx context.Context, key string, value []byte) error {
	if err := c.client.Set(ctx, c.key(key), value, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Delete removes one cached entry.
func (c *ResultCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.key(key)).Err()
}

// InvalidateAll drops every entry under the cache prefix. Called after
// index rebuilds, when any cached result may be stale.
func (c *ResultCache) InvalidateAll(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+":*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis delete failed: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan failed: %w", err)
	}
	return nil
}

// Close closes the underlying Redis connection.
func (c *ResultCache) Close() error {
	return c.client.Close()
}
