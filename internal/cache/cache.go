package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/therealutkarshpriyadarshi/vidrelay/internal/config"
)

// Cache wraps the Redis connection shared between API instances. It holds
// rate-limit counters only; metadata and media URLs are never stored.
type Cache struct {
	client *redis.Client
}

// NewCache creates a new cache instance
func NewCache(cfg config.RedisConfig) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping checks if Redis is reachable
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// rateLimitScript increments a fixed-window counter and gives it an expiry
// in the same step, so a counter can never outlive its window.
var rateLimitScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if redis.call("PTTL", KEYS[1]) < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// CheckRateLimit counts a hit against key in a fixed window and reports
// whether the count is still within limit.
func (c *Cache) CheckRateLimit(ctx context.Context, key string, limit int64, window time.Duration) (bool, error) {
	rateLimitKey := fmt.Sprintf("ratelimit:%s", key)

	count, err := rateLimitScript.Run(ctx, c.client, []string{rateLimitKey}, window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	return count <= limit, nil
}

// WindowLimiter applies CheckRateLimit with a fixed limit and window
type WindowLimiter struct {
	cache  *Cache
	limit  int64
	window time.Duration
}

// NewWindowLimiter creates a limiter backed by c
func NewWindowLimiter(c *Cache, limit int64, window time.Duration) *WindowLimiter {
	return &WindowLimiter{cache: c, limit: limit, window: window}
}

// Allow reports whether key may make another request in the current window
func (l *WindowLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return l.cache.CheckRateLimit(ctx, key, l.limit, l.window)
}
