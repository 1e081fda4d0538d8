// Package cache stores fetched match pages in Redis.
package cache

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

const documentKeyPrefix = "vetoscope:doc:"

// RedisCache keeps raw page HTML with a fixed TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache connects to redisURL and verifies the connection.
func NewRedisCache(ctx context.Context, redisURL string, ttl time.Duration) (*RedisCache, error) {
	client, err := Connect(ctx, redisURL)
	if err != nil {
		return nil, err
	}
	return NewRedisCacheFromClient(client, ttl), nil
}

// NewRedisCacheFromClient reuses an existing client.
func NewRedisCacheFromClient(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// Connect parses redisURL and pings the server with a 5s timeout.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "ping redis %s", opt.Addr)
	}
	return client, nil
}

// DocumentKey is the Redis key for a page URL.
func DocumentKey(url string) string {
	return documentKeyPrefix + url
}

// Close closes the Redis connection.
func (rc *RedisCache) Close() error {
	return rc.client.Close()
}

// Client returns the underlying Redis client.
func (rc *RedisCache) Client() *redis.Client {
	return rc.client
}

// HealthCheck pings Redis to verify connection.
func (rc *RedisCache) HealthCheck(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

// GetDocument returns the cached HTML for url. A miss is ("", false, nil).
func (rc *RedisCache) GetDocument(ctx context.Context, url string) (string, bool, error) {
	html, err := rc.client.Get(ctx, DocumentKey(url)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "get %s", DocumentKey(url))
	}
	return html, true, nil
}

// PutDocument stores html for url with the cache TTL.
func (rc *RedisCache) PutDocument(ctx context.Context, url, html string) error {
	if err := rc.client.Set(ctx, DocumentKey(url), html, rc.ttl).Err(); err != nil {
		return errors.Wrapf(err, "set %s", DocumentKey(url))
	}
	return nil
}

// Invalidate removes cached pages.
func (rc *RedisCache) Invalidate(ctx context.Context, urls ...string) error {
	if len(urls) == 0 {
		return nil
	}
	keys := make([]string, len(urls))
	for i, u := range urls {
		keys[i] = DocumentKey(u)
	}
	return rc.client.Del(ctx, keys...).Err()
}
