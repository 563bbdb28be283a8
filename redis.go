package oauthx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCacheConfig contains configuration for the Redis claims cache.
type RedisCacheConfig struct {
	// Client is the connected Redis client instance.
	Client *redis.Client

	// KeyPrefix is prepended to every fingerprint key.
	KeyPrefix string
}

// RedisClaimsCache implements ClaimsCache on Redis so multiple API
// instances share one set of cached claims. Entries carry a native TTL in
// addition to the recorded expiry.
type RedisClaimsCache struct {
	client    *redis.Client
	keyPrefix string
}

// redisEntry is the structure stored against each fingerprint.
type redisEntry struct {
	Claims    ApiClaims `json:"claims"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewRedisClaimsCache creates a Redis-backed claims cache. The client is
// expected to be connected already.
func NewRedisClaimsCache(cfg RedisCacheConfig) (*RedisClaimsCache, error) {
	if cfg.Client == nil {
		return nil, errors.New("redis client is required")
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisClaimsCache{client: cfg.Client, keyPrefix: prefix}, nil
}

// Get returns the cached claims for the fingerprint, or nil past expiry.
func (c *RedisClaimsCache) Get(ctx context.Context, fingerprint string) (*ApiClaims, error) {
	key := c.keyPrefix + fingerprint
	payload, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("read claims cache: %w", err)
	}

	var entry redisEntry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return nil, fmt.Errorf("decode cached claims: %w", err)
	}

	// The TTL should have evicted the key already; the recorded expiry is
	// checked regardless so a stale entry is never served.
	if !time.Now().Before(entry.ExpiresAt) {
		c.client.Del(ctx, key)
		return nil, nil
	}
	return &entry.Claims, nil
}

// Put stores the claims until expiry. Entries already past expiry are not
// stored.
func (c *RedisClaimsCache) Put(ctx context.Context, fingerprint string, claims *ApiClaims, expiry time.Time) error {
	if claims == nil {
		return nil
	}
	ttl := time.Until(expiry)
	if ttl <= 0 {
		return nil
	}

	payload, err := json.Marshal(redisEntry{Claims: *claims, ExpiresAt: expiry})
	if err != nil {
		return fmt.Errorf("encode claims for cache: %w", err)
	}
	if err := c.client.Set(ctx, c.keyPrefix+fingerprint, payload, ttl).Err(); err != nil {
		return fmt.Errorf("write claims cache: %w", err)
	}
	return nil
}

var _ ClaimsCache = (*RedisClaimsCache)(nil)
