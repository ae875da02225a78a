// Package tokencache implements the Token Cache (spec.md §4.3, C3): a
// fail-soft Redis KV layer fronting Token Lifecycle validation so the hot
// path (every proxied request) does not round-trip storage. Grounded on
// go-redis/v9 usage patterns in the example pack; the key shape and TTL
// rule come from original_source's token_service.py _cache_token/
// _get_cached_token/_remove_cached_token.
package tokencache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Claims is the cached form of an activated token's claims; the Token
// Lifecycle converts it to and from its own tokens.Claims.
type Claims struct {
	UserID   string    `json:"user_id"`
	TokenID  string    `json:"token_id"`
	Duration int       `json:"duration_hours"`
	Scope    string    `json:"scope"`
	Expiry   time.Time `json:"expiry"`
}

// Cache is the advisory token cache. Every method is fail-soft: a Redis
// error is logged and treated as a cache miss / no-op, never propagated.
type Cache struct {
	rdb *redis.Client
	log zerolog.Logger
}

func New(rdb *redis.Client, log zerolog.Logger) *Cache {
	return &Cache{rdb: rdb, log: log.With().Str("component", "tokencache").Logger()}
}

func cacheKey(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return "active_token:" + hex.EncodeToString(sum[:])
}

// Get returns the cached claims for secret, or (nil, false) on a miss or
// any cache error. The caller must still validate Expiry against its own
// clock — a hit is not definitive (defense against clock skew between
// producers, spec.md §4.3).
func (c *Cache) Get(ctx context.Context, secret string) (*Claims, bool) {
	raw, err := c.rdb.Get(ctx, cacheKey(secret)).Result()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn().Err(err).Msg("token cache get failed, falling back to storage")
		}
		return nil, false
	}
	var claims Claims
	if err := json.Unmarshal([]byte(raw), &claims); err != nil {
		c.log.Warn().Err(err).Msg("token cache entry unmarshal failed")
		return nil, false
	}
	return &claims, true
}

// Set upserts claims with a TTL equal to the token's remaining validity.
// Only activated tokens should ever be cached (spec.md §4.3).
func (c *Cache) Set(ctx context.Context, secret string, claims Claims, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	raw, err := json.Marshal(claims)
	if err != nil {
		c.log.Warn().Err(err).Msg("token cache entry marshal failed")
		return
	}
	if err := c.rdb.Set(ctx, cacheKey(secret), raw, ttl).Err(); err != nil {
		c.log.Warn().Err(err).Msg("token cache set failed")
	}
}

// Evict deletes the cache entry for secret, used on revoke or discovered
// expiry.
func (c *Cache) Evict(ctx context.Context, secret string) {
	if err := c.rdb.Del(ctx, cacheKey(secret)).Err(); err != nil {
		c.log.Warn().Err(err).Msg("token cache evict failed")
	}
}
