package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"tok-ingest/pkg/logger"

	"github.com/redis/go-redis/v9"
)

const DefaultKeyPrefix = "api_cache:"

// QueryCache memoizes upstream API responses in Redis. Every failure is
// logged and treated as a miss so callers never block on the cache.
// A nil *QueryCache is a valid pass-through.
type QueryCache struct {
	redisClient *redis.Client
	prefix      string
	logger      *logger.Logger
}

func NewQueryCache(redisClient *redis.Client, log *logger.Logger) *QueryCache {
	return &QueryCache{
		redisClient: redisClient,
		prefix:      DefaultKeyPrefix,
		logger:      log,
	}
}

// Key is the prefixed sha256 of the endpoint and its params serialized with sorted keys.
func (c *QueryCache) Key(endpoint string, params map[string]string) string {
	return c.prefix + HashKey(endpoint, params)
}

// HashKey is independent of map iteration order: encoding/json writes map keys sorted.
func HashKey(endpoint string, params map[string]string) string {
	if params == nil {
		params = map[string]string{}
	}
	encoded, _ := json.Marshal(params)
	sum := sha256.Sum256([]byte(endpoint + ":" + string(encoded)))
	return hex.EncodeToString(sum[:])
}

// Get decodes a cached value into dest and reports whether it was a hit.
func (c *QueryCache) Get(ctx context.Context, endpoint string, params map[string]string, dest interface{}) bool {
	if c == nil || c.redisClient == nil {
		return false
	}

	key := c.Key(endpoint, params)
	raw, err := c.redisClient.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("[CACHE] Failed to read %s (%s): %v", endpoint, key, err)
		}
		return false
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		c.logger.Warn("[CACHE] Discarding undecodable entry for %s (%s): %v", endpoint, key, err)
		return false
	}
	return true
}

func (c *QueryCache) Put(ctx context.Context, endpoint string, value interface{}, ttl time.Duration, params map[string]string) {
	if c == nil || c.redisClient == nil {
		return
	}

	key := c.Key(endpoint, params)
	encoded, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("[CACHE] Failed to encode value for %s: %v", endpoint, err)
		return
	}
	if err := c.redisClient.Set(ctx, key, encoded, ttl).Err(); err != nil {
		c.logger.Warn("[CACHE] Failed to store %s (%s): %v", endpoint, key, err)
	}
}

func (c *QueryCache) Invalidate(ctx context.Context, endpoint string, params map[string]string) {
	if c == nil || c.redisClient == nil {
		return
	}

	key := c.Key(endpoint, params)
	if err := c.redisClient.Del(ctx, key).Err(); err != nil {
		c.logger.Warn("[CACHE] Failed to invalidate %s (%s): %v", endpoint, key, err)
	}
}

// ClearAll removes every entry under the cache prefix and returns how many were deleted.
func (c *QueryCache) ClearAll(ctx context.Context) int64 {
	if c == nil || c.redisClient == nil {
		return 0
	}

	var deleted int64
	iter := c.redisClient.Scan(ctx, 0, c.prefix+"*", 500).Iterator()
	batch := make([]string, 0, 500)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		n, err := c.redisClient.Del(ctx, batch...).Result()
		if err != nil {
			c.logger.Warn("[CACHE] Failed to delete %d keys: %v", len(batch), err)
		}
		deleted += n
		batch = batch[:0]
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			flush()
		}
	}
	flush()

	if err := iter.Err(); err != nil {
		c.logger.Warn("[CACHE] Failed to scan cache keys: %v", err)
	}

	c.logger.Info("[CACHE] Cleared %d cached API responses", deleted)
	return deleted
}
