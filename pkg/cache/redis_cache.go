package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores JSON values in Redis
type Cache interface {
	// Get decodes the value for key into dest; found is false on a miss
	Get(ctx context.Context, kind, key string, dest any) (found bool, err error)
	Set(ctx context.Context, kind, key string, value any) error
	Delete(ctx context.Context, kind, key string) error
	Stats() CacheStats
}

// CacheStats provides cache performance metrics
type CacheStats struct {
	HitRate     float64 `json:"hitRate"`
	TotalHits   int64   `json:"totalHits"`
	TotalMisses int64   `json:"totalMisses"`
	Errors      int64   `json:"errors"`
}

// RedisCache implements Cache on a go-redis client
type RedisCache struct {
	client *redis.Client
	config CacheConfig

	hits   atomic.Int64
	misses atomic.Int64
	errors atomic.Int64
}

// NewRedisCache creates a Redis-backed cache
func NewRedisCache(client *redis.Client, config CacheConfig) *RedisCache {
	return &RedisCache{client: client, config: config}
}

// Get implements Cache
func (r *RedisCache) Get(ctx context.Context, kind, key string, dest any) (bool, error) {
	data, err := r.client.Get(ctx, r.buildKey(kind, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		r.misses.Add(1)
		return false, nil
	}
	if err != nil {
		r.errors.Add(1)
		return false, fmt.Errorf("failed to get %s from cache: %w", kind, err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		r.errors.Add(1)
		return false, fmt.Errorf("failed to unmarshal cached %s: %w", kind, err)
	}

	r.hits.Add(1)
	return true, nil
}

// Set implements Cache
func (r *RedisCache) Set(ctx context.Context, kind, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", kind, err)
	}

	if err := r.client.Set(ctx, r.buildKey(kind, key), data, r.config.TTLFor(kind)).Err(); err != nil {
		r.errors.Add(1)
		return fmt.Errorf("failed to set %s in cache: %w", kind, err)
	}
	return nil
}

// Delete implements Cache
func (r *RedisCache) Delete(ctx context.Context, kind, key string) error {
	return r.client.Del(ctx, r.buildKey(kind, key)).Err()
}

// Stats implements Cache
func (r *RedisCache) Stats() CacheStats {
	hits, misses := r.hits.Load(), r.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return CacheStats{
		HitRate:     hitRate,
		TotalHits:   hits,
		TotalMisses: misses,
		Errors:      r.errors.Load(),
	}
}

// HealthCheck verifies cache connectivity
func (r *RedisCache) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return r.client.Ping(ctx).Err()
}

func (r *RedisCache) buildKey(kind, key string) string {
	return fmt.Sprintf("%s%s:%s", r.config.KeyPrefix, kind, key)
}
