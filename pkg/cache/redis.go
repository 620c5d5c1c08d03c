package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Sternrassler/catalog-api/pkg/clock"
	"github.com/redis/go-redis/v9"
)

const layerRedis = "redis"

// RedisStore is a Store backed by Redis.
// Redis expires keys on its own; the stored ExpiresAt is checked as well so
// reads never return a value past its ttl.
type RedisStore struct {
	redis *redis.Client
	clock clock.Clock
}

// NewRedisStore creates a Redis backed store.
func NewRedisStore(redisClient *redis.Client, clk clock.Clock) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &RedisStore{
		redis: redisClient,
		clock: clk,
	}
}

// Get retrieves the value stored under key.
// Returns ErrCacheMiss if the key doesn't exist or entry is expired.
func (s *RedisStore) Get(ctx context.Context, key Key) ([]byte, error) {
	cacheKey := key.String()

	data, err := s.redis.Get(ctx, cacheKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			CacheMisses.WithLabelValues(layerRedis).Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	if entry.IsExpired(s.clock.Now()) {
		_ = s.Delete(ctx, key)
		CacheEvictions.WithLabelValues(layerRedis).Inc()
		CacheMisses.WithLabelValues(layerRedis).Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues(layerRedis).Inc()
	return entry.Value, nil
}

// Set stores value under key; Redis removes it after ttl.
func (s *RedisStore) Set(ctx context.Context, key Key, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("cache ttl must be positive (got %s)", ttl)
	}

	cacheKey := key.String()
	entry := Entry{
		Key:       cacheKey,
		Value:     value,
		ExpiresAt: s.clock.Now().Add(ttl),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := s.redis.Set(ctx, cacheKey, data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// Delete removes a cache entry.
func (s *RedisStore) Delete(ctx context.Context, key Key) error {
	if err := s.redis.Del(ctx, key.String()).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx).Err()
}
