package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// UsageStore persists monthly request counts so quotas survive restarts
// of the ingestion job.
type UsageStore interface {
	// MonthlyCount returns the count recorded for credential in the
	// calendar month containing month.
	MonthlyCount(ctx context.Context, credential string, month time.Time) (int, error)

	// Increment adds one request for credential in the month containing at.
	Increment(ctx context.Context, credential string, at time.Time) error
}

// Redis key prefix for usage counters.
const RedisKeyUsagePrefix = "catalog:ratelimit:monthly"

// usageRetention keeps counters a little longer than the longest month.
const usageRetention = 35 * 24 * time.Hour

// RedisUsageStore keeps monthly counters in Redis.
// Credentials are hashed before they become part of a key.
type RedisUsageStore struct {
	redis *redis.Client
}

// NewRedisUsageStore creates a Redis usage store.
func NewRedisUsageStore(redisClient *redis.Client) *RedisUsageStore {
	return &RedisUsageStore{redis: redisClient}
}

// MonthlyCount implements UsageStore.
func (s *RedisUsageStore) MonthlyCount(ctx context.Context, credential string, month time.Time) (int, error) {
	n, err := s.redis.Get(ctx, UsageKey(credential, month)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get key usage: %w", err)
	}
	return n, nil
}

// Increment implements UsageStore.
func (s *RedisUsageStore) Increment(ctx context.Context, credential string, at time.Time) error {
	key := UsageKey(credential, at)

	pipe := s.redis.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, usageRetention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store key usage in redis: %w", err)
	}
	return nil
}

// UsageKey returns the Redis key of credential's counter for the month of t.
// Format: catalog:ratelimit:monthly:2025-05:<sha256 prefix>
func UsageKey(credential string, t time.Time) string {
	sum := sha256.Sum256([]byte(credential))
	return fmt.Sprintf("%s:%s:%s", RedisKeyUsagePrefix, t.UTC().Format("2006-01"), hex.EncodeToString(sum[:8]))
}
