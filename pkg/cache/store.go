package cache

import (
	"context"
	"errors"
	"time"
)

// DefaultTTL is how long endpoint results stay cached.
const DefaultTTL = 600 * time.Second

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Store is a key/value cache with per-entry expiry.
type Store interface {
	// Get returns the value stored under key.
	// Returns ErrCacheMiss if the key is absent or expired.
	Get(ctx context.Context, key Key) ([]byte, error)

	// Set stores value under key for ttl, replacing any previous value
	// and restarting its expiry.
	Set(ctx context.Context, key Key, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key Key) error
}
