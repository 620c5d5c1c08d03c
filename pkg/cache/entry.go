package cache

import (
	"time"
)

// Entry is a cached value together with its expiry.
type Entry struct {
	// Key is the rendered cache key
	Key string `json:"key"`

	// Value is the cached JSON document
	Value []byte `json:"value"`

	// ExpiresAt is when the entry stops being served
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired reports whether the entry is expired at now.
func (e *Entry) IsExpired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// TTL returns the time left until expiry at now.
// Returns 0 if already expired.
func (e *Entry) TTL(now time.Time) time.Duration {
	ttl := e.ExpiresAt.Sub(now)
	if ttl < 0 {
		return 0
	}
	return ttl
}
