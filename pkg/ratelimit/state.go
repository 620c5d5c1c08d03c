// Package ratelimit rotates a pool of API credentials under a monthly quota
// and a per-minute request window per credential.
package ratelimit

import (
	"time"
)

// Defaults for the RapidAPI scraper plan.
const (
	// DefaultMonthlyLimit is the safe number of requests per key per month.
	DefaultMonthlyLimit = 100

	// DefaultPerMinuteLimit is the number of requests per key per window.
	DefaultPerMinuteLimit = 15

	// DefaultWindow is the length of the sliding per-minute window.
	DefaultWindow = 60 * time.Second

	// DefaultWaitSlack is added to computed waits so the window has
	// certainly cleared when the caller wakes up.
	DefaultWaitSlack = 100 * time.Millisecond
)

// KeyState is the quota state of one credential.
type KeyState int

const (
	// StateAvailable means the key may serve a request now.
	StateAvailable KeyState = iota

	// StateMinuteSaturated means the key's sliding window is full.
	// It becomes Available again once the oldest request leaves the window.
	StateMinuteSaturated

	// StateMonthlyExhausted is terminal: the key is evicted from the pool.
	StateMonthlyExhausted
)

// String returns the state name used in logs and metrics.
func (s KeyState) String() string {
	switch s {
	case StateAvailable:
		return "available"
	case StateMinuteSaturated:
		return "minute_saturated"
	case StateMonthlyExhausted:
		return "monthly_exhausted"
	default:
		return "unknown"
	}
}

// Limits holds the quota configuration shared by all keys.
type Limits struct {
	MonthlyLimit   int
	PerMinuteLimit int
	Window         time.Duration
}

// KeyRecord tracks usage of one credential.
type KeyRecord struct {
	// Credential is the API key itself.
	Credential string

	// MonthlyCount is the number of requests made with this key this month.
	MonthlyCount int

	// Recent holds request timestamps inside the sliding window, oldest first.
	Recent []time.Time
}

// Prune drops timestamps that left the window ending at now.
func (r *KeyRecord) Prune(now time.Time, window time.Duration) {
	keep := 0
	for keep < len(r.Recent) && now.Sub(r.Recent[keep]) >= window {
		keep++
	}
	if keep > 0 {
		r.Recent = append(r.Recent[:0], r.Recent[keep:]...)
	}
}

// State evaluates the key against limits. Call Prune first.
func (r *KeyRecord) State(limits Limits) KeyState {
	switch {
	case r.MonthlyCount >= limits.MonthlyLimit:
		return StateMonthlyExhausted
	case len(r.Recent) >= limits.PerMinuteLimit:
		return StateMinuteSaturated
	default:
		return StateAvailable
	}
}

// FreeAt returns when the oldest request leaves the window.
// Returns the zero time when the window is empty.
func (r *KeyRecord) FreeAt(window time.Duration) time.Time {
	if len(r.Recent) == 0 {
		return time.Time{}
	}
	return r.Recent[0].Add(window)
}

// Record registers a request made at now.
func (r *KeyRecord) Record(now time.Time) {
	r.Recent = append(r.Recent, now)
	r.MonthlyCount++
}
