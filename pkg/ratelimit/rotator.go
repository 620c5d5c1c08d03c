package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/catalog-api/pkg/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	// ErrNoKeys is returned when the rotator is built without credentials.
	ErrNoKeys = errors.New("no API keys configured")

	// ErrQuotaExhausted is returned once every key hit its monthly limit.
	ErrQuotaExhausted = errors.New("all API keys exhausted their monthly quota")
)

// Prometheus metrics for key rotation.
var (
	keysAvailable = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_ratelimit_keys_available",
		Help: "Number of API keys still in the rotation pool",
	})

	acquisitionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_ratelimit_acquisitions_total",
		Help: "Total number of API keys handed out",
	})

	waitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_ratelimit_waits_total",
		Help: "Total number of times every key was saturated and the caller waited",
	})

	waitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "catalog_ratelimit_wait_seconds",
		Help:    "Time spent waiting for a per-minute window to clear",
		Buckets: []float64{0.1, 1, 5, 15, 30, 60},
	})

	evictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_ratelimit_evictions_total",
		Help: "Total number of API keys evicted after reaching the monthly limit",
	})
)

// Config holds rotator limits.
type Config struct {
	// MonthlyLimit is the number of requests allowed per key per month
	MonthlyLimit int

	// PerMinuteLimit is the number of requests allowed per key per Window
	PerMinuteLimit int

	// Window is the sliding window for PerMinuteLimit
	Window time.Duration

	// WaitSlack is added to computed waits
	WaitSlack time.Duration
}

// DefaultConfig returns the limits of the scraper API plan.
func DefaultConfig() Config {
	return Config{
		MonthlyLimit:   DefaultMonthlyLimit,
		PerMinuteLimit: DefaultPerMinuteLimit,
		Window:         DefaultWindow,
		WaitSlack:      DefaultWaitSlack,
	}
}

// Option customizes a Rotator.
type Option func(*Rotator)

// WithClock sets the time source.
func WithClock(clk clock.Clock) Option {
	return func(r *Rotator) { r.clock = clk }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Rotator) { r.logger = logger }
}

// WithUsageStore persists monthly counts in store.
func WithUsageStore(store UsageStore) Option {
	return func(r *Rotator) { r.usage = store }
}

// Rotator hands out API keys round-robin, skipping keys whose per-minute
// window is full and evicting keys that reached the monthly limit.
type Rotator struct {
	mu     sync.Mutex
	keys   []*KeyRecord
	cursor int

	limits    Limits
	waitSlack time.Duration
	clock     clock.Clock
	logger    zerolog.Logger
	usage     UsageStore
}

// NewRotator creates a rotator over credentials.
// Empty credentials are ignored; duplicates are kept as distinct slots.
func NewRotator(credentials []string, cfg Config, opts ...Option) (*Rotator, error) {
	if cfg.MonthlyLimit < 1 {
		return nil, fmt.Errorf("monthly limit must be >= 1 (got %d)", cfg.MonthlyLimit)
	}
	if cfg.PerMinuteLimit < 1 {
		return nil, fmt.Errorf("per-minute limit must be >= 1 (got %d)", cfg.PerMinuteLimit)
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.WaitSlack < 0 {
		cfg.WaitSlack = 0
	}

	r := &Rotator{
		limits: Limits{
			MonthlyLimit:   cfg.MonthlyLimit,
			PerMinuteLimit: cfg.PerMinuteLimit,
			Window:         cfg.Window,
		},
		waitSlack: cfg.WaitSlack,
		clock:     clock.Real{},
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	for _, cred := range credentials {
		if cred == "" {
			continue
		}
		r.keys = append(r.keys, &KeyRecord{Credential: cred})
	}
	if len(r.keys) == 0 {
		return nil, ErrNoKeys
	}

	keysAvailable.Set(float64(len(r.keys)))
	return r, nil
}

// Restore loads this month's usage for every key from the usage store.
// It is a no-op without a usage store.
func (r *Rotator) Restore(ctx context.Context) error {
	if r.usage == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	month := r.clock.Now()
	for i, rec := range r.keys {
		count, err := r.usage.MonthlyCount(ctx, rec.Credential, month)
		if err != nil {
			return fmt.Errorf("restore usage for key %d: %w", i, err)
		}
		rec.MonthlyCount = count
	}

	r.logger.Info().
		Int("keys", len(r.keys)).
		Msg("Restored monthly key usage")
	return nil
}

// Acquire returns a credential that is under both limits and records its use.
// When every remaining key has a full window it waits for the earliest
// window to clear, without holding the lock, and tries again.
// Returns ErrQuotaExhausted once no key is left.
func (r *Rotator) Acquire(ctx context.Context) (string, error) {
	for {
		r.mu.Lock()
		cred, wait, err := r.tryAcquireLocked()
		r.mu.Unlock()

		if err != nil {
			return "", err
		}

		if cred != "" {
			acquisitionsTotal.Inc()
			r.recordUsage(ctx, cred)
			return cred, nil
		}

		waitsTotal.Inc()
		waitSeconds.Observe(wait.Seconds())
		r.logger.Warn().
			Dur("wait_duration", wait).
			Int("per_minute_limit", r.limits.PerMinuteLimit).
			Msg("All API keys saturated - waiting for window to clear")

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-r.clock.After(wait):
		}
	}
}

// tryAcquireLocked makes one pass over the pool starting at the cursor.
// It returns a credential, or the wait until the earliest window clears
// when every key is saturated. Must be called with r.mu held.
func (r *Rotator) tryAcquireLocked() (string, time.Duration, error) {
	now := r.clock.Now()
	var earliest time.Time

	for checked := 0; checked < len(r.keys); {
		rec := r.keys[r.cursor]
		rec.Prune(now, r.limits.Window)

		switch rec.State(r.limits) {
		case StateMonthlyExhausted:
			r.evictLocked(r.cursor)
			if len(r.keys) == 0 {
				return "", 0, ErrQuotaExhausted
			}
			continue

		case StateMinuteSaturated:
			if free := rec.FreeAt(r.limits.Window); earliest.IsZero() || free.Before(earliest) {
				earliest = free
			}
			r.logger.Debug().
				Int("key_index", r.cursor).
				Int("recent_requests", len(rec.Recent)).
				Msg("API key per-minute window full, rotating")
			r.cursor = (r.cursor + 1) % len(r.keys)
			checked++

		default:
			rec.Record(now)
			r.logger.Debug().
				Int("key_index", r.cursor).
				Int("monthly_count", rec.MonthlyCount).
				Int("recent_requests", len(rec.Recent)).
				Msg("API key acquired")
			r.cursor = (r.cursor + 1) % len(r.keys)
			return rec.Credential, 0, nil
		}
	}

	if len(r.keys) == 0 {
		return "", 0, ErrQuotaExhausted
	}

	return "", earliest.Sub(now) + r.waitSlack, nil
}

// evictLocked removes the key at index i and keeps the cursor on the key
// that followed it.
func (r *Rotator) evictLocked(i int) {
	rec := r.keys[i]
	r.keys = append(r.keys[:i], r.keys[i+1:]...)
	if r.cursor >= len(r.keys) {
		r.cursor = 0
	}

	evictionsTotal.Inc()
	keysAvailable.Set(float64(len(r.keys)))
	r.logger.Warn().
		Int("key_index", i).
		Int("monthly_count", rec.MonthlyCount).
		Int("monthly_limit", r.limits.MonthlyLimit).
		Int("keys_remaining", len(r.keys)).
		Msg("API key reached monthly limit - evicted")
}

func (r *Rotator) recordUsage(ctx context.Context, cred string) {
	if r.usage == nil {
		return
	}
	if err := r.usage.Increment(ctx, cred, r.clock.Now()); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to persist API key usage")
	}
}

// Available returns the number of keys left in the pool.
func (r *Rotator) Available() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.keys)
}

// Snapshot returns a copy of the pool state, in pool order.
func (r *Rotator) Snapshot() []KeyRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]KeyRecord, len(r.keys))
	for i, rec := range r.keys {
		out[i] = KeyRecord{
			Credential:   rec.Credential,
			MonthlyCount: rec.MonthlyCount,
			Recent:       append([]time.Time(nil), rec.Recent...),
		}
	}
	return out
}
