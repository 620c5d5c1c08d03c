package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/catalog-api/pkg/clock"
)

const layerMemory = "memory"

// MemoryStore is an in-process Store.
// Expiry is checked on Get; Sweep removes expired entries in bulk.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*Entry
	clock   clock.Clock
}

// NewMemoryStore creates an empty MemoryStore using clk as time source.
func NewMemoryStore(clk clock.Clock) *MemoryStore {
	if clk == nil {
		clk = clock.Real{}
	}
	return &MemoryStore{
		entries: make(map[string]*Entry),
		clock:   clk,
	}
}

// Get returns the value for key or ErrCacheMiss.
func (m *MemoryStore) Get(_ context.Context, key Key) ([]byte, error) {
	cacheKey := key.String()

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[cacheKey]
	if !ok {
		CacheMisses.WithLabelValues(layerMemory).Inc()
		return nil, ErrCacheMiss
	}

	if entry.IsExpired(m.clock.Now()) {
		delete(m.entries, cacheKey)
		CacheEntries.WithLabelValues(layerMemory).Set(float64(len(m.entries)))
		CacheEvictions.WithLabelValues(layerMemory).Inc()
		CacheMisses.WithLabelValues(layerMemory).Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues(layerMemory).Inc()
	return entry.Value, nil
}

// Set stores value under key for ttl.
func (m *MemoryStore) Set(_ context.Context, key Key, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("cache ttl must be positive (got %s)", ttl)
	}

	cacheKey := key.String()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[cacheKey] = &Entry{
		Key:       cacheKey,
		Value:     value,
		ExpiresAt: m.clock.Now().Add(ttl),
	}
	CacheEntries.WithLabelValues(layerMemory).Set(float64(len(m.entries)))

	return nil
}

// Delete removes key.
func (m *MemoryStore) Delete(_ context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key.String())
	CacheEntries.WithLabelValues(layerMemory).Set(float64(len(m.entries)))
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Sweep removes every expired entry and returns how many were removed.
func (m *MemoryStore) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	removed := 0
	for k, entry := range m.entries {
		if entry.IsExpired(now) {
			delete(m.entries, k)
			removed++
		}
	}

	CacheEntries.WithLabelValues(layerMemory).Set(float64(len(m.entries)))
	CacheEvictions.WithLabelValues(layerMemory).Add(float64(removed))
	return removed
}

// StartSweeper runs Sweep every interval until ctx is done.
func (m *MemoryStore) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Sweep()
			}
		}
	}()
}
