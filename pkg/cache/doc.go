// Package cache provides the TTL cache shared by the catalog endpoints.
//
// Values are opaque JSON documents stored under deterministic keys built from
// an endpoint namespace and every parameter that affects the result. Two
// backends implement Store:
//
// - MemoryStore: process-local map, expiry evaluated lazily on Get, optional
// background sweep. State is lost on restart.
// - RedisStore: shared Redis backend for multi-instance deployments.
//
// # Basic Usage
//
//	store := cache.NewMemoryStore(clock.Real{})
//
//	key := cache.Key{
//		Namespace: "category",
//		Params: map[string]string{
//			"market": "US",
//			"id":     "0JQ5DAqbMKFQ00XGBls6ym",
//			"page":   "1",
//			"limit":  "5",
//		},
//	}
//
//	data, err := store.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// compute, then
//		_ = store.Set(ctx, key, body, cache.DefaultTTL)
//	}
//
// # Expiry
//
// An entry expires exactly ttl after the Set that wrote it. A later Set on
// the same key overwrites the value and restarts the ttl. Expired entries
// read as ErrCacheMiss and are removed on access.
//
// # Metrics
//
//   - catalog_cache_hits_total{layer} - Cache hits
//   - catalog_cache_misses_total{layer} - Cache misses
//   - catalog_cache_entries{layer="memory"} - Live entries in the memory store
//   - catalog_cache_evictions_total{layer} - Expired entries removed
//   - catalog_cache_errors_total{operation} - Backend errors
package cache
