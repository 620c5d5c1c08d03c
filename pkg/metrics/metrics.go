// Package metrics exposes the Prometheus registry shared by the catalog
// packages. Metrics are defined next to the code that records them
// (cache, catalog stores, ratelimit, lookup, upstream, ingest, server)
// and registered via promauto.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by all packages.
var Registry = prometheus.DefaultRegisterer

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// HTTP (pkg/server):
//   - catalog_http_requests_total{route, status} (Counter)
//   - catalog_http_request_duration_seconds{route} (Histogram)
//
// Cache (pkg/cache):
//   - catalog_cache_hits_total{layer} (Counter)
//   - catalog_cache_misses_total{layer} (Counter)
//   - catalog_cache_entries{layer} (Gauge): in-memory entries
//   - catalog_cache_evictions_total{layer} (Counter): expired entries removed
//   - catalog_cache_errors_total{operation} (Counter)
//
// Store (pkg/store/mongostore):
//   - catalog_store_query_duration_seconds{operation} (Histogram)
//   - catalog_store_query_errors_total{operation} (Counter)
//
// Lookup (pkg/lookup):
//   - catalog_lookup_duration_seconds{command} (Histogram)
//   - catalog_lookup_failures_total{command, reason} (Counter): exit, parse, timeout
//
// Key rotation (pkg/ratelimit):
//   - catalog_ratelimit_keys_available (Gauge)
//   - catalog_ratelimit_acquisitions_total (Counter)
//   - catalog_ratelimit_waits_total (Counter)
//   - catalog_ratelimit_wait_seconds (Histogram)
//   - catalog_ratelimit_evictions_total (Counter)
//
// Upstream (pkg/upstream):
//   - catalog_upstream_requests_total{endpoint, status} (Counter)
//   - catalog_upstream_request_duration_seconds{endpoint} (Histogram)
//   - catalog_upstream_errors_total{class} (Counter)
//
// Ingestion (pkg/ingest):
//   - catalog_ingest_runs_total{result} (Counter): ok, partial, failed
//   - catalog_ingest_categories_total{result} (Counter)
//   - catalog_ingest_last_success_timestamp_seconds (Gauge)
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(catalog_cache_hits_total[5m])) /
//   (sum(rate(catalog_cache_hits_total[5m])) + sum(rate(catalog_cache_misses_total[5m])))
//
//   # P95 API Latency per route
//   histogram_quantile(0.95, sum by (le, route) (rate(catalog_http_request_duration_seconds_bucket[5m])))
//
//   # Keys left before the ingestion job stalls
//   catalog_ratelimit_keys_available
//
//   # Stale catalog (no successful ingestion for a day)
//   time() - catalog_ingest_last_success_timestamp_seconds > 86400
