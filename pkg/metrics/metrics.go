// Package metrics provides the centralized Prometheus registry for the
// backfill pipeline. All metrics are defined in their owning packages
// (route, ratelimit, routecache, hydrate, backfill) to maintain
// modularity and avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registerer used by the pipeline.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Rate Limit Metrics (pkg/ratelimit):
//   - ratelimit_acquires_total (Counter): Reservations handed out by the limiter
//   - ratelimit_wait_seconds (Histogram): Time spent waiting for a reservation
//
// Resolver Metrics (pkg/route):
//   - osrm_requests_total{status} (Counter): OSRM requests by HTTP status
//   - osrm_request_duration_seconds (Histogram): OSRM request duration
//   - osrm_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//   - osrm_retries_total{error_class} (Counter): Retry attempts by error class
//   - osrm_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - osrm_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Route Cache Metrics (pkg/routecache):
//   - route_cache_entries (Gauge): Entries currently held in the cache
//   - route_cache_load_errors_total (Counter): Unreadable cache files at load
//   - route_cache_saves_total (Counter): Successful cache persists
//
// Hydration Metrics (pkg/hydrate):
//   - hydrate_results_total{source} (Counter): Results merged by source
//   - hydrate_cycles_total (Counter): Completed hydration cycles
//   - hydrate_cycle_duration_seconds (Histogram): Hydration cycle duration
//
// Backfill Metrics (pkg/backfill):
//   - backfill_months_total{outcome} (Counter): Months by outcome (completed, skipped, failed)
//   - backfill_month_duration_seconds (Histogram): Per-month processing duration
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate per cycle
//   sum(rate(hydrate_results_total{source="osrm"}[5m])) /
//   sum(rate(hydrate_results_total[5m]))
//
//   # Resolver Error Rate
//   rate(osrm_errors_total[5m])
//
//   # P95 OSRM Latency
//   histogram_quantile(0.95, rate(osrm_request_duration_seconds_bucket[5m]))
//
//   # Straight-Line Fallback Rate
//   rate(hydrate_results_total{source="fallback_straight_line"}[5m]) /
//   rate(hydrate_results_total[5m])
