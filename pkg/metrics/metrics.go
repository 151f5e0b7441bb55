// Package metrics documents the Prometheus metrics exposed by the
// Flowdeck client. All metrics are defined in their respective packages
// (client, ratelimit, cache) to maintain modularity and avoid circular
// dependencies.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the client.
// All metrics are automatically registered via promauto in their
// respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - flowdeck_requests_total{path, outcome} (Counter): Requests by path
//     and outcome (success, cache_hit, or the error kind)
//   - flowdeck_request_duration_seconds{path} (Histogram): Request
//     duration by path
//   - flowdeck_errors_total{kind} (Counter): Failed calls by error kind
//
// Retry Metrics (pkg/client):
//   - flowdeck_retries_total{kind} (Counter): Retry attempts by error kind
//   - flowdeck_retry_backoff_seconds{kind} (Histogram): Backoff durations
//   - flowdeck_retry_exhausted_total{kind} (Counter): Calls that exhausted
//     their retry budget
//
// Admission Metrics (pkg/ratelimit):
//   - flowdeck_limiter_queue_depth (Gauge): Operations queued for admission
//   - flowdeck_limiter_in_flight (Gauge): Operations currently executing
//   - flowdeck_limiter_rejections_total (Counter): Queue-full rejections
//   - flowdeck_limiter_evictions_total (Counter): Queue-full evictions
//
// Cache Metrics (pkg/cache):
//   - flowdeck_cache_hits_total (Counter): Response cache hits
//   - flowdeck_cache_misses_total (Counter): Response cache misses
//   - flowdeck_cache_errors_total{operation} (Counter): Cache operation errors
//
// Example Prometheus Queries:
//
//   # Request Error Rate
//   sum(rate(flowdeck_errors_total[5m])) / sum(rate(flowdeck_requests_total[5m]))
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(flowdeck_request_duration_seconds_bucket[5m]))
//
//   # Queue Pressure
//   flowdeck_limiter_queue_depth > 0
//
//   # Cache Hit Rate
//   sum(rate(flowdeck_cache_hits_total[5m])) /
//   (sum(rate(flowdeck_cache_hits_total[5m])) + sum(rate(flowdeck_cache_misses_total[5m])))
