// Package metrics provides the central Prometheus registry reference for the
// enrichment service. All metrics are defined in their respective packages
// (cache, queue, esri, orchestrate, httpapi) to maintain modularity and avoid
// circular dependencies.
//
// This package documents the available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the service.
// All metrics are automatically registered via promauto in their packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer collects everything registered above for the /metrics endpoint.
var Gatherer = prometheus.DefaultGatherer

// Metrics Documentation
//
// Feature cache (pkg/cache):
//   - feature_cache_hits_total{lookup} (Counter): hits by lookup kind (scoped, latest)
//   - feature_cache_misses_total{lookup} (Counter): misses by lookup kind
//   - feature_cache_writes_total (Counter): feature records written
//   - feature_cache_errors_total{operation} (Counter): store operation errors
//
// Refresh pipeline (pkg/queue):
//   - refresh_enqueued_total (Counter): refresh requests enqueued
//   - refresh_enqueue_errors_total (Counter): enqueue failures
//   - refresh_delivered_total (Counter): requests delivered to the worker
//   - refresh_acked_total (Counter): requests acknowledged after success
//
// Provider (pkg/esri):
//   - enrich_provider_requests_total{operation, outcome} (Counter)
//   - enrich_provider_request_duration_seconds{operation} (Histogram)
//
// Orchestration (pkg/orchestrate):
//   - enrich_requests_total{outcome} (Counter): interactive requests by outcome
//   - refresh_items_total{outcome} (Counter): worker items by outcome
//   - seed_markets_total{outcome} (Counter): seeded markets by outcome
//
// HTTP surface (internal/httpapi):
//   - http_requests_total{route, status} (Counter)
//   - http_request_duration_seconds{route} (Histogram)
//
// Example Prometheus Queries:
//
//   # Cache hit rate
//   sum(rate(feature_cache_hits_total[5m])) /
//   (sum(rate(feature_cache_hits_total[5m])) + sum(rate(feature_cache_misses_total[5m])))
//
//   # Live-call share of interactive traffic
//   rate(enrich_requests_total{freshness="live"}[5m]) /
//   rate(enrich_requests_total[5m])
//
//   # Worker failure rate
//   rate(refresh_items_total{outcome="error"}[5m])
//
//   # P95 provider latency
//   histogram_quantile(0.95, rate(enrich_provider_request_duration_seconds_bucket[5m]))
