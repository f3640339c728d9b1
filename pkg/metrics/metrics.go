// Package metrics holds the Prometheus registry shared by the people service.
// Metrics are defined with promauto in the packages that record them (cache,
// dao, client) to keep those packages free of a central dependency; the HTTP
// request metrics are registered by the api package on Registry.
package metrics

import (
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the registerer used for request metrics.
// promauto metrics always land on the default registerer.
var Registry = prometheus.DefaultRegisterer

// Gatherer serves /metrics.
var Gatherer = prometheus.DefaultGatherer

// FamilyNames returns the sorted names of gathered metric families that start with prefix.
func FamilyNames(g prometheus.Gatherer, prefix string) ([]string, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(families))
	for _, mf := range families {
		if strings.HasPrefix(mf.GetName(), prefix) {
			names = append(names, mf.GetName())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - people_cache_hits_total{backend} (Counter): Query cache hits
//   - people_cache_misses_total{backend} (Counter): Query cache misses, expired reads included
//   - people_cache_entries{backend} (Gauge): Current number of stored entries
//   - people_cache_removals_total{backend, reason} (Counter): Removed entries (expired, evicted, invalidated, swept)
//   - people_cache_invalidations_total{backend} (Counter): Whole-cache invalidations
//   - people_cache_errors_total{backend, operation} (Counter): Backend faults
//
// DAO Metrics (pkg/dao):
//   - people_dao_operations_total{operation, outcome} (Counter): Operations by outcome (ok or error kind)
//   - people_dao_operation_duration_seconds{operation} (Histogram): Operation latency
//   - people_dao_cached_lookups_total{column, source} (Counter): Lookups served from cache, storage or a shared query
//   - people_dao_invalidation_failures_total (Counter): Committed writes whose invalidation failed
//
// HTTP Metrics (pkg/api, echoprometheus subsystem people_api):
//   - people_api_requests_total{code, method, host, url} (Counter)
//   - people_api_request_duration_seconds{code, method, host, url} (Histogram)
//   - people_api_request_size_bytes / people_api_response_size_bytes (Histogram)
//
// Client Metrics (pkg/client):
//   - people_client_requests_total{route, status} (Counter)
//   - people_client_request_duration_seconds{route} (Histogram)
//   - people_client_errors_total{class} (Counter): Errors by class (client, server, unavailable, network)
//   - people_client_retries_total{error_class} (Counter)
//   - people_client_retry_backoff_seconds{error_class} (Histogram)
//   - people_client_retry_exhausted_total{error_class} (Counter)
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(people_cache_hits_total[5m])) /
//   (sum(rate(people_cache_hits_total[5m])) + sum(rate(people_cache_misses_total[5m])))
//
//   # Lookups collapsed onto an in-flight query
//   rate(people_dao_cached_lookups_total{source="shared"}[5m])
//
//   # Conflict rate on create
//   rate(people_dao_operations_total{operation="create", outcome="conflict"}[5m])
//
//   # P95 DAO Latency
//   histogram_quantile(0.95, rate(people_dao_operation_duration_seconds_bucket[5m]))
