// Package metrics exposes the Prometheus registry shared by the tracker
// client, the cache and the worklog pipeline. The collectors themselves
// live in their packages and register through promauto.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer every package registers its collectors with.
var Registry = prometheus.DefaultRegisterer

// Gatherer collects the families registered with Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the registered metrics in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Names lists the metric families of the service, by owning package.
var Names = map[string][]string{
	"jira": {
		"tracker_requests_total",
		"tracker_request_duration_seconds",
		"tracker_errors_total",
	},
	"ratelimit": {
		"tracker_rate_limit_wait_seconds",
		"tracker_rate_limit_throttles_total",
	},
	"cache": {
		"worklog_cache_hits_total",
		"worklog_cache_misses_total",
		"worklog_cache_writes_total",
		"worklog_cache_errors_total",
	},
	"pagination": {
		"worklog_search_pages_total",
	},
	"worklog": {
		"worklog_stage_duration_seconds",
		"worklog_pipeline_runs_total",
		"worklog_degraded_users_total",
	},
}

// Metrics Documentation
//
// Tracker (pkg/jira):
//   - tracker_requests_total{operation, status} (Counter): Remote calls by operation and HTTP status
//   - tracker_request_duration_seconds{operation} (Histogram): Remote call duration
//   - tracker_errors_total{class} (Counter): Failed calls by class (client, server, network)
//
// Rate limiting (pkg/ratelimit):
//   - tracker_rate_limit_wait_seconds (Histogram): Time spent waiting for a token
//   - tracker_rate_limit_throttles_total (Counter): Calls that had to wait
//
// Cache (pkg/cache):
//   - worklog_cache_hits_total{tier} (Counter)
//   - worklog_cache_misses_total{tier} (Counter)
//   - worklog_cache_writes_total{tier} (Counter)
//   - worklog_cache_errors_total{operation} (Counter): get, set or decode failures
//
// Pipeline (pkg/pagination, pkg/worklog):
//   - worklog_search_pages_total (Counter): Search pages fetched
//   - worklog_stage_duration_seconds{stage} (Histogram): issues, worklogs, users, filter, hierarchy
//   - worklog_pipeline_runs_total{result} (Counter): success, error or invalid
//   - worklog_degraded_users_total (Counter): Users that fell back to username and UTC
//
// Example Prometheus Queries:
//
//   # Cache hit rate of the long tier
//   sum(rate(worklog_cache_hits_total{tier="long"}[5m])) /
//   (sum(rate(worklog_cache_hits_total{tier="long"}[5m])) + sum(rate(worklog_cache_misses_total{tier="long"}[5m])))
//
//   # P95 worklog stage latency
//   histogram_quantile(0.95, sum by (le, stage) (rate(worklog_stage_duration_seconds_bucket[5m])))
