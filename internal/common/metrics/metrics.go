// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_refresh_total",
			Help: "Total number of vendor cache refreshes by result",
		},
		[]string{"result"},
	)

	RefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "catalog_refresh_duration_seconds",
			Help: "Duration of vendor cache refreshes in seconds",
		},
	)

	ResolutionRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_resolution_requests_total",
			Help: "Total number of linked record resolution calls by table",
		},
		[]string{"table"},
	)

	ResolutionFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_resolution_failures_total",
			Help: "Total number of failed resolution calls by table",
		},
		[]string{"table"},
	)

	UnresolvedIdentifiers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_unresolved_identifiers_total",
			Help: "Identifiers that never resolved to display values, by field",
		},
		[]string{"field"},
	)

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_cache_hits_total",
			Help: "Vendor cache hits by tier",
		},
		[]string{"tier"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_cache_misses_total",
			Help: "Vendor cache misses by tier",
		},
		[]string{"tier"},
	)
)
