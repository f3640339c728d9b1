package dao

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	daoOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "people_dao_operations_total",
		Help: "Total DAO operations by operation and outcome",
	}, []string{"operation", "outcome"}) // outcome: "ok" or an ErrorKind

	daoOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "people_dao_operation_duration_seconds",
		Help:    "DAO operation duration in seconds",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"operation"})

	daoLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "people_dao_cached_lookups_total",
		Help: "Cached lookups by column and source (cache, storage, shared)",
	}, []string{"column", "source"})

	daoInvalidationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "people_dao_invalidation_failures_total",
		Help: "Committed writes whose cache invalidation failed",
	})
)
