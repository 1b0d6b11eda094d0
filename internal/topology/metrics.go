package topology

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "servicemap_topology_operations_total",
			Help: "Number of topology operations by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "servicemap_topology_operation_duration_seconds",
			Help:    "Time taken by topology operations, including the store transaction.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	viewCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "servicemap_topology_view_cache_total",
			Help: "Topology view cache lookups by result.",
		},
		[]string{"result"},
	)

	importedServicesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "servicemap_topology_imported_services_total",
			Help: "Services upserted from topology providers.",
		},
		[]string{"provider"},
	)
)

func init() {
	prometheus.MustRegister(
		operationsTotal,
		operationDuration,
		viewCacheTotal,
		importedServicesTotal,
	)
}

// observe records one finished operation. Caller and data errors count as
// "rejected", everything else as "error".
func observe(op string, start time.Time, err error) {
	operationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	outcome := "ok"
	switch {
	case err == nil:
	case KindOf(err) != KindUnknown:
		outcome = "rejected"
	default:
		outcome = "error"
	}
	operationsTotal.WithLabelValues(op, outcome).Inc()
}
