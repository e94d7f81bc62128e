package metrics

import "github.com/prometheus/client_golang/prometheus"

// Batch exchange Prometheus metrics.
var (
	BatchExchangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cosmosbatch",
			Subsystem: "emulator",
			Name:      "batch_exchanges_total",
			Help:      "Total batch exchanges by verdict",
		},
		[]string{"verdict"}, // "committed" / "aborted" / "rejected" / "timeout"
	)

	BatchOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cosmosbatch",
			Subsystem: "emulator",
			Name:      "batch_operations_total",
			Help:      "Total operations received in batches",
		},
		[]string{"operation", "status"},
	)

	BatchSizeOperations = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "cosmosbatch",
			Subsystem: "emulator",
			Name:      "batch_size_operations",
			Help:      "Operations per received batch",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100},
		},
	)

	BatchRequestUnits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cosmosbatch",
			Subsystem: "emulator",
			Name:      "batch_request_units_total",
			Help:      "Request units charged for batch exchanges",
		},
	)
)

var batchMetricsRegistered bool

// RegisterBatchMetrics registers Prometheus batch metrics. Must be called once from main.
func RegisterBatchMetrics() {
	if batchMetricsRegistered {
		return
	}
	prometheus.MustRegister(BatchExchangesTotal)
	prometheus.MustRegister(BatchOperationsTotal)
	prometheus.MustRegister(BatchSizeOperations)
	prometheus.MustRegister(BatchRequestUnits)
	batchMetricsRegistered = true
}
