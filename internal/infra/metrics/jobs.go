package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(operationsProcessedTotal, operationDispatchSeconds, operationProgressUpdatesTotal, operationsReclaimedTotal)
}

var (
	operationsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "operations_processed_total",
			Help: "Total number of operations that reached a terminal status, by type and status.",
		},
		[]string{"type", "status"}, // status: 'completed', 'failed'
	)

	operationDispatchSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "operation_dispatch_seconds",
			Help:    "Wall time from claiming an operation to its terminal write.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"type"},
	)

	operationProgressUpdatesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "operation_progress_updates_total",
			Help: "Progress writes reported by handlers.",
		},
	)

	operationsReclaimedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "operations_reclaimed_total",
			Help: "Running operations failed by the stale-operation sweep.",
		},
	)
)

func ObserveOperation(opType, status string, d time.Duration) {
	operationsProcessedTotal.WithLabelValues(norm(opType), norm(status)).Inc()
	operationDispatchSeconds.WithLabelValues(norm(opType)).Observe(d.Seconds())
}

func IncProgressUpdate() { operationProgressUpdatesTotal.Inc() }

func AddReclaimed(n int) { operationsReclaimedTotal.Add(float64(n)) }
