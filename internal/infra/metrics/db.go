package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(dbPoolStats, storageErrorsTotal) }

var (
	dbPoolStats = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "db_pool_stats",
			Help: "Current state of the database connection pool.",
		},
		[]string{"driver", "state"}, // state: 'total', 'idle', 'in_use'
	)

	storageErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storage_errors_total",
			Help: "Storage failures surfaced to callers, by operation.",
		},
		[]string{"op"},
	)
)

func SetDBPoolStats(driver string, total, idle, inUse int32) {
	dbPoolStats.WithLabelValues(driver, "total").Set(float64(total))
	dbPoolStats.WithLabelValues(driver, "idle").Set(float64(idle))
	dbPoolStats.WithLabelValues(driver, "in_use").Set(float64(inUse))
}

func IncStorageError(op string) { storageErrorsTotal.WithLabelValues(norm(op)).Inc() }
