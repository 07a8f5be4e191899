package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(schedulerTicksTotal, schedulerEnqueuedTotal, schedulerSkippedTotal, schedulerUserErrorsTotal)
}

var (
	schedulerTicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_ticks_total",
			Help: "Scheduler ticks by outcome.",
		},
		[]string{"result"}, // 'ok', 'error', 'locked'
	)

	schedulerEnqueuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scheduler_enqueued_total",
			Help: "Operations created and enqueued by the scheduler.",
		},
	)

	schedulerSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_skipped_total",
			Help: "Users skipped during a tick, by reason.",
		},
		[]string{"reason"}, // 'not_due', 'has_snippet', 'has_operation', 'locked'
	)

	schedulerUserErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scheduler_user_errors_total",
			Help: "Per-user failures isolated during a tick.",
		},
	)
)

func IncSchedulerTick(result string)    { schedulerTicksTotal.WithLabelValues(norm(result)).Inc() }
func IncSchedulerEnqueued()             { schedulerEnqueuedTotal.Inc() }
func IncSchedulerSkipped(reason string) { schedulerSkippedTotal.WithLabelValues(norm(reason)).Inc() }
func IncSchedulerUserError()            { schedulerUserErrorsTotal.Inc() }
