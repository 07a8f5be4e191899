package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersRecord(t *testing.T) {
	before := testutil.ToFloat64(operationsProcessedTotal.WithLabelValues("weekly_snippet_generation", "completed"))
	ObserveOperation(" Weekly_Snippet_Generation ", "COMPLETED", time.Second)
	after := testutil.ToFloat64(operationsProcessedTotal.WithLabelValues("weekly_snippet_generation", "completed"))
	assert.Equal(t, before+1, after)

	IncSchedulerSkipped("has_snippet")
	assert.GreaterOrEqual(t, testutil.ToFloat64(schedulerSkippedTotal.WithLabelValues("has_snippet")), 1.0)

	SetDBPoolStats("postgres", 10, 7, 3)
	assert.Equal(t, 3.0, testutil.ToFloat64(dbPoolStats.WithLabelValues("postgres", "in_use")))
}

func TestMustRegisterIsIdempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		MustRegister()
		MustRegister()
	})
}
