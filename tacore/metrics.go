package tacore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ta_core_operations_total",
			Help: "Total number of core operations by name and outcome",
		},
		[]string{"operation", "outcome"},
	)

	operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ta_core_operation_duration_seconds",
			Help:    "Core operation duration in seconds by name",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

func init() {
	prometheus.MustRegister(operationsTotal)
	prometheus.MustRegister(operationDuration)
}

// timer is a small stopwatch, matching the teacher's metrics.Timer shape.
type timer struct {
	start time.Time
	op    string
}

func startTimer(op string) *timer {
	return &timer{start: time.Now(), op: op}
}

func (t *timer) observe(err *error) {
	operationDuration.WithLabelValues(t.op).Observe(time.Since(t.start).Seconds())
	outcome := "success"
	if err != nil && *err != nil {
		outcome = "failure"
	}
	operationsTotal.WithLabelValues(t.op, outcome).Inc()
}
