package batch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	statusOK    = "ok"
	statusError = "error"
)

var (
	evaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fisc",
			Subsystem: "batch",
			Name:      "evaluations_total",
			Help:      "Requests evaluated by system and status",
		},
		[]string{"system", "status"},
	)

	runDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fisc",
			Subsystem: "batch",
			Name:      "run_duration_seconds",
			Help:      "Duration of one batch run against one system",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		},
		[]string{"system"},
	)
)
