package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sydlexius/encore/internal/workflow"
)

const (
	outcomeOK       = "ok"
	outcomeCanceled = "canceled"
)

var (
	runs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "encore",
		Subsystem: "pipeline",
		Name:      "runs_total",
		Help:      "Pipeline runs by chosen strategy and outcome.",
	}, []string{"strategy", "outcome"})

	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "encore",
		Subsystem: "pipeline",
		Name:      "run_duration_seconds",
		Help:      "Wall time of pipeline runs.",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
	}, []string{"outcome"})

	revalidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "encore",
		Subsystem: "tourcache",
		Name:      "revalidations_total",
		Help:      "Background tour cache revalidations by result.",
	}, []string{"result"})
)

func observeRun(strategy workflow.Strategy, outcome string, start time.Time) {
	s := string(strategy)
	if s == "" {
		s = "none"
	}
	runs.WithLabelValues(s, outcome).Inc()
	runDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}
