package provider

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	upstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "encore",
		Subsystem: "upstream",
		Name:      "requests_total",
		Help:      "Upstream requests dispatched, by provider and outcome.",
	}, []string{"provider", "outcome"})

	upstreamRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "encore",
		Subsystem: "upstream",
		Name:      "retries_total",
		Help:      "Retries scheduled after a rate-limit response.",
	}, []string{"provider"})

	upstreamQueueWait = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "encore",
		Subsystem: "upstream",
		Name:      "queue_wait_seconds",
		Help:      "Time spent waiting for a slot and the interval limiter.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"provider"})

	upstreamInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "encore",
		Subsystem: "upstream",
		Name:      "in_flight",
		Help:      "Upstream requests currently executing.",
	}, []string{"provider"})
)

func outcomeLabel(err error) string {
	if err == nil {
		return "ok"
	}
	var (
		rl *ErrRateLimited
		nf *ErrNotFound
		iq *ErrInvalidQuery
	)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.As(err, &rl):
		return "rate_limited"
	case errors.As(err, &nf):
		return "not_found"
	case errors.As(err, &iq):
		return "invalid"
	default:
		return "error"
	}
}
