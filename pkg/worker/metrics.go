package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_fetches_total",
		Help: "Total intercepted requests by classification",
	}, []string{"classification"})

	fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "worker_fetch_duration_seconds",
		Help:    "Fetch handling duration in seconds by classification",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"classification"})

	fallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_cached_fallbacks_total",
		Help: "Cached responses served after a network failure by strategy",
	}, []string{"strategy"})

	synthesizedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_synthesized_responses_total",
		Help: "Synthesized failure responses by strategy",
	}, []string{"strategy"})

	revalidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_revalidations_total",
		Help: "Background stale-while-revalidate refreshes by outcome",
	}, []string{"outcome"}) // "refreshed", "failed"

	controlMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_control_messages_total",
		Help: "Control channel messages by type",
	}, []string{"type"})
)
