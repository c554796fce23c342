// Package metrics provides Prometheus metrics for the media edge.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FetchTotal counts intercepted fetches by strategy and outcome.
	FetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mediaedge",
			Name:      "fetch_total",
			Help:      "Total number of intercepted fetches",
		},
		[]string{"strategy", "outcome"},
	)

	// EvictionsTotal counts media entries removed by eviction passes.
	EvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mediaedge",
			Name:      "evictions_total",
			Help:      "Total number of media cache entries evicted",
		},
	)

	// MessagesTotal counts proactive cache messages by outcome.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mediaedge",
			Name:      "messages_total",
			Help:      "Total number of proactive cache messages",
		},
		[]string{"outcome"},
	)

	// CacheWriteErrorsTotal counts failed cache writes by namespace.
	CacheWriteErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mediaedge",
			Name:      "cache_write_errors_total",
			Help:      "Total number of cache writes that failed",
		},
		[]string{"namespace"},
	)

	// LifecycleTransitions counts cache manager lifecycle transitions by target state.
	LifecycleTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mediaedge",
			Name:      "lifecycle_transitions_total",
			Help:      "Total number of cache manager lifecycle transitions",
		},
		[]string{"state"},
	)

	// FallbackOutcomes counts server-side fallback chains by final state.
	FallbackOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mediaedge",
			Name:      "fallback_outcomes_total",
			Help:      "Total number of fallback chains by final state",
		},
		[]string{"state"},
	)
)

// RecordFetch records an intercepted fetch.
func RecordFetch(strategy, outcome string) {
	FetchTotal.WithLabelValues(strategy, outcome).Inc()
}

// RecordEvictions records entries removed by one eviction pass.
func RecordEvictions(n int) {
	EvictionsTotal.Add(float64(n))
}

// RecordMessage records the outcome of a proactive cache message.
func RecordMessage(outcome string) {
	MessagesTotal.WithLabelValues(outcome).Inc()
}

// RecordCacheWriteError records a failed cache write.
func RecordCacheWriteError(namespace string) {
	CacheWriteErrorsTotal.WithLabelValues(namespace).Inc()
}

// RecordTransition records a lifecycle transition.
func RecordTransition(state string) {
	LifecycleTransitions.WithLabelValues(state).Inc()
}

// RecordFallback records the final state of a fallback chain.
func RecordFallback(state string) {
	FallbackOutcomes.WithLabelValues(state).Inc()
}
