package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	Mutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simplr_mutations_total",
			Help: "Task mutations by operation and outcome",
		},
		[]string{"op", "outcome"},
	)
	Rollbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simplr_rollbacks_total",
			Help: "Speculative writes rolled back after a failed persistence call",
		},
		[]string{"op"},
	)
	StreamEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simplr_stream_events_total",
			Help: "Change-stream events by type and outcome (applied, stale, malformed)",
		},
		[]string{"type", "outcome"},
	)
	StreamReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "simplr_stream_reconnects_total",
			Help: "Reconnection attempts scheduled by the change-stream subscriber",
		},
	)
	CacheErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simplr_cache_errors_total",
			Help: "Non-fatal local cache failures by operation",
		},
		[]string{"op"},
	)
)

func init() {
	prometheus.MustRegister(Mutations)
	prometheus.MustRegister(Rollbacks)
	prometheus.MustRegister(StreamEvents)
	prometheus.MustRegister(StreamReconnects)
	prometheus.MustRegister(CacheErrors)
}
