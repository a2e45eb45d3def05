package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"festsched/internal/model"
)

var (
	eventsByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "festsched_events",
			Help: "Current number of festival events per derived status",
		},
		[]string{"status"},
	)

	mutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "festsched_mutations_total",
			Help: "Admin add/update operations by result",
		},
		[]string{"operation", "result"},
	)

	refreshes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "festsched_refresh_total",
			Help: "Completed status recompute passes",
		},
	)

	transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "festsched_status_transitions_total",
			Help: "Status transitions observed during recompute",
		},
		[]string{"to"},
	)

	refreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "festsched_refresh_duration_seconds",
			Help:    "Duration of a status recompute pass",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		},
	)
)

// SetStatusCounts publishes the per-status event counts.
func SetStatusCounts(counts map[model.Status]int) {
	for _, s := range []model.Status{model.Queued, model.Active, model.Finished} {
		eventsByStatus.WithLabelValues(s.String()).Set(float64(counts[s]))
	}
}

func RecordMutation(operation, result string) {
	mutations.WithLabelValues(operation, result).Inc()
}

// RecordRefresh counts one recompute pass and the transitions it produced.
func RecordRefresh(seconds float64, to []model.Status) {
	refreshes.Inc()
	refreshDuration.Observe(seconds)
	for _, s := range to {
		transitions.WithLabelValues(s.String()).Inc()
	}
}
