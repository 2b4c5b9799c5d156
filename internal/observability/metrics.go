package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Domain collectors, registered on the default registry next to the HTTP
// middleware metrics and served from /metrics.
var (
	// IndexRebuilds counts persona index builds by result (ok|error).
	IndexRebuilds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "index_rebuilds_total",
			Help: "Total number of persona index rebuilds.",
		},
		[]string{"result"},
	)

	// IndexRebuildDuration records wall time of successful and failed builds.
	IndexRebuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "index_rebuild_duration_seconds",
			Help:    "Duration of persona index rebuilds in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	// IndexPassages is the passage count of the published version per slug.
	IndexPassages = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "index_passages",
			Help: "Number of passages in the published index version.",
		},
		[]string{"slug"},
	)

	// ChatAnswers counts HandleMessage outcomes
	// (ok|replayed|invalid|not_found|no_index|model_error|error).
	ChatAnswers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_answers_total",
			Help: "Total number of persona replies by outcome.",
		},
		[]string{"result"},
	)

	// NotifyEvents counts downstream notifications (sent|failed|dropped).
	NotifyEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_events_total",
			Help: "Total number of reply notifications by outcome.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(IndexRebuilds, IndexRebuildDuration, IndexPassages, ChatAnswers, NotifyEvents)
}
