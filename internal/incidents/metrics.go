package incidents

import (
	"github.com/bissquit/incident-tracker/internal/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	incidentsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "incidents",
			Name:      "created_total",
			Help:      "Total incidents created by severity",
		},
		[]string{"severity"},
	)

	statusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "incidents",
			Name:      "status_transitions_total",
			Help:      "Total incident status transitions",
		},
		[]string{"from", "to"},
	)

	timelineEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "incidents",
			Name:      "timeline_entries_total",
			Help:      "Total timeline entries appended by type",
		},
		[]string{"type"},
	)
)

func recordIncidentCreated(severity string) {
	incidentsCreated.WithLabelValues(severity).Inc()
}

func recordStatusTransition(from, to string) {
	statusTransitions.WithLabelValues(from, to).Inc()
}

func recordTimelineEntry(typ string) {
	timelineEntries.WithLabelValues(typ).Inc()
}
