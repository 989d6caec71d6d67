package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bissquit/incident-tracker/internal/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"
)

var (
	mttrHours = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Name:      "mttr_hours",
			Help:      "Mean time to resolve in hours",
		},
		[]string{"session"},
	)

	mttaMinutes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Name:      "mtta_minutes",
			Help:      "Mean time to acknowledge in minutes",
		},
		[]string{"session"},
	)

	slaCompliance = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Name:      "sla_compliance_percent",
			Help:      "Share of resolved incidents within their resolution target",
		},
		[]string{"session"},
	)

	activeIncidents = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Name:      "active_incidents",
			Help:      "Incidents that are neither resolved nor closed",
		},
		[]string{"session"},
	)
)

// Snapshotter computes the per-session values the reporter exports.
type Snapshotter interface {
	Snapshot(ctx context.Context, sessionID string) (*Snapshot, error)
}

// ReporterConfig configures the metrics reporter.
type ReporterConfig struct {
	Schedule string
	Sessions []string
}

// Reporter periodically publishes incident metrics as Prometheus gauges.
type Reporter struct {
	source Snapshotter
	config ReporterConfig
	cron   *cron.Cron
	wg     sync.WaitGroup

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewReporter creates a new metrics reporter.
func NewReporter(source Snapshotter, config ReporterConfig) *Reporter {
	if config.Schedule == "" {
		config.Schedule = "@every 1m"
	}
	return &Reporter{
		source: source,
		config: config,
		cron:   cron.New(),
	}
}

// Start publishes once and then on every tick of the schedule.
func (r *Reporter) Start(ctx context.Context) error {
	r.mu.Lock()
	r.ctx, r.cancel = context.WithCancel(ctx)
	runCtx := r.ctx
	r.mu.Unlock()

	if _, err := r.cron.AddFunc(r.config.Schedule, func() { r.RunOnce(runCtx) }); err != nil {
		return fmt.Errorf("schedule metrics reporter: %w", err)
	}

	slog.Info("starting metrics reporter",
		"schedule", r.config.Schedule,
		"sessions", r.config.Sessions,
	)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.RunOnce(runCtx)
	}()
	r.cron.Start()
	return nil
}

// Stop halts the schedule and waits for running jobs, the initial one
// included, to finish.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.mu.Unlock()

	<-r.cron.Stop().Done()
	r.wg.Wait()
	slog.Info("metrics reporter stopped")
}

// RunOnce refreshes the gauges of every configured session.
func (r *Reporter) RunOnce(ctx context.Context) {
	for _, session := range r.config.Sessions {
		if ctx.Err() != nil {
			return
		}
		snap, err := r.source.Snapshot(ctx, session)
		if err != nil {
			slog.Error("failed to compute metrics snapshot", "session", session, "error", err)
			continue
		}
		mttrHours.WithLabelValues(session).Set(snap.MTTRHours)
		mttaMinutes.WithLabelValues(session).Set(snap.MTTAMinutes)
		slaCompliance.WithLabelValues(session).Set(snap.SLACompliancePct)
		activeIncidents.WithLabelValues(session).Set(float64(snap.ActiveIncidents))
	}
}
