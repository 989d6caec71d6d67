package analytics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bissquit/incident-tracker/internal/domain"
	"golang.org/x/sync/errgroup"
)

// Dashboard limits.
const (
	RecentActivityLimit   = 10
	TrendingProblemsLimit = 3
)

// IncidentSource lists every incident of a session.
type IncidentSource interface {
	ListAllIncidents(ctx context.Context, sessionID string) ([]*domain.Incident, error)
}

// TargetSource lists the SLA targets of a session.
type TargetSource interface {
	ListTargets(ctx context.Context, sessionID string) ([]*domain.SLATarget, error)
}

// ActivitySource lists the newest timeline entries of a session.
type ActivitySource interface {
	ListRecentActivity(ctx context.Context, sessionID string, limit int) ([]*domain.ActivityEntry, error)
}

// ProblemSource lists problems ordered by linked incident count.
type ProblemSource interface {
	ListTrendingProblems(ctx context.Context, sessionID string, limit int) ([]*domain.Problem, error)
}

// Service assembles metrics views from the record store.
type Service struct {
	incidents IncidentSource
	targets   TargetSource
	activity  ActivitySource
	problems  ProblemSource
	now       func() time.Time
}

// NewService creates a new analytics service.
func NewService(incidents IncidentSource, targets TargetSource, activity ActivitySource, problems ProblemSource) *Service {
	return &Service{
		incidents: incidents,
		targets:   targets,
		activity:  activity,
		problems:  problems,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the clock used for "today".
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Summary holds the headline metrics.
type Summary struct {
	MTTRHours        float64 `json:"mttr_hours"`
	MTTAMinutes      float64 `json:"mtta_minutes"`
	SLACompliancePct float64 `json:"sla_compliance_pct"`
}

// Compliance is the SLA compliance report.
type Compliance struct {
	OverallCompliancePct float64              `json:"overall_compliance_pct"`
	PerSeverity          []SeverityCompliance `json:"per_severity"`
	ResponsePerSeverity  []ResponseCompliance `json:"response_per_severity"`
}

// ChartEntry is one slice of a dashboard chart.
type ChartEntry struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
	Color string `json:"color"`
}

// Dashboard is the overview of a session.
type Dashboard struct {
	ActiveIncidents     int                     `json:"active_incidents"`
	ResolvedToday       int                     `json:"resolved_today"`
	MTTRHours           float64                 `json:"mttr_hours"`
	MTTAMinutes         float64                 `json:"mtta_minutes"`
	SLACompliancePct    float64                 `json:"sla_compliance_pct"`
	IncidentsBySeverity []ChartEntry            `json:"incidents_by_severity"`
	IncidentsByStatus   []ChartEntry            `json:"incidents_by_status"`
	IncidentsByCategory []ChartEntry            `json:"incidents_by_category"`
	RecentActivity      []*domain.ActivityEntry `json:"recent_activity"`
	TrendingProblems    []*domain.Problem       `json:"trending_problems"`
	OpenIncidents       []*domain.Incident      `json:"open_incidents"`
}

func sessionOrDefault(id string) string {
	if strings.TrimSpace(id) == "" {
		return domain.DefaultSessionID
	}
	return id
}

// load fetches incidents and targets concurrently.
func (s *Service) load(ctx context.Context, sessionID string) ([]*domain.Incident, []*domain.SLATarget, error) {
	var (
		incidents []*domain.Incident
		targets   []*domain.SLATarget
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		incidents, err = s.incidents.ListAllIncidents(gCtx, sessionID)
		return err
	})
	g.Go(func() error {
		var err error
		targets, err = s.targets.ListTargets(gCtx, sessionID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("load metrics inputs: %w", err)
	}
	return incidents, targets, nil
}

// Summary computes MTTR, MTTA and SLA compliance for a session.
func (s *Service) Summary(ctx context.Context, sessionID string) (*Summary, error) {
	incidents, targets, err := s.load(ctx, sessionOrDefault(sessionID))
	if err != nil {
		return nil, err
	}
	return summarize(incidents, targets), nil
}

func summarize(incidents []*domain.Incident, targets []*domain.SLATarget) *Summary {
	return &Summary{
		MTTRHours:        MTTR(incidents),
		MTTAMinutes:      MTTA(incidents),
		SLACompliancePct: SLACompliance(incidents, targets),
	}
}

// Compliance computes overall and per-severity SLA compliance.
func (s *Service) Compliance(ctx context.Context, sessionID string) (*Compliance, error) {
	incidents, targets, err := s.load(ctx, sessionOrDefault(sessionID))
	if err != nil {
		return nil, err
	}
	return &Compliance{
		OverallCompliancePct: SLACompliance(incidents, targets),
		PerSeverity:          SLABreakdown(incidents, targets),
		ResponsePerSeverity:  ResponseBreakdown(incidents, targets),
	}, nil
}

// Dashboard builds the session overview.
func (s *Service) Dashboard(ctx context.Context, sessionID string) (*Dashboard, error) {
	session := sessionOrDefault(sessionID)

	var (
		incidents []*domain.Incident
		targets   []*domain.SLATarget
		activity  []*domain.ActivityEntry
		trending  []*domain.Problem
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		incidents, err = s.incidents.ListAllIncidents(gCtx, session)
		return err
	})
	g.Go(func() error {
		var err error
		targets, err = s.targets.ListTargets(gCtx, session)
		return err
	})
	g.Go(func() error {
		var err error
		activity, err = s.activity.ListRecentActivity(gCtx, session, RecentActivityLimit)
		return err
	})
	g.Go(func() error {
		var err error
		trending, err = s.problems.ListTrendingProblems(gCtx, session, TrendingProblemsLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load dashboard: %w", err)
	}

	if activity == nil {
		activity = make([]*domain.ActivityEntry, 0)
	}
	if trending == nil {
		trending = make([]*domain.Problem, 0)
	}

	summary := summarize(incidents, targets)
	open := OpenIncidents(incidents)

	return &Dashboard{
		ActiveIncidents:     len(open),
		ResolvedToday:       ResolvedOn(incidents, s.now()),
		MTTRHours:           summary.MTTRHours,
		MTTAMinutes:         summary.MTTAMinutes,
		SLACompliancePct:    summary.SLACompliancePct,
		IncidentsBySeverity: SeverityChart(incidents),
		IncidentsByStatus:   StatusChart(incidents),
		IncidentsByCategory: CategoryChart(incidents),
		RecentActivity:      activity,
		TrendingProblems:    trending,
		OpenIncidents:       open,
	}, nil
}

// ResolvedOn counts resolved or closed incidents whose resolved_at falls on
// the UTC calendar day of day.
func ResolvedOn(incidents []*domain.Incident, day time.Time) int {
	y, m, d := day.UTC().Date()
	count := 0
	for _, inc := range incidents {
		if !inc.Status.IsResolved() || inc.ResolvedAt == nil {
			continue
		}
		ry, rm, rd := inc.ResolvedAt.UTC().Date()
		if ry == y && rm == m && rd == d {
			count++
		}
	}
	return count
}

// OpenIncidents returns active incidents by severity rank, then oldest report
// first. Incidents without reported_at come first within their severity.
func OpenIncidents(incidents []*domain.Incident) []*domain.Incident {
	open := make([]*domain.Incident, 0)
	for _, inc := range incidents {
		if inc.Status.IsActive() {
			open = append(open, inc)
		}
	}
	sort.SliceStable(open, func(i, j int) bool {
		a, b := open[i], open[j]
		if ra, rb := a.Severity.Rank(), b.Severity.Rank(); ra != rb {
			return ra < rb
		}
		switch {
		case a.ReportedAt == nil:
			return b.ReportedAt != nil
		case b.ReportedAt == nil:
			return false
		}
		return a.ReportedAt.Before(*b.ReportedAt)
	})
	return open
}

// SeverityChart counts incidents per severity in rank order, omitting zeros.
func SeverityChart(incidents []*domain.Incident) []ChartEntry {
	counts := make(map[domain.Severity]int)
	for _, inc := range incidents {
		counts[inc.Severity]++
	}
	out := make([]ChartEntry, 0)
	for _, sev := range domain.AllSeverities() {
		if n := counts[sev]; n > 0 {
			out = append(out, ChartEntry{Name: domain.Label(string(sev)), Value: n, Color: sev.Color()})
		}
	}
	return out
}

// StatusChart counts incidents per status in lifecycle order, omitting zeros.
func StatusChart(incidents []*domain.Incident) []ChartEntry {
	counts := make(map[domain.IncidentStatus]int)
	for _, inc := range incidents {
		counts[inc.Status]++
	}
	out := make([]ChartEntry, 0)
	for _, st := range domain.AllIncidentStatuses() {
		if n := counts[st]; n > 0 {
			out = append(out, ChartEntry{Name: domain.Label(string(st)), Value: n, Color: st.Color()})
		}
	}
	return out
}

// CategoryChart counts incidents per category, omitting zeros.
func CategoryChart(incidents []*domain.Incident) []ChartEntry {
	counts := make(map[domain.Category]int)
	for _, inc := range incidents {
		counts[inc.Category]++
	}
	out := make([]ChartEntry, 0)
	for _, c := range domain.AllCategories() {
		if n := counts[c]; n > 0 {
			out = append(out, ChartEntry{Name: domain.Label(string(c)), Value: n, Color: c.Color()})
		}
	}
	return out
}

// Snapshot is the summary plus the number of active incidents.
type Snapshot struct {
	Summary
	ActiveIncidents int `json:"active_incidents"`
}

// Snapshot computes the values exported by the metrics reporter.
func (s *Service) Snapshot(ctx context.Context, sessionID string) (*Snapshot, error) {
	incidents, targets, err := s.load(ctx, sessionOrDefault(sessionID))
	if err != nil {
		return nil, err
	}
	active := 0
	for _, inc := range incidents {
		if inc.Status.IsActive() {
			active++
		}
	}
	return &Snapshot{Summary: *summarize(incidents, targets), ActiveIncidents: active}, nil
}
