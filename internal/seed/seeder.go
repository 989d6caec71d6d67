// Package seed loads the embedded demo dataset into a session.
package seed

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bissquit/incident-tracker/internal/domain"
	"github.com/bissquit/incident-tracker/internal/pkg/timeutil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"gopkg.in/yaml.v3"
)

//go:embed demo.yaml
var demoData []byte

// ErrAlreadySeeded is returned when the session already holds incidents.
var ErrAlreadySeeded = errors.New("session already has incidents")

// Dataset is the YAML document layout.
type Dataset struct {
	SLATargets []Target   `yaml:"sla_targets"`
	Problems   []Problem  `yaml:"problems"`
	Incidents  []Incident `yaml:"incidents"`
}

type Target struct {
	Severity   string `yaml:"severity"`
	Response   *int   `yaml:"response_target_minutes"`
	Resolution *int   `yaml:"resolution_target_minutes"`
}

type Problem struct {
	Key                  string   `yaml:"key"`
	Title                string   `yaml:"title"`
	Description          string   `yaml:"description"`
	RootCause            string   `yaml:"root_cause"`
	RootCauseCategory    string   `yaml:"root_cause_category"`
	PermanentFix         string   `yaml:"permanent_fix"`
	FixStatus            string   `yaml:"fix_status"`
	FixOwner             string   `yaml:"fix_owner"`
	FixDueDate           string   `yaml:"fix_due_date"`
	EstimatedCost        *float64 `yaml:"estimated_cost"`
	TotalDowntimeMinutes *int     `yaml:"total_downtime_minutes"`
	KnownError           bool     `yaml:"known_error"`
	WikiURL              string   `yaml:"wiki_url"`
	Workaround           string   `yaml:"workaround"`
	Priority             string   `yaml:"priority"`
	CreatedAt            string   `yaml:"created_at"`
}

type Incident struct {
	Title                 string          `yaml:"title"`
	Description           string          `yaml:"description"`
	Severity              string          `yaml:"severity"`
	Category              string          `yaml:"category"`
	Status                string          `yaml:"status"`
	ReportedAt            string          `yaml:"reported_at"`
	DetectedAt            string          `yaml:"detected_at"`
	AcknowledgedAt        string          `yaml:"acknowledged_at"`
	ResolvedAt            string          `yaml:"resolved_at"`
	ClosedAt              string          `yaml:"closed_at"`
	ImpactDescription     string          `yaml:"impact_description"`
	UsersAffected         *int            `yaml:"users_affected"`
	BusinessImpact        string          `yaml:"business_impact"`
	DataBreach            bool            `yaml:"data_breach"`
	ReportedBy            string          `yaml:"reported_by"`
	AssignedTo            string          `yaml:"assigned_to"`
	ResolvedBy            string          `yaml:"resolved_by"`
	ResolutionSummary     string          `yaml:"resolution_summary"`
	RootCause             string          `yaml:"root_cause"`
	Workaround            string          `yaml:"workaround"`
	PostIncidentCompleted bool            `yaml:"post_incident_completed"`
	LessonsLearned        string          `yaml:"lessons_learned"`
	PreventiveActions     string          `yaml:"preventive_actions"`
	Problem               string          `yaml:"problem"`
	Tags                  []string        `yaml:"tags"`
	Timeline              []TimelineEntry `yaml:"timeline"`
	Responders            []Responder     `yaml:"responders"`
	Assets                []Asset         `yaml:"assets"`
	Communications        []Communication `yaml:"communications"`
}

type TimelineEntry struct {
	Type      string `yaml:"entry_type"`
	Author    string `yaml:"author"`
	At        string `yaml:"at"`
	OldStatus string `yaml:"old_status"`
	NewStatus string `yaml:"new_status"`
	Content   string `yaml:"content"`
}

type Responder struct {
	PersonName string `yaml:"person_name"`
	Role       string `yaml:"role"`
	AssignedAt string `yaml:"assigned_at"`
}

type Asset struct {
	TrackerID  string `yaml:"asset_tracker_id"`
	Name       string `yaml:"asset_name"`
	Type       string `yaml:"asset_type"`
	ImpactType string `yaml:"impact_type"`
	Notes      string `yaml:"notes"`
}

type Communication struct {
	Channel   string `yaml:"channel"`
	Recipient string `yaml:"recipient"`
	Message   string `yaml:"message"`
	SentAt    string `yaml:"sent_at"`
	SentBy    string `yaml:"sent_by"`
}

// Demo returns the embedded demo dataset.
func Demo() (*Dataset, error) {
	return Parse(demoData)
}

// Parse decodes a dataset document.
func Parse(data []byte) (*Dataset, error) {
	var ds Dataset
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	return &ds, nil
}

// IncidentStore writes incidents and their related records.
type IncidentStore interface {
	BeginTx(ctx context.Context) (pgx.Tx, error)
	ListAllIncidents(ctx context.Context, sessionID string) ([]*domain.Incident, error)
	CreateIncidentTx(ctx context.Context, tx pgx.Tx, incident *domain.Incident) error
	CreateTimelineEntryTx(ctx context.Context, tx pgx.Tx, entry *domain.TimelineEntry) error
	CreateResponderTx(ctx context.Context, tx pgx.Tx, responder *domain.Responder) error
	CreateAssetTx(ctx context.Context, tx pgx.Tx, asset *domain.Asset) error
	CreateCommunicationTx(ctx context.Context, tx pgx.Tx, comm *domain.Communication) error
}

// ProblemStore writes problems and links incidents to them.
type ProblemStore interface {
	CreateProblemTx(ctx context.Context, tx pgx.Tx, problem *domain.Problem) error
	UpdateProblemTx(ctx context.Context, tx pgx.Tx, problem *domain.Problem) error
	LinkIncidentTx(ctx context.Context, tx pgx.Tx, sessionID, problemID, incidentID string, at time.Time) (int, error)
}

// TargetStore writes SLA targets.
type TargetStore interface {
	UpsertTargetTx(ctx context.Context, tx pgx.Tx, target *domain.SLATarget) error
}

// Allocator hands out record numbers.
type Allocator interface {
	AllocateIncidentNumberTx(ctx context.Context, tx pgx.Tx) (string, error)
	AllocateProblemNumberTx(ctx context.Context, tx pgx.Tx) (string, error)
}

// Result summarizes what a seed run wrote.
type Result struct {
	Targets   int
	Problems  int
	Incidents int
}

// Seeder loads a dataset through the repositories.
type Seeder struct {
	incidents IncidentStore
	problems  ProblemStore
	targets   TargetStore
	allocator Allocator
	now       func() time.Time
}

// NewSeeder creates a new seeder.
func NewSeeder(incidents IncidentStore, problems ProblemStore, targets TargetStore, allocator Allocator) *Seeder {
	return &Seeder{
		incidents: incidents,
		problems:  problems,
		targets:   targets,
		allocator: allocator,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Seed writes ds into sessionID in one transaction. It refuses to run
// against a session that already holds incidents.
func (s *Seeder) Seed(ctx context.Context, sessionID string, ds *Dataset) (*Result, error) {
	if strings.TrimSpace(sessionID) == "" {
		sessionID = domain.DefaultSessionID
	}

	existing, err := s.incidents.ListAllIncidents(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("check session: %w", err)
	}
	if len(existing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrAlreadySeeded, sessionID)
	}

	tx, err := s.incidents.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			slog.Error("failed to rollback transaction", "error", rbErr)
		}
	}()

	result := &Result{}
	now := s.now()

	for _, t := range ds.SLATargets {
		target := &domain.SLATarget{
			ID:                      uuid.NewString(),
			SessionID:               sessionID,
			Severity:                domain.Severity(t.Severity),
			ResponseTargetMinutes:   t.Response,
			ResolutionTargetMinutes: t.Resolution,
		}
		if !target.Severity.IsValid() {
			return nil, fmt.Errorf("sla target: invalid severity %q", t.Severity)
		}
		if err := s.targets.UpsertTargetTx(ctx, tx, target); err != nil {
			return nil, fmt.Errorf("seed sla target %s: %w", t.Severity, err)
		}
		result.Targets++
	}

	problems := make(map[string]*domain.Problem, len(ds.Problems))
	for _, p := range ds.Problems {
		problem, err := buildProblem(sessionID, p, now)
		if err != nil {
			return nil, err
		}
		problem.ProblemNumber, err = s.allocator.AllocateProblemNumberTx(ctx, tx)
		if err != nil {
			return nil, fmt.Errorf("allocate problem number: %w", err)
		}
		if err := s.problems.CreateProblemTx(ctx, tx, problem); err != nil {
			return nil, fmt.Errorf("seed problem %s: %w", p.Key, err)
		}
		problems[p.Key] = problem
		result.Problems++
	}

	for i, in := range ds.Incidents {
		inc, err := buildIncident(sessionID, in, now)
		if err != nil {
			return nil, fmt.Errorf("incident %d: %w", i+1, err)
		}
		inc.IncidentNumber, err = s.allocator.AllocateIncidentNumberTx(ctx, tx)
		if err != nil {
			return nil, fmt.Errorf("allocate incident number: %w", err)
		}
		if err := s.incidents.CreateIncidentTx(ctx, tx, inc); err != nil {
			return nil, fmt.Errorf("seed incident %s: %w", inc.IncidentNumber, err)
		}
		if err := s.seedRelated(ctx, tx, inc, in); err != nil {
			return nil, fmt.Errorf("seed incident %s: %w", inc.IncidentNumber, err)
		}

		if in.Problem != "" {
			problem, ok := problems[in.Problem]
			if !ok {
				return nil, fmt.Errorf("incident %s: unknown problem %q", inc.IncidentNumber, in.Problem)
			}
			count, err := s.problems.LinkIncidentTx(ctx, tx, sessionID, problem.ID, inc.ID, inc.UpdatedAt)
			if err != nil {
				return nil, fmt.Errorf("link incident %s: %w", inc.IncidentNumber, err)
			}
			problem.IncidentCount = count
		}
		result.Incidents++
	}

	for _, problem := range problems {
		if err := s.problems.UpdateProblemTx(ctx, tx, problem); err != nil {
			return nil, fmt.Errorf("update problem %s: %w", problem.ProblemNumber, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	slog.Info("demo data seeded",
		"session_id", sessionID,
		"sla_targets", result.Targets,
		"problems", result.Problems,
		"incidents", result.Incidents,
	)
	return result, nil
}

func (s *Seeder) seedRelated(ctx context.Context, tx pgx.Tx, inc *domain.Incident, in Incident) error {
	for _, e := range in.Timeline {
		entry := &domain.TimelineEntry{
			ID:         uuid.NewString(),
			SessionID:  inc.SessionID,
			IncidentID: inc.ID,
			Type:       domain.TimelineEntryType(e.Type),
			Content:    e.Content,
			Author:     e.Author,
			CreatedAt:  timeOr(e.At, inc.CreatedAt),
		}
		if entry.Type == "" {
			entry.Type = domain.TimelineEntryUpdate
		}
		if !entry.Type.IsValid() {
			return fmt.Errorf("invalid timeline entry type %q", e.Type)
		}
		entry.OldStatus = statusPtr(e.OldStatus)
		entry.NewStatus = statusPtr(e.NewStatus)
		for _, st := range []*domain.IncidentStatus{entry.OldStatus, entry.NewStatus} {
			if st != nil && !st.IsValid() {
				return fmt.Errorf("invalid timeline status %q", *st)
			}
		}
		if err := s.incidents.CreateTimelineEntryTx(ctx, tx, entry); err != nil {
			return err
		}
	}

	for _, r := range in.Responders {
		err := s.incidents.CreateResponderTx(ctx, tx, &domain.Responder{
			ID:         uuid.NewString(),
			SessionID:  inc.SessionID,
			IncidentID: inc.ID,
			PersonName: r.PersonName,
			Role:       r.Role,
			AssignedAt: timeOr(r.AssignedAt, inc.CreatedAt),
		})
		if err != nil {
			return err
		}
	}

	for _, a := range in.Assets {
		err := s.incidents.CreateAssetTx(ctx, tx, &domain.Asset{
			ID:             uuid.NewString(),
			SessionID:      inc.SessionID,
			IncidentID:     inc.ID,
			AssetTrackerID: a.TrackerID,
			AssetName:      a.Name,
			AssetType:      a.Type,
			ImpactType:     a.ImpactType,
			Notes:          a.Notes,
		})
		if err != nil {
			return err
		}
	}

	for _, c := range in.Communications {
		err := s.incidents.CreateCommunicationTx(ctx, tx, &domain.Communication{
			ID:         uuid.NewString(),
			SessionID:  inc.SessionID,
			IncidentID: inc.ID,
			Channel:    c.Channel,
			Recipient:  c.Recipient,
			Message:    c.Message,
			SentAt:     timeOr(c.SentAt, inc.CreatedAt),
			SentBy:     c.SentBy,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func buildProblem(sessionID string, p Problem, now time.Time) (*domain.Problem, error) {
	problem := &domain.Problem{
		ID:                   uuid.NewString(),
		SessionID:            sessionID,
		Title:                p.Title,
		Description:          p.Description,
		RootCause:            p.RootCause,
		RootCauseCategory:    p.RootCauseCategory,
		PermanentFix:         p.PermanentFix,
		FixStatus:            domain.FixStatus(p.FixStatus),
		FixOwner:             p.FixOwner,
		FixDueDate:           optionalTime(p.FixDueDate),
		EstimatedCost:        p.EstimatedCost,
		TotalDowntimeMinutes: p.TotalDowntimeMinutes,
		KnownError:           p.KnownError,
		WikiURL:              p.WikiURL,
		Workaround:           p.Workaround,
		Priority:             domain.Severity(p.Priority),
		CreatedAt:            timeOr(p.CreatedAt, now),
	}
	problem.UpdatedAt = problem.CreatedAt

	if problem.FixStatus == "" {
		problem.FixStatus = domain.FixStatusOpen
	}
	if problem.Priority == "" {
		problem.Priority = domain.SeverityMedium
	}
	if p.Key == "" {
		return nil, fmt.Errorf("problem %q has no key", p.Title)
	}
	if !problem.FixStatus.IsValid() || !problem.Priority.IsValid() {
		return nil, fmt.Errorf("problem %s: invalid fix status or priority", p.Key)
	}
	return problem, nil
}

func buildIncident(sessionID string, in Incident, now time.Time) (*domain.Incident, error) {
	inc := &domain.Incident{
		ID:                    uuid.NewString(),
		SessionID:             sessionID,
		Title:                 in.Title,
		Description:           in.Description,
		Severity:              domain.Severity(in.Severity),
		Category:              domain.Category(in.Category),
		Status:                domain.IncidentStatus(in.Status),
		ReportedAt:            optionalTime(in.ReportedAt),
		DetectedAt:            optionalTime(in.DetectedAt),
		AcknowledgedAt:        optionalTime(in.AcknowledgedAt),
		ResolvedAt:            optionalTime(in.ResolvedAt),
		ClosedAt:              optionalTime(in.ClosedAt),
		ImpactDescription:     in.ImpactDescription,
		UsersAffected:         in.UsersAffected,
		BusinessImpact:        in.BusinessImpact,
		DataBreach:            in.DataBreach,
		ReportedBy:            in.ReportedBy,
		AssignedTo:            in.AssignedTo,
		ResolvedBy:            in.ResolvedBy,
		ResolutionSummary:     in.ResolutionSummary,
		RootCause:             in.RootCause,
		Workaround:            in.Workaround,
		PostIncidentCompleted: in.PostIncidentCompleted,
		LessonsLearned:        in.LessonsLearned,
		PreventiveActions:     in.PreventiveActions,
		Tags:                  in.Tags,
	}
	if inc.Tags == nil {
		inc.Tags = []string{}
	}
	if inc.Severity == "" {
		inc.Severity = domain.SeverityMedium
	}
	if inc.Category == "" {
		inc.Category = domain.CategoryOther
	}
	if inc.Status == "" {
		inc.Status = domain.IncidentStatusOpen
	}
	if strings.TrimSpace(inc.Title) == "" {
		return nil, errors.New("title is required")
	}
	if !inc.Severity.IsValid() || !inc.Category.IsValid() || !inc.Status.IsValid() {
		return nil, fmt.Errorf("%q: invalid severity, category or status", inc.Title)
	}

	inc.CreatedAt = now
	if inc.ReportedAt != nil {
		inc.CreatedAt = *inc.ReportedAt
	}
	inc.UpdatedAt = inc.CreatedAt
	for _, t := range []*time.Time{inc.AcknowledgedAt, inc.ResolvedAt, inc.ClosedAt} {
		if t != nil && t.After(inc.UpdatedAt) {
			inc.UpdatedAt = *t
		}
	}
	for _, e := range in.Timeline {
		if t, ok := timeutil.Parse(e.At); ok && t.After(inc.UpdatedAt) {
			inc.UpdatedAt = t
		}
	}
	return inc, nil
}

func optionalTime(s string) *time.Time {
	t, ok := timeutil.Parse(s)
	if !ok {
		return nil
	}
	return &t
}

func timeOr(s string, fallback time.Time) time.Time {
	if t, ok := timeutil.Parse(s); ok {
		return t
	}
	return fallback
}

func statusPtr(s string) *domain.IncidentStatus {
	if s == "" {
		return nil
	}
	st := domain.IncidentStatus(s)
	return &st
}
