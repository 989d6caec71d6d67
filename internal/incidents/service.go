// Package incidents provides business logic and HTTP handlers for incident records.
package incidents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bissquit/incident-tracker/internal/analytics"
	"github.com/bissquit/incident-tracker/internal/domain"
	"github.com/bissquit/incident-tracker/internal/pkg/ctxlog"
	"github.com/bissquit/incident-tracker/internal/pkg/timeutil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/errgroup"
)

// Pagination constants.
const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// Service implements incident business logic.
type Service struct {
	repo      Repository
	allocator NumberAllocator
	problems  ProblemReader
	lifecycle *Lifecycle
}

// NewService creates a new incident service. problems may be nil.
func NewService(repo Repository, allocator NumberAllocator, problems ProblemReader) *Service {
	return &Service{
		repo:      repo,
		allocator: allocator,
		problems:  problems,
		lifecycle: NewLifecycle(),
	}
}

// WithLifecycle replaces the lifecycle manager, mainly to pin the clock in tests.
func (s *Service) WithLifecycle(l *Lifecycle) *Service {
	s.lifecycle = l
	return s
}

// CreateIncidentInput holds data for creating an incident.
type CreateIncidentInput struct {
	SessionID         string
	Title             string
	Description       string
	Severity          domain.Severity
	Category          domain.Category
	Status            domain.IncidentStatus
	ReportedAt        *time.Time
	DetectedAt        *time.Time
	ImpactDescription string
	UsersAffected     *int
	BusinessImpact    string
	DataBreach        bool
	ReportedBy        string
	AssignedTo        string
	Workaround        string
	WikiURL           string
	Tags              []string
}

// UpdateIncidentInput holds a partial update. Nil fields are left unchanged.
type UpdateIncidentInput struct {
	Title                 *string
	Description           *string
	Severity              *domain.Severity
	Category              *domain.Category
	Status                *domain.IncidentStatus
	DetectedAt            *time.Time
	AcknowledgedAt        *time.Time
	ResolvedAt            *time.Time
	ClosedAt              *time.Time
	ImpactDescription     *string
	UsersAffected         *int
	BusinessImpact        *string
	DataBreach            *bool
	ReportedBy            *string
	AssignedTo            *string
	ResolvedBy            *string
	ResolutionSummary     *string
	RootCause             *string
	Workaround            *string
	ProblemID             *string
	WikiURL               *string
	PostIncidentCompleted *bool
	LessonsLearned        *string
	PreventiveActions     *string
	Tags                  *[]string
}

// TimelineEntryInput holds data for a manual timeline entry.
type TimelineEntryInput struct {
	Type      domain.TimelineEntryType
	Content   string
	Author    string
	CreatedAt *time.Time
}

// ListIncidentsInput holds list filters and pagination.
type ListIncidentsInput struct {
	SessionID  string
	Status     *domain.IncidentStatus
	Severity   *domain.Severity
	Category   *domain.Category
	AssignedTo string
	Search     string
	Page       int
	PerPage    int
}

// IncidentPage is one page of incidents.
type IncidentPage struct {
	Incidents []*domain.Incident `json:"incidents"`
	Total     int                `json:"total"`
	Page      int                `json:"page"`
	PerPage   int                `json:"per_page"`
}

// IncidentDetail is an incident with all related records.
type IncidentDetail struct {
	*domain.Incident
	Timeline       []*domain.TimelineEntry `json:"timeline"`
	AffectedAssets []*domain.Asset         `json:"affected_assets"`
	Responders     []*domain.Responder     `json:"responders"`
	Communications []*domain.Communication `json:"communications"`
	Problem        *domain.Problem         `json:"problem"`
}

// Report is the post-incident review document.
type Report struct {
	Incident       *domain.Incident        `json:"incident"`
	Timeline       []*domain.TimelineEntry `json:"timeline"`
	AffectedAssets []*domain.Asset         `json:"affected_assets"`
	Responders     []*domain.Responder     `json:"responders"`
	Communications []*domain.Communication `json:"communications"`
	DurationHours  *float64                `json:"duration_hours"`
	Problem        *domain.Problem         `json:"problem"`
	GeneratedAt    time.Time               `json:"report_generated_at"`
}

func sessionOrDefault(id string) string {
	if strings.TrimSpace(id) == "" {
		return domain.DefaultSessionID
	}
	return id
}

// withTx runs fn in a transaction, committing only if fn succeeds.
func (s *Service) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Error("failed to rollback transaction", "error", err)
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// mutate locks the incident, applies fn, and persists the incident together
// with the timeline entry fn returns.
func (s *Service) mutate(
	ctx context.Context,
	sessionID, id string,
	fn func(inc *domain.Incident) (*domain.TimelineEntry, error),
) (*domain.Incident, *domain.TimelineEntry, error) {
	var (
		inc   *domain.Incident
		entry *domain.TimelineEntry
	)
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var err error
		inc, err = s.repo.GetIncidentForUpdateTx(ctx, tx, sessionOrDefault(sessionID), id)
		if err != nil {
			return err
		}

		entry, err = fn(inc)
		if err != nil {
			return err
		}

		if err := s.repo.UpdateIncidentTx(ctx, tx, inc); err != nil {
			return fmt.Errorf("update incident: %w", err)
		}
		if entry != nil {
			if err := s.repo.CreateTimelineEntryTx(ctx, tx, entry); err != nil {
				return fmt.Errorf("create timeline entry: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if entry != nil {
		recordTimelineEntry(string(entry.Type))
	}
	return inc, entry, nil
}

// CreateIncident validates input, allocates a number and stores the incident
// with its initial timeline entry.
func (s *Service) CreateIncident(ctx context.Context, input CreateIncidentInput) (*domain.Incident, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, ErrTitleRequired
	}

	severity := input.Severity
	if severity == "" {
		severity = domain.SeverityMedium
	}
	if !severity.IsValid() {
		return nil, ErrInvalidSeverity
	}

	category := input.Category
	if category == "" {
		category = domain.CategoryOther
	}
	if !category.IsValid() {
		return nil, ErrInvalidCategory
	}

	status := input.Status
	if status == "" {
		status = domain.IncidentStatusOpen
	}
	if !status.IsValid() {
		return nil, ErrInvalidStatus
	}

	now := s.lifecycle.Now()
	reportedAt := input.ReportedAt
	if reportedAt == nil {
		reportedAt = timeutil.Ptr(now)
	}

	tags := input.Tags
	if tags == nil {
		tags = make([]string, 0)
	}

	inc := &domain.Incident{
		ID:                uuid.NewString(),
		SessionID:         sessionOrDefault(input.SessionID),
		Title:             input.Title,
		Description:       input.Description,
		Severity:          severity,
		Category:          category,
		Status:            status,
		ReportedAt:        reportedAt,
		DetectedAt:        input.DetectedAt,
		ImpactDescription: input.ImpactDescription,
		UsersAffected:     input.UsersAffected,
		BusinessImpact:    input.BusinessImpact,
		DataBreach:        input.DataBreach,
		ReportedBy:        input.ReportedBy,
		AssignedTo:        input.AssignedTo,
		Workaround:        input.Workaround,
		WikiURL:           input.WikiURL,
		Tags:              tags,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err := s.withTx(ctx, func(tx pgx.Tx) error {
		number, err := s.allocator.AllocateIncidentNumberTx(ctx, tx)
		if err != nil {
			return fmt.Errorf("allocate incident number: %w", err)
		}
		inc.IncidentNumber = number

		if err := s.repo.CreateIncidentTx(ctx, tx, inc); err != nil {
			return fmt.Errorf("create incident: %w", err)
		}
		if err := s.repo.CreateTimelineEntryTx(ctx, tx, s.lifecycle.NewIncidentEntry(inc)); err != nil {
			return fmt.Errorf("create timeline entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	recordIncidentCreated(string(inc.Severity))
	recordTimelineEntry(string(domain.TimelineEntryUpdate))
	ctxlog.FromContext(ctx).Info("incident created",
		"incident_id", inc.ID,
		"incident_number", inc.IncidentNumber,
		"severity", inc.Severity,
		"session_id", inc.SessionID,
	)
	return inc, nil
}

// GetIncident retrieves an incident by ID.
func (s *Service) GetIncident(ctx context.Context, sessionID, id string) (*domain.Incident, error) {
	return s.repo.GetIncident(ctx, sessionOrDefault(sessionID), id)
}

type related struct {
	timeline       []*domain.TimelineEntry
	assets         []*domain.Asset
	responders     []*domain.Responder
	communications []*domain.Communication
	problem        *domain.Problem
}

func (s *Service) loadRelated(ctx context.Context, inc *domain.Incident) (*related, error) {
	var rel related
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		rel.timeline, err = s.repo.ListTimeline(gCtx, inc.SessionID, inc.ID)
		return err
	})
	g.Go(func() error {
		var err error
		rel.assets, err = s.repo.ListAssets(gCtx, inc.SessionID, inc.ID)
		return err
	})
	g.Go(func() error {
		var err error
		rel.responders, err = s.repo.ListResponders(gCtx, inc.SessionID, inc.ID)
		return err
	})
	g.Go(func() error {
		var err error
		rel.communications, err = s.repo.ListCommunications(gCtx, inc.SessionID, inc.ID)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load related records: %w", err)
	}

	if inc.ProblemID != nil && s.problems != nil {
		problem, err := s.problems.GetProblem(ctx, inc.SessionID, *inc.ProblemID)
		if err != nil {
			ctxlog.FromContext(ctx).Warn("linked problem unavailable",
				"incident_id", inc.ID,
				"problem_id", *inc.ProblemID,
				"error", err,
			)
		} else {
			rel.problem = problem
		}
	}
	return &rel, nil
}

// GetIncidentDetail retrieves an incident with its timeline and related records.
func (s *Service) GetIncidentDetail(ctx context.Context, sessionID, id string) (*IncidentDetail, error) {
	inc, err := s.GetIncident(ctx, sessionID, id)
	if err != nil {
		return nil, err
	}

	rel, err := s.loadRelated(ctx, inc)
	if err != nil {
		return nil, err
	}

	return &IncidentDetail{
		Incident:       inc,
		Timeline:       rel.timeline,
		AffectedAssets: rel.assets,
		Responders:     rel.responders,
		Communications: rel.communications,
		Problem:        rel.problem,
	}, nil
}

// ListIncidents retrieves one page of incidents, newest reports first.
func (s *Service) ListIncidents(ctx context.Context, input ListIncidentsInput) (*IncidentPage, error) {
	page := input.Page
	if page < 1 {
		page = 1
	}
	perPage := input.PerPage
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}

	list, total, err := s.repo.ListIncidents(ctx, IncidentFilter{
		SessionID:  sessionOrDefault(input.SessionID),
		Status:     input.Status,
		Severity:   input.Severity,
		Category:   input.Category,
		AssignedTo: input.AssignedTo,
		Search:     input.Search,
		Limit:      perPage,
		Offset:     (page - 1) * perPage,
	})
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}

	return &IncidentPage{Incidents: list, Total: total, Page: page, PerPage: perPage}, nil
}

// ListAllIncidents returns every incident in the session.
func (s *Service) ListAllIncidents(ctx context.Context, sessionID string) ([]*domain.Incident, error) {
	return s.repo.ListAllIncidents(ctx, sessionOrDefault(sessionID))
}

// ListIncidentsByProblem returns incidents linked to a problem.
func (s *Service) ListIncidentsByProblem(ctx context.Context, sessionID, problemID string) ([]*domain.Incident, error) {
	return s.repo.ListIncidentsByProblem(ctx, sessionOrDefault(sessionID), problemID)
}

// ListRecentActivity returns the latest timeline entries across incidents.
func (s *Service) ListRecentActivity(ctx context.Context, sessionID string, limit int) ([]*domain.ActivityEntry, error) {
	return s.repo.ListRecentActivity(ctx, sessionOrDefault(sessionID), limit)
}

// UpdateIncident applies a field-wise update without lifecycle side effects.
// A non-empty ProblemID must name a problem of the same session; an empty one
// unlinks. Both the old and the new problem get their incident count refreshed.
func (s *Service) UpdateIncident(ctx context.Context, sessionID, id string, input UpdateIncidentInput) (*domain.Incident, error) {
	if input.Title != nil && strings.TrimSpace(*input.Title) == "" {
		return nil, ErrTitleRequired
	}
	if input.Severity != nil && !input.Severity.IsValid() {
		return nil, ErrInvalidSeverity
	}
	if input.Category != nil && !input.Category.IsValid() {
		return nil, ErrInvalidCategory
	}
	if input.Status != nil && !input.Status.IsValid() {
		return nil, ErrInvalidStatus
	}
	target := ""
	if input.ProblemID != nil {
		target = strings.TrimSpace(*input.ProblemID)
		if target != "" {
			if _, err := uuid.Parse(target); err != nil {
				return nil, ErrInvalidProblemID
			}
		}
	}

	session := sessionOrDefault(sessionID)
	var inc *domain.Incident
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		// problem before incident, the same lock order as linking
		if target != "" {
			if err := s.repo.LockProblemTx(ctx, tx, session, target); err != nil {
				return err
			}
		}

		var err error
		inc, err = s.repo.GetIncidentForUpdateTx(ctx, tx, session, id)
		if err != nil {
			return err
		}

		previous := ""
		if inc.ProblemID != nil {
			previous = *inc.ProblemID
		}

		applyUpdate(inc, input)
		if input.ProblemID != nil {
			inc.ProblemID = nil
			if target != "" {
				inc.ProblemID = &target
			}
		}
		inc.UpdatedAt = s.lifecycle.Now()

		if err := s.repo.UpdateIncidentTx(ctx, tx, inc); err != nil {
			return fmt.Errorf("update incident: %w", err)
		}

		if input.ProblemID == nil || previous == target {
			return nil
		}
		for _, pid := range []string{previous, target} {
			if pid == "" {
				continue
			}
			if err := s.repo.RecountProblemTx(ctx, tx, session, pid, inc.UpdatedAt); err != nil {
				return fmt.Errorf("recount problem incidents: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inc, nil
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func setPtrIf[T any](dst **T, src *T) {
	if src != nil {
		v := *src
		*dst = &v
	}
}

func applyUpdate(inc *domain.Incident, in UpdateIncidentInput) {
	setIf(&inc.Title, in.Title)
	setIf(&inc.Description, in.Description)
	setIf(&inc.Severity, in.Severity)
	setIf(&inc.Category, in.Category)
	setIf(&inc.Status, in.Status)
	setPtrIf(&inc.DetectedAt, in.DetectedAt)
	setPtrIf(&inc.AcknowledgedAt, in.AcknowledgedAt)
	setPtrIf(&inc.ResolvedAt, in.ResolvedAt)
	setPtrIf(&inc.ClosedAt, in.ClosedAt)
	setIf(&inc.ImpactDescription, in.ImpactDescription)
	setPtrIf(&inc.UsersAffected, in.UsersAffected)
	setIf(&inc.BusinessImpact, in.BusinessImpact)
	setIf(&inc.DataBreach, in.DataBreach)
	setIf(&inc.ReportedBy, in.ReportedBy)
	setIf(&inc.AssignedTo, in.AssignedTo)
	setIf(&inc.ResolvedBy, in.ResolvedBy)
	setIf(&inc.ResolutionSummary, in.ResolutionSummary)
	setIf(&inc.RootCause, in.RootCause)
	setIf(&inc.Workaround, in.Workaround)
	setIf(&inc.WikiURL, in.WikiURL)
	setIf(&inc.PostIncidentCompleted, in.PostIncidentCompleted)
	setIf(&inc.LessonsLearned, in.LessonsLearned)
	setIf(&inc.PreventiveActions, in.PreventiveActions)
	setIf(&inc.Tags, in.Tags)
}

// UpdateStatus moves an incident to a new status and records the change.
func (s *Service) UpdateStatus(ctx context.Context, sessionID, id string, status domain.IncidentStatus, author, content string) (*domain.Incident, error) {
	if !status.IsValid() {
		return nil, ErrInvalidStatus
	}

	var from domain.IncidentStatus
	inc, _, err := s.mutate(ctx, sessionID, id, func(inc *domain.Incident) (*domain.TimelineEntry, error) {
		from = inc.Status
		return s.lifecycle.ApplyStatusChange(inc, status, author, content)
	})
	if err != nil {
		return nil, err
	}

	recordStatusTransition(string(from), string(status))
	ctxlog.FromContext(ctx).Info("incident status changed",
		"incident_number", inc.IncidentNumber,
		"from", from,
		"to", status,
	)
	return inc, nil
}

// Assign sets the incident assignee and records the change.
func (s *Service) Assign(ctx context.Context, sessionID, id, assignee, author string) (*domain.Incident, error) {
	if strings.TrimSpace(assignee) == "" {
		return nil, ErrAssigneeRequired
	}

	inc, _, err := s.mutate(ctx, sessionID, id, func(inc *domain.Incident) (*domain.TimelineEntry, error) {
		return s.lifecycle.ApplyAssignment(inc, assignee, author)
	})
	if err != nil {
		return nil, err
	}

	ctxlog.FromContext(ctx).Info("incident assigned",
		"incident_number", inc.IncidentNumber,
		"assigned_to", assignee,
	)
	return inc, nil
}

// Resolve marks an incident resolved and records the resolution.
func (s *Service) Resolve(ctx context.Context, sessionID, id string, input ResolutionInput) (*domain.Incident, error) {
	var from domain.IncidentStatus
	inc, _, err := s.mutate(ctx, sessionID, id, func(inc *domain.Incident) (*domain.TimelineEntry, error) {
		from = inc.Status
		return s.lifecycle.ApplyResolution(inc, input), nil
	})
	if err != nil {
		return nil, err
	}

	recordStatusTransition(string(from), string(domain.IncidentStatusResolved))
	ctxlog.FromContext(ctx).Info("incident resolved",
		"incident_number", inc.IncidentNumber,
		"resolved_by", inc.ResolvedBy,
	)
	return inc, nil
}

// AddTimelineEntry appends a manual entry and bumps the incident's updated_at.
func (s *Service) AddTimelineEntry(ctx context.Context, sessionID, incidentID string, input TimelineEntryInput) (*domain.TimelineEntry, error) {
	if strings.TrimSpace(input.Content) == "" {
		return nil, ErrContentRequired
	}
	typ := input.Type
	if typ == "" {
		typ = domain.TimelineEntryUpdate
	}
	if !typ.IsValid() {
		return nil, ErrInvalidEntryType
	}

	_, entry, err := s.mutate(ctx, sessionID, incidentID, func(inc *domain.Incident) (*domain.TimelineEntry, error) {
		return s.lifecycle.ApplyNote(inc, typ, input.Content, input.Author, input.CreatedAt), nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// ListTimeline returns the timeline of an incident, oldest first.
func (s *Service) ListTimeline(ctx context.Context, sessionID, incidentID string) ([]*domain.TimelineEntry, error) {
	inc, err := s.GetIncident(ctx, sessionID, incidentID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListTimeline(ctx, inc.SessionID, inc.ID)
}

// AddResponder attaches a responder to an incident.
func (s *Service) AddResponder(ctx context.Context, sessionID, incidentID string, responder *domain.Responder) error {
	if strings.TrimSpace(responder.PersonName) == "" {
		return ErrPersonNameRequired
	}

	inc, err := s.GetIncident(ctx, sessionID, incidentID)
	if err != nil {
		return err
	}

	responder.ID = uuid.NewString()
	responder.SessionID = inc.SessionID
	responder.IncidentID = inc.ID
	if responder.AssignedAt.IsZero() {
		responder.AssignedAt = s.lifecycle.Now()
	}
	if err := s.repo.CreateResponder(ctx, responder); err != nil {
		return fmt.Errorf("create responder: %w", err)
	}
	return nil
}

// AddAsset records an affected asset on an incident.
func (s *Service) AddAsset(ctx context.Context, sessionID, incidentID string, asset *domain.Asset) error {
	if strings.TrimSpace(asset.AssetName) == "" {
		return ErrAssetNameRequired
	}

	inc, err := s.GetIncident(ctx, sessionID, incidentID)
	if err != nil {
		return err
	}

	asset.ID = uuid.NewString()
	asset.SessionID = inc.SessionID
	asset.IncidentID = inc.ID
	if err := s.repo.CreateAsset(ctx, asset); err != nil {
		return fmt.Errorf("create asset: %w", err)
	}
	return nil
}

// AddCommunication stores an outbound message and its timeline entry atomically.
func (s *Service) AddCommunication(ctx context.Context, sessionID, incidentID string, comm *domain.Communication) error {
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		inc, err := s.repo.GetIncidentForUpdateTx(ctx, tx, sessionOrDefault(sessionID), incidentID)
		if err != nil {
			return err
		}

		comm.ID = uuid.NewString()
		comm.SessionID = inc.SessionID
		comm.IncidentID = inc.ID
		if comm.SentAt.IsZero() {
			comm.SentAt = s.lifecycle.Now()
		}
		if err := s.repo.CreateCommunicationTx(ctx, tx, comm); err != nil {
			return fmt.Errorf("create communication: %w", err)
		}

		entry := s.lifecycle.ApplyCommunication(inc, comm)
		if err := s.repo.TouchIncidentTx(ctx, tx, inc.SessionID, inc.ID, inc.UpdatedAt); err != nil {
			return fmt.Errorf("touch incident: %w", err)
		}
		if err := s.repo.CreateTimelineEntryTx(ctx, tx, entry); err != nil {
			return fmt.Errorf("create timeline entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	recordTimelineEntry(string(domain.TimelineEntryCommunication))
	return nil
}

// Report builds the post-incident report.
func (s *Service) Report(ctx context.Context, sessionID, id string) (*Report, error) {
	inc, err := s.GetIncident(ctx, sessionID, id)
	if err != nil {
		return nil, err
	}

	rel, err := s.loadRelated(ctx, inc)
	if err != nil {
		return nil, err
	}

	var duration *float64
	if hours, ok := timeutil.HoursBetween(inc.ReportedAt, inc.ResolvedAt); ok {
		rounded := analytics.Round(hours, 2)
		duration = &rounded
	}

	return &Report{
		Incident:       inc,
		Timeline:       rel.timeline,
		AffectedAssets: rel.assets,
		Responders:     rel.responders,
		Communications: rel.communications,
		DurationHours:  duration,
		Problem:        rel.problem,
		GeneratedAt:    s.lifecycle.Now(),
	}, nil
}
