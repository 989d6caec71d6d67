// Package problems provides business logic and HTTP handlers for problem records.
package problems

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bissquit/incident-tracker/internal/domain"
	"github.com/bissquit/incident-tracker/internal/pkg/ctxlog"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Pagination constants.
const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// Service implements problem business logic.
type Service struct {
	repo      Repository
	incidents IncidentReader
	allocator NumberAllocator
	now       func() time.Time
}

// NewService creates a new problem service.
func NewService(repo Repository, incidents IncidentReader, allocator NumberAllocator) *Service {
	return &Service{
		repo:      repo,
		incidents: incidents,
		allocator: allocator,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the clock.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateProblemInput holds data for creating a problem.
type CreateProblemInput struct {
	SessionID         string
	Title             string
	Description       string
	RootCause         string
	RootCauseCategory string
	PermanentFix      string
	FixStatus         domain.FixStatus
	FixOwner          string
	FixDueDate        *time.Time
	EstimatedCost     *float64
	KnownError        bool
	WikiURL           string
	Workaround        string
	Priority          domain.Severity
}

// UpdateProblemInput holds a partial update. Nil fields are left unchanged.
type UpdateProblemInput struct {
	Title                *string
	Description          *string
	RootCause            *string
	RootCauseCategory    *string
	PermanentFix         *string
	FixStatus            *domain.FixStatus
	FixOwner             *string
	FixDueDate           *time.Time
	FixCompletedDate     *time.Time
	EstimatedCost        *float64
	IncidentCount        *int
	TotalDowntimeMinutes *int
	KnownError           *bool
	WikiURL              *string
	Workaround           *string
	Priority             *domain.Severity
}

// ListProblemsInput holds list filters and pagination.
type ListProblemsInput struct {
	SessionID string
	FixStatus *domain.FixStatus
	Priority  *domain.Severity
	Page      int
	PerPage   int
}

// ProblemPage is one page of problems.
type ProblemPage struct {
	Problems []*domain.Problem `json:"problems"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	PerPage  int               `json:"per_page"`
}

// ProblemDetail is a problem with its linked incidents.
type ProblemDetail struct {
	*domain.Problem
	Incidents []*domain.Incident `json:"incidents"`
}

// LinkResult describes a completed incident link.
type LinkResult struct {
	Message  string           `json:"message"`
	Problem  *domain.Problem  `json:"problem"`
	Incident *domain.Incident `json:"incident"`
}

func sessionOrDefault(id string) string {
	if strings.TrimSpace(id) == "" {
		return domain.DefaultSessionID
	}
	return id
}

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

// CreateProblem validates input and stores a new problem with a fresh PRB number.
func (s *Service) CreateProblem(ctx context.Context, input CreateProblemInput) (*domain.Problem, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, ErrTitleRequired
	}

	fixStatus := input.FixStatus
	if fixStatus == "" {
		fixStatus = domain.FixStatusOpen
	}
	if !fixStatus.IsValid() {
		return nil, ErrInvalidFixStatus
	}

	priority := input.Priority
	if priority == "" {
		priority = domain.SeverityMedium
	}
	if !priority.IsValid() {
		return nil, ErrInvalidPriority
	}

	if input.EstimatedCost != nil && *input.EstimatedCost < 0 {
		return nil, ErrNegativeValue
	}

	now := s.now()
	problem := &domain.Problem{
		ID:                uuid.NewString(),
		SessionID:         sessionOrDefault(input.SessionID),
		Title:             input.Title,
		Description:       input.Description,
		RootCause:         input.RootCause,
		RootCauseCategory: input.RootCauseCategory,
		PermanentFix:      input.PermanentFix,
		FixStatus:         fixStatus,
		FixOwner:          input.FixOwner,
		FixDueDate:        input.FixDueDate,
		EstimatedCost:     input.EstimatedCost,
		KnownError:        input.KnownError,
		WikiURL:           input.WikiURL,
		Workaround:        input.Workaround,
		Priority:          priority,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err := s.withTx(ctx, func(tx pgx.Tx) error {
		number, err := s.allocator.AllocateProblemNumberTx(ctx, tx)
		if err != nil {
			return fmt.Errorf("allocate problem number: %w", err)
		}
		problem.ProblemNumber = number

		if err := s.repo.CreateProblemTx(ctx, tx, problem); err != nil {
			return fmt.Errorf("create problem: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ctxlog.FromContext(ctx).Info("problem created",
		"problem_id", problem.ID,
		"problem_number", problem.ProblemNumber,
		"session_id", problem.SessionID,
	)
	return problem, nil
}

// GetProblem retrieves a problem by ID.
func (s *Service) GetProblem(ctx context.Context, sessionID, id string) (*domain.Problem, error) {
	return s.repo.GetProblem(ctx, sessionOrDefault(sessionID), id)
}

// GetProblemDetail retrieves a problem with its linked incidents.
func (s *Service) GetProblemDetail(ctx context.Context, sessionID, id string) (*ProblemDetail, error) {
	problem, err := s.GetProblem(ctx, sessionID, id)
	if err != nil {
		return nil, err
	}

	linked, err := s.incidents.ListIncidentsByProblem(ctx, problem.SessionID, problem.ID)
	if err != nil {
		return nil, fmt.Errorf("list linked incidents: %w", err)
	}
	if linked == nil {
		linked = make([]*domain.Incident, 0)
	}

	return &ProblemDetail{Problem: problem, Incidents: linked}, nil
}

// ListProblems retrieves one page of problems, newest first.
func (s *Service) ListProblems(ctx context.Context, input ListProblemsInput) (*ProblemPage, error) {
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

	list, total, err := s.repo.ListProblems(ctx, ProblemFilter{
		SessionID: sessionOrDefault(input.SessionID),
		FixStatus: input.FixStatus,
		Priority:  input.Priority,
		Limit:     perPage,
		Offset:    (page - 1) * perPage,
	})
	if err != nil {
		return nil, fmt.Errorf("list problems: %w", err)
	}

	return &ProblemPage{Problems: list, Total: total, Page: page, PerPage: perPage}, nil
}

// ListTrendingProblems returns the problems with the most linked incidents.
func (s *Service) ListTrendingProblems(ctx context.Context, sessionID string, limit int) ([]*domain.Problem, error) {
	return s.repo.ListTrendingProblems(ctx, sessionOrDefault(sessionID), limit)
}

// UpdateProblem applies a field-wise update.
func (s *Service) UpdateProblem(ctx context.Context, sessionID, id string, input UpdateProblemInput) (*domain.Problem, error) {
	if input.Title != nil && strings.TrimSpace(*input.Title) == "" {
		return nil, ErrTitleRequired
	}
	if input.FixStatus != nil && !input.FixStatus.IsValid() {
		return nil, ErrInvalidFixStatus
	}
	if input.Priority != nil && !input.Priority.IsValid() {
		return nil, ErrInvalidPriority
	}
	if negative(input.IncidentCount) || negative(input.TotalDowntimeMinutes) ||
		(input.EstimatedCost != nil && *input.EstimatedCost < 0) {
		return nil, ErrNegativeValue
	}

	var problem *domain.Problem
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var err error
		problem, err = s.repo.GetProblemForUpdateTx(ctx, tx, sessionOrDefault(sessionID), id)
		if err != nil {
			return err
		}

		applyUpdate(problem, input)
		problem.UpdatedAt = s.now()

		if err := s.repo.UpdateProblemTx(ctx, tx, problem); err != nil {
			return fmt.Errorf("update problem: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return problem, nil
}

func negative(v *int) bool {
	return v != nil && *v < 0
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

func applyUpdate(p *domain.Problem, in UpdateProblemInput) {
	setIf(&p.Title, in.Title)
	setIf(&p.Description, in.Description)
	setIf(&p.RootCause, in.RootCause)
	setIf(&p.RootCauseCategory, in.RootCauseCategory)
	setIf(&p.PermanentFix, in.PermanentFix)
	setIf(&p.FixStatus, in.FixStatus)
	setIf(&p.FixOwner, in.FixOwner)
	setPtrIf(&p.FixDueDate, in.FixDueDate)
	setPtrIf(&p.FixCompletedDate, in.FixCompletedDate)
	setPtrIf(&p.EstimatedCost, in.EstimatedCost)
	setIf(&p.IncidentCount, in.IncidentCount)
	setPtrIf(&p.TotalDowntimeMinutes, in.TotalDowntimeMinutes)
	setIf(&p.KnownError, in.KnownError)
	setIf(&p.WikiURL, in.WikiURL)
	setIf(&p.Workaround, in.Workaround)
	setIf(&p.Priority, in.Priority)
}

// LinkIncident attaches an incident to a problem and refreshes the problem's
// incident count. The problem is checked before the incident.
func (s *Service) LinkIncident(ctx context.Context, sessionID, problemID, incidentID string) (*LinkResult, error) {
	session := sessionOrDefault(sessionID)

	if _, err := s.repo.GetProblem(ctx, session, problemID); err != nil {
		return nil, err
	}
	if _, err := s.incidents.GetIncident(ctx, session, incidentID); err != nil {
		return nil, err
	}

	var problem *domain.Problem
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var err error
		problem, err = s.repo.GetProblemForUpdateTx(ctx, tx, session, problemID)
		if err != nil {
			return err
		}

		now := s.now()
		count, err := s.repo.LinkIncidentTx(ctx, tx, session, problemID, incidentID, now)
		if err != nil {
			return fmt.Errorf("link incident: %w", err)
		}

		problem.IncidentCount = count
		problem.UpdatedAt = now
		if err := s.repo.UpdateProblemTx(ctx, tx, problem); err != nil {
			return fmt.Errorf("update problem: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	incident, err := s.incidents.GetIncident(ctx, session, incidentID)
	if err != nil {
		return nil, fmt.Errorf("reload incident: %w", err)
	}

	ctxlog.FromContext(ctx).Info("incident linked to problem",
		"incident_number", incident.IncidentNumber,
		"problem_number", problem.ProblemNumber,
		"incident_count", problem.IncidentCount,
	)

	return &LinkResult{
		Message:  fmt.Sprintf("Incident %s linked to problem %s", incident.IncidentNumber, problem.ProblemNumber),
		Problem:  problem,
		Incident: incident,
	}, nil
}
