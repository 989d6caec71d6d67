package problems

import (
	"context"
	"time"

	"github.com/bissquit/incident-tracker/internal/domain"
	"github.com/jackc/pgx/v5"
)

// Repository defines the interface for problem data access.
type Repository interface {
	GetProblem(ctx context.Context, sessionID, id string) (*domain.Problem, error)
	ListProblems(ctx context.Context, filter ProblemFilter) ([]*domain.Problem, int, error)
	ListTrendingProblems(ctx context.Context, sessionID string, limit int) ([]*domain.Problem, error)

	// Transaction methods
	BeginTx(ctx context.Context) (pgx.Tx, error)
	GetProblemForUpdateTx(ctx context.Context, tx pgx.Tx, sessionID, id string) (*domain.Problem, error)
	CreateProblemTx(ctx context.Context, tx pgx.Tx, problem *domain.Problem) error
	UpdateProblemTx(ctx context.Context, tx pgx.Tx, problem *domain.Problem) error
	// LinkIncidentTx points the incident at the problem and returns how many
	// incidents of the session are now linked to it.
	LinkIncidentTx(ctx context.Context, tx pgx.Tx, sessionID, problemID, incidentID string, at time.Time) (int, error)
}

// ProblemFilter contains filter options for listing problems.
type ProblemFilter struct {
	SessionID string
	FixStatus *domain.FixStatus
	Priority  *domain.Severity
	Limit     int
	Offset    int
}

// NumberAllocator issues problem numbers inside the creating transaction.
type NumberAllocator interface {
	AllocateProblemNumberTx(ctx context.Context, tx pgx.Tx) (string, error)
}

// IncidentReader provides the incident lookups problems need.
type IncidentReader interface {
	GetIncident(ctx context.Context, sessionID, id string) (*domain.Incident, error)
	ListIncidentsByProblem(ctx context.Context, sessionID, problemID string) ([]*domain.Incident, error)
}
