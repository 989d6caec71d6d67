package incidents

import (
	"context"
	"time"

	"github.com/bissquit/incident-tracker/internal/domain"
	"github.com/jackc/pgx/v5"
)

// Repository defines the interface for incident storage.
// Every method is scoped by session ID.
type Repository interface {
	GetIncident(ctx context.Context, sessionID, id string) (*domain.Incident, error)
	ListIncidents(ctx context.Context, filter IncidentFilter) ([]*domain.Incident, int, error)
	ListAllIncidents(ctx context.Context, sessionID string) ([]*domain.Incident, error)
	ListIncidentsByProblem(ctx context.Context, sessionID, problemID string) ([]*domain.Incident, error)

	ListTimeline(ctx context.Context, sessionID, incidentID string) ([]*domain.TimelineEntry, error)
	ListRecentActivity(ctx context.Context, sessionID string, limit int) ([]*domain.ActivityEntry, error)

	CreateResponder(ctx context.Context, responder *domain.Responder) error
	ListResponders(ctx context.Context, sessionID, incidentID string) ([]*domain.Responder, error)
	ListCommunications(ctx context.Context, sessionID, incidentID string) ([]*domain.Communication, error)
	CreateAsset(ctx context.Context, asset *domain.Asset) error
	ListAssets(ctx context.Context, sessionID, incidentID string) ([]*domain.Asset, error)

	// Transaction support
	BeginTx(ctx context.Context) (pgx.Tx, error)
	GetIncidentForUpdateTx(ctx context.Context, tx pgx.Tx, sessionID, id string) (*domain.Incident, error)
	CreateIncidentTx(ctx context.Context, tx pgx.Tx, incident *domain.Incident) error
	UpdateIncidentTx(ctx context.Context, tx pgx.Tx, incident *domain.Incident) error
	TouchIncidentTx(ctx context.Context, tx pgx.Tx, sessionID, id string, at time.Time) error
	CreateTimelineEntryTx(ctx context.Context, tx pgx.Tx, entry *domain.TimelineEntry) error
	CreateCommunicationTx(ctx context.Context, tx pgx.Tx, comm *domain.Communication) error

	// LockProblemTx locks a problem of the session until tx ends, or returns
	// ErrProblemNotFound.
	LockProblemTx(ctx context.Context, tx pgx.Tx, sessionID, problemID string) error
	// RecountProblemTx stores the number of incidents linked to a problem.
	RecountProblemTx(ctx context.Context, tx pgx.Tx, sessionID, problemID string, at time.Time) error
}

// IncidentFilter holds filter options for listing incidents.
type IncidentFilter struct {
	SessionID  string
	Status     *domain.IncidentStatus
	Severity   *domain.Severity
	Category   *domain.Category
	AssignedTo string
	Search     string
	Limit      int
	Offset     int
}

// NumberAllocator hands out incident numbers inside a transaction.
type NumberAllocator interface {
	AllocateIncidentNumberTx(ctx context.Context, tx pgx.Tx) (string, error)
}

// ProblemReader reads problems linked to incidents.
type ProblemReader interface {
	GetProblem(ctx context.Context, sessionID, id string) (*domain.Problem, error)
}
