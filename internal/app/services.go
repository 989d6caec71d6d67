package app

import (
	"github.com/bissquit/incident-tracker/internal/analytics"
	"github.com/bissquit/incident-tracker/internal/incidents"
	incidentspostgres "github.com/bissquit/incident-tracker/internal/incidents/postgres"
	"github.com/bissquit/incident-tracker/internal/problems"
	problemspostgres "github.com/bissquit/incident-tracker/internal/problems/postgres"
	"github.com/bissquit/incident-tracker/internal/sequence"
	sequencepostgres "github.com/bissquit/incident-tracker/internal/sequence/postgres"
	"github.com/bissquit/incident-tracker/internal/sla"
	slapostgres "github.com/bissquit/incident-tracker/internal/sla/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Services bundles the domain services built on one pool.
type Services struct {
	Allocator *sequence.Allocator
	Incidents *incidents.Service
	Problems  *problems.Service
	SLA       *sla.Service
	Analytics *analytics.Service

	IncidentsRepo *incidentspostgres.Repository
	ProblemsRepo  *problemspostgres.Repository
	SLARepo       *slapostgres.Repository
}

// NewServices constructs repositories and services on db.
func NewServices(db *pgxpool.Pool) *Services {
	allocator := sequence.NewAllocator(sequencepostgres.NewCounter())

	incidentsRepo := incidentspostgres.NewRepository(db)
	problemsRepo := problemspostgres.NewRepository(db)
	slaRepo := slapostgres.NewRepository(db)

	incidentsService := incidents.NewService(incidentsRepo, allocator, problemsRepo)
	problemsService := problems.NewService(problemsRepo, incidentsService, allocator)
	slaService := sla.NewService(slaRepo)
	analyticsService := analytics.NewService(incidentsService, slaService, incidentsService, problemsService)

	return &Services{
		Allocator:     allocator,
		Incidents:     incidentsService,
		Problems:      problemsService,
		SLA:           slaService,
		Analytics:     analyticsService,
		IncidentsRepo: incidentsRepo,
		ProblemsRepo:  problemsRepo,
		SLARepo:       slaRepo,
	}
}

