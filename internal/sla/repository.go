package sla

import (
	"context"

	"github.com/bissquit/incident-tracker/internal/domain"
)

// Repository defines the interface for SLA target data access.
type Repository interface {
	ListTargets(ctx context.Context, sessionID string) ([]*domain.SLATarget, error)
	// UpsertTarget stores the target for its (session, severity) pair,
	// replacing any existing one, and fills in the stored ID.
	UpsertTarget(ctx context.Context, target *domain.SLATarget) error
}
