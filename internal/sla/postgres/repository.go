// Package postgres provides PostgreSQL implementation of sla repository.
package postgres

import (
	"context"
	"fmt"

	"github.com/bissquit/incident-tracker/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository implements sla.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// ListTargets retrieves all SLA targets of a session.
func (r *Repository) ListTargets(ctx context.Context, sessionID string) ([]*domain.SLATarget, error) {
	query := `
		SELECT id, session_id, severity, response_target_minutes, resolution_target_minutes
		FROM sla_targets
		WHERE session_id = $1
	`
	rows, err := r.db.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list sla targets: %w", err)
	}
	defer rows.Close()

	targets := make([]*domain.SLATarget, 0)
	for rows.Next() {
		var t domain.SLATarget
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Severity, &t.ResponseTargetMinutes, &t.ResolutionTargetMinutes); err != nil {
			return nil, fmt.Errorf("scan sla target: %w", err)
		}
		targets = append(targets, &t)
	}
	return targets, rows.Err()
}

// UpsertTarget inserts or replaces the target for (session, severity).
func (r *Repository) UpsertTarget(ctx context.Context, t *domain.SLATarget) error {
	return upsertTarget(ctx, r.db, t)
}

// UpsertTargetTx is UpsertTarget within a transaction.
func (r *Repository) UpsertTargetTx(ctx context.Context, tx pgx.Tx, t *domain.SLATarget) error {
	return upsertTarget(ctx, tx, t)
}

func upsertTarget(ctx context.Context, q rowQuerier, t *domain.SLATarget) error {
	query := `
		INSERT INTO sla_targets (id, session_id, severity, response_target_minutes, resolution_target_minutes)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id, severity) DO UPDATE SET
			response_target_minutes = EXCLUDED.response_target_minutes,
			resolution_target_minutes = EXCLUDED.resolution_target_minutes
		RETURNING id
	`
	err := q.QueryRow(ctx, query,
		t.ID, t.SessionID, t.Severity, t.ResponseTargetMinutes, t.ResolutionTargetMinutes,
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("upsert sla target: %w", err)
	}
	return nil
}
