// Package postgres provides PostgreSQL implementation of problems repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/incident-tracker/internal/domain"
	"github.com/bissquit/incident-tracker/internal/incidents"
	"github.com/bissquit/incident-tracker/internal/problems"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements problems.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const problemColumns = `
	id, session_id, problem_number, title, description, root_cause, root_cause_category,
	permanent_fix, fix_status, fix_owner, fix_due_date, fix_completed_date, estimated_cost,
	incident_count, total_downtime_minutes, known_error, wiki_url, workaround, priority,
	created_at, updated_at`

func scanProblem(row pgx.Row) (*domain.Problem, error) {
	var p domain.Problem
	err := row.Scan(
		&p.ID,
		&p.SessionID,
		&p.ProblemNumber,
		&p.Title,
		&p.Description,
		&p.RootCause,
		&p.RootCauseCategory,
		&p.PermanentFix,
		&p.FixStatus,
		&p.FixOwner,
		&p.FixDueDate,
		&p.FixCompletedDate,
		&p.EstimatedCost,
		&p.IncidentCount,
		&p.TotalDowntimeMinutes,
		&p.KnownError,
		&p.WikiURL,
		&p.Workaround,
		&p.Priority,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func collectProblems(rows pgx.Rows) ([]*domain.Problem, error) {
	defer rows.Close()

	list := make([]*domain.Problem, 0)
	for rows.Next() {
		p, err := scanProblem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan problem: %w", err)
		}
		list = append(list, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate problems: %w", err)
	}
	return list, nil
}

func getProblem(row pgx.Row) (*domain.Problem, error) {
	p, err := scanProblem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, problems.ErrProblemNotFound
		}
		return nil, fmt.Errorf("get problem: %w", err)
	}
	return p, nil
}

// GetProblem retrieves a problem by ID.
func (r *Repository) GetProblem(ctx context.Context, sessionID, id string) (*domain.Problem, error) {
	if !validID(id) {
		return nil, problems.ErrProblemNotFound
	}
	query := `SELECT ` + problemColumns + ` FROM problems WHERE session_id = $1 AND id = $2`
	return getProblem(r.db.QueryRow(ctx, query, sessionID, id))
}

// GetProblemForUpdateTx retrieves a problem and locks its row until tx ends.
func (r *Repository) GetProblemForUpdateTx(ctx context.Context, tx pgx.Tx, sessionID, id string) (*domain.Problem, error) {
	if !validID(id) {
		return nil, problems.ErrProblemNotFound
	}
	query := `SELECT ` + problemColumns + ` FROM problems WHERE session_id = $1 AND id = $2 FOR UPDATE`
	return getProblem(tx.QueryRow(ctx, query, sessionID, id))
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// ListProblems retrieves a page of problems matching filter, with the total count.
func (r *Repository) ListProblems(ctx context.Context, filter problems.ProblemFilter) ([]*domain.Problem, int, error) {
	where := ` WHERE session_id = $1`
	args := []interface{}{filter.SessionID}
	argNum := 2

	if filter.FixStatus != nil {
		where += fmt.Sprintf(" AND fix_status = $%d", argNum)
		args = append(args, *filter.FixStatus)
		argNum++
	}

	if filter.Priority != nil {
		where += fmt.Sprintf(" AND priority = $%d", argNum)
		args = append(args, *filter.Priority)
		argNum++
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM problems`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count problems: %w", err)
	}

	query := `SELECT ` + problemColumns + ` FROM problems` + where + ` ORDER BY created_at DESC`

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, filter.Limit)
		argNum++
	}

	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, filter.Offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list problems: %w", err)
	}
	list, err := collectProblems(rows)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// ListTrendingProblems retrieves the problems with the most linked incidents.
func (r *Repository) ListTrendingProblems(ctx context.Context, sessionID string, limit int) ([]*domain.Problem, error) {
	query := `SELECT ` + problemColumns + ` FROM problems
		WHERE session_id = $1
		ORDER BY incident_count DESC, created_at DESC
		LIMIT $2`
	rows, err := r.db.Query(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list trending problems: %w", err)
	}
	return collectProblems(rows)
}

// BeginTx starts a new transaction.
func (r *Repository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.db.Begin(ctx)
}

// CreateProblemTx inserts a problem within a transaction.
func (r *Repository) CreateProblemTx(ctx context.Context, tx pgx.Tx, p *domain.Problem) error {
	query := `
		INSERT INTO problems (
			id, session_id, problem_number, title, description, root_cause, root_cause_category,
			permanent_fix, fix_status, fix_owner, fix_due_date, fix_completed_date, estimated_cost,
			incident_count, total_downtime_minutes, known_error, wiki_url, workaround, priority,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19,
			$20, $21
		)
	`
	_, err := tx.Exec(ctx, query,
		p.ID,
		p.SessionID,
		p.ProblemNumber,
		p.Title,
		p.Description,
		p.RootCause,
		p.RootCauseCategory,
		p.PermanentFix,
		p.FixStatus,
		p.FixOwner,
		p.FixDueDate,
		p.FixCompletedDate,
		p.EstimatedCost,
		p.IncidentCount,
		p.TotalDowntimeMinutes,
		p.KnownError,
		p.WikiURL,
		p.Workaround,
		p.Priority,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert problem: %w", err)
	}
	return nil
}

// UpdateProblemTx writes every mutable column of a problem within a transaction.
func (r *Repository) UpdateProblemTx(ctx context.Context, tx pgx.Tx, p *domain.Problem) error {
	query := `
		UPDATE problems SET
			title = $3, description = $4, root_cause = $5, root_cause_category = $6,
			permanent_fix = $7, fix_status = $8, fix_owner = $9, fix_due_date = $10,
			fix_completed_date = $11, estimated_cost = $12, incident_count = $13,
			total_downtime_minutes = $14, known_error = $15, wiki_url = $16,
			workaround = $17, priority = $18, updated_at = $19
		WHERE session_id = $1 AND id = $2
	`
	result, err := tx.Exec(ctx, query,
		p.SessionID,
		p.ID,
		p.Title,
		p.Description,
		p.RootCause,
		p.RootCauseCategory,
		p.PermanentFix,
		p.FixStatus,
		p.FixOwner,
		p.FixDueDate,
		p.FixCompletedDate,
		p.EstimatedCost,
		p.IncidentCount,
		p.TotalDowntimeMinutes,
		p.KnownError,
		p.WikiURL,
		p.Workaround,
		p.Priority,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update problem: %w", err)
	}
	if result.RowsAffected() == 0 {
		return problems.ErrProblemNotFound
	}
	return nil
}

// LinkIncidentTx sets the incident's problem and recounts the problem's
// incidents. A problem the incident was moved away from is recounted too.
func (r *Repository) LinkIncidentTx(ctx context.Context, tx pgx.Tx, sessionID, problemID, incidentID string, at time.Time) (int, error) {
	if !validID(incidentID) {
		return 0, incidents.ErrIncidentNotFound
	}

	var previous *string
	err := tx.QueryRow(ctx,
		`SELECT problem_id FROM incidents WHERE session_id = $1 AND id = $2 FOR UPDATE`,
		sessionID, incidentID,
	).Scan(&previous)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, incidents.ErrIncidentNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("lock incident: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE incidents SET problem_id = $3, updated_at = $4 WHERE session_id = $1 AND id = $2`,
		sessionID, incidentID, problemID, at,
	); err != nil {
		return 0, fmt.Errorf("set incident problem: %w", err)
	}

	if previous != nil && *previous != problemID {
		if _, err := tx.Exec(ctx, `
			UPDATE problems SET
				incident_count = (SELECT COUNT(*) FROM incidents WHERE session_id = $1 AND problem_id = $2),
				updated_at = $3
			WHERE session_id = $1 AND id = $2`,
			sessionID, *previous, at,
		); err != nil {
			return 0, fmt.Errorf("recount previous problem: %w", err)
		}
	}

	var count int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM incidents WHERE session_id = $1 AND problem_id = $2`,
		sessionID, problemID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count linked incidents: %w", err)
	}
	return count, nil
}
