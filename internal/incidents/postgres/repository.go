// Package postgres provides PostgreSQL implementation of incidents repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/incident-tracker/internal/domain"
	"github.com/bissquit/incident-tracker/internal/incidents"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is an interface for database operations that both *pgxpool.Pool and pgx.Tx implement.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository implements incidents.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const incidentColumns = `
	id, session_id, incident_number, title, description, severity, category, status,
	reported_at, detected_at, acknowledged_at, resolved_at, closed_at,
	impact_description, users_affected, business_impact, data_breach,
	reported_by, assigned_to, resolved_by, resolution_summary, root_cause, workaround,
	problem_id, wiki_url, post_incident_completed, lessons_learned, preventive_actions,
	tags, created_at, updated_at`

func scanIncident(row pgx.Row) (*domain.Incident, error) {
	var inc domain.Incident
	err := row.Scan(
		&inc.ID,
		&inc.SessionID,
		&inc.IncidentNumber,
		&inc.Title,
		&inc.Description,
		&inc.Severity,
		&inc.Category,
		&inc.Status,
		&inc.ReportedAt,
		&inc.DetectedAt,
		&inc.AcknowledgedAt,
		&inc.ResolvedAt,
		&inc.ClosedAt,
		&inc.ImpactDescription,
		&inc.UsersAffected,
		&inc.BusinessImpact,
		&inc.DataBreach,
		&inc.ReportedBy,
		&inc.AssignedTo,
		&inc.ResolvedBy,
		&inc.ResolutionSummary,
		&inc.RootCause,
		&inc.Workaround,
		&inc.ProblemID,
		&inc.WikiURL,
		&inc.PostIncidentCompleted,
		&inc.LessonsLearned,
		&inc.PreventiveActions,
		&inc.Tags,
		&inc.CreatedAt,
		&inc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if inc.Tags == nil {
		inc.Tags = make([]string, 0)
	}
	return &inc, nil
}

func collectIncidents(rows pgx.Rows) ([]*domain.Incident, error) {
	defer rows.Close()

	list := make([]*domain.Incident, 0)
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		list = append(list, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incidents: %w", err)
	}
	return list, nil
}

func (r *Repository) getIncident(ctx context.Context, q querier, sessionID, id string, forUpdate bool) (*domain.Incident, error) {
	// a malformed id cannot match a row
	if _, err := uuid.Parse(id); err != nil {
		return nil, incidents.ErrIncidentNotFound
	}
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE session_id = $1 AND id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	inc, err := scanIncident(q.QueryRow(ctx, query, sessionID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, incidents.ErrIncidentNotFound
		}
		return nil, fmt.Errorf("get incident: %w", err)
	}
	return inc, nil
}

// GetIncident retrieves an incident by ID.
func (r *Repository) GetIncident(ctx context.Context, sessionID, id string) (*domain.Incident, error) {
	return r.getIncident(ctx, r.db, sessionID, id, false)
}

// GetIncidentForUpdateTx retrieves an incident and locks its row until tx ends.
func (r *Repository) GetIncidentForUpdateTx(ctx context.Context, tx pgx.Tx, sessionID, id string) (*domain.Incident, error) {
	return r.getIncident(ctx, tx, sessionID, id, true)
}

// ListIncidents retrieves a page of incidents matching filter, with the total count.
func (r *Repository) ListIncidents(ctx context.Context, filter incidents.IncidentFilter) ([]*domain.Incident, int, error) {
	where := ` WHERE session_id = $1`
	args := []interface{}{filter.SessionID}
	argNum := 2

	if filter.Status != nil {
		where += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, *filter.Status)
		argNum++
	}

	if filter.Severity != nil {
		where += fmt.Sprintf(" AND severity = $%d", argNum)
		args = append(args, *filter.Severity)
		argNum++
	}

	if filter.Category != nil {
		where += fmt.Sprintf(" AND category = $%d", argNum)
		args = append(args, *filter.Category)
		argNum++
	}

	if filter.AssignedTo != "" {
		where += fmt.Sprintf(" AND assigned_to ILIKE $%d", argNum)
		args = append(args, "%"+filter.AssignedTo+"%")
		argNum++
	}

	if filter.Search != "" {
		where += fmt.Sprintf(" AND (title ILIKE $%d OR description ILIKE $%d OR incident_number ILIKE $%d)", argNum, argNum, argNum)
		args = append(args, "%"+filter.Search+"%")
		argNum++
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM incidents`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count incidents: %w", err)
	}

	query := `SELECT ` + incidentColumns + ` FROM incidents` + where +
		` ORDER BY reported_at DESC NULLS LAST, created_at DESC`

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
		return nil, 0, fmt.Errorf("list incidents: %w", err)
	}
	list, err := collectIncidents(rows)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// ListAllIncidents retrieves every incident in the session.
func (r *Repository) ListAllIncidents(ctx context.Context, sessionID string) ([]*domain.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE session_id = $1 ORDER BY reported_at DESC NULLS LAST`
	rows, err := r.db.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list all incidents: %w", err)
	}
	return collectIncidents(rows)
}

// ListIncidentsByProblem retrieves incidents linked to a problem.
func (r *Repository) ListIncidentsByProblem(ctx context.Context, sessionID, problemID string) ([]*domain.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents
		WHERE session_id = $1 AND problem_id = $2
		ORDER BY reported_at DESC NULLS LAST`
	rows, err := r.db.Query(ctx, query, sessionID, problemID)
	if err != nil {
		return nil, fmt.Errorf("list incidents by problem: %w", err)
	}
	return collectIncidents(rows)
}

// BeginTx starts a new transaction.
func (r *Repository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.db.Begin(ctx)
}

// CreateIncidentTx inserts an incident within a transaction.
func (r *Repository) CreateIncidentTx(ctx context.Context, tx pgx.Tx, inc *domain.Incident) error {
	query := `
		INSERT INTO incidents (
			id, session_id, incident_number, title, description, severity, category, status,
			reported_at, detected_at, acknowledged_at, resolved_at, closed_at,
			impact_description, users_affected, business_impact, data_breach,
			reported_by, assigned_to, resolved_by, resolution_summary, root_cause, workaround,
			problem_id, wiki_url, post_incident_completed, lessons_learned, preventive_actions,
			tags, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12, $13,
			$14, $15, $16, $17,
			$18, $19, $20, $21, $22, $23,
			$24, $25, $26, $27, $28,
			$29, $30, $31
		)
	`
	_, err := tx.Exec(ctx, query,
		inc.ID,
		inc.SessionID,
		inc.IncidentNumber,
		inc.Title,
		inc.Description,
		inc.Severity,
		inc.Category,
		inc.Status,
		inc.ReportedAt,
		inc.DetectedAt,
		inc.AcknowledgedAt,
		inc.ResolvedAt,
		inc.ClosedAt,
		inc.ImpactDescription,
		inc.UsersAffected,
		inc.BusinessImpact,
		inc.DataBreach,
		inc.ReportedBy,
		inc.AssignedTo,
		inc.ResolvedBy,
		inc.ResolutionSummary,
		inc.RootCause,
		inc.Workaround,
		inc.ProblemID,
		inc.WikiURL,
		inc.PostIncidentCompleted,
		inc.LessonsLearned,
		inc.PreventiveActions,
		inc.Tags,
		inc.CreatedAt,
		inc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert incident: %w", err)
	}
	return nil
}

// UpdateIncidentTx writes every mutable column of an incident within a transaction.
func (r *Repository) UpdateIncidentTx(ctx context.Context, tx pgx.Tx, inc *domain.Incident) error {
	query := `
		UPDATE incidents SET
			title = $3, description = $4, severity = $5, category = $6, status = $7,
			reported_at = $8, detected_at = $9, acknowledged_at = $10, resolved_at = $11, closed_at = $12,
			impact_description = $13, users_affected = $14, business_impact = $15, data_breach = $16,
			reported_by = $17, assigned_to = $18, resolved_by = $19, resolution_summary = $20,
			root_cause = $21, workaround = $22, problem_id = $23, wiki_url = $24,
			post_incident_completed = $25, lessons_learned = $26, preventive_actions = $27,
			tags = $28, updated_at = $29
		WHERE session_id = $1 AND id = $2
	`
	result, err := tx.Exec(ctx, query,
		inc.SessionID,
		inc.ID,
		inc.Title,
		inc.Description,
		inc.Severity,
		inc.Category,
		inc.Status,
		inc.ReportedAt,
		inc.DetectedAt,
		inc.AcknowledgedAt,
		inc.ResolvedAt,
		inc.ClosedAt,
		inc.ImpactDescription,
		inc.UsersAffected,
		inc.BusinessImpact,
		inc.DataBreach,
		inc.ReportedBy,
		inc.AssignedTo,
		inc.ResolvedBy,
		inc.ResolutionSummary,
		inc.RootCause,
		inc.Workaround,
		inc.ProblemID,
		inc.WikiURL,
		inc.PostIncidentCompleted,
		inc.LessonsLearned,
		inc.PreventiveActions,
		inc.Tags,
		inc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update incident: %w", err)
	}
	if result.RowsAffected() == 0 {
		return incidents.ErrIncidentNotFound
	}
	return nil
}

// TouchIncidentTx sets updated_at of an incident within a transaction.
func (r *Repository) TouchIncidentTx(ctx context.Context, tx pgx.Tx, sessionID, id string, at time.Time) error {
	result, err := tx.Exec(ctx,
		`UPDATE incidents SET updated_at = $3 WHERE session_id = $1 AND id = $2`,
		sessionID, id, at,
	)
	if err != nil {
		return fmt.Errorf("touch incident: %w", err)
	}
	if result.RowsAffected() == 0 {
		return incidents.ErrIncidentNotFound
	}
	return nil
}

// LockProblemTx locks a problem row of the session until tx ends.
func (r *Repository) LockProblemTx(ctx context.Context, tx pgx.Tx, sessionID, problemID string) error {
	if _, err := uuid.Parse(problemID); err != nil {
		return incidents.ErrProblemNotFound
	}
	var one int
	err := tx.QueryRow(ctx,
		`SELECT 1 FROM problems WHERE session_id = $1 AND id = $2 FOR UPDATE`,
		sessionID, problemID,
	).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return incidents.ErrProblemNotFound
	}
	if err != nil {
		return fmt.Errorf("lock problem: %w", err)
	}
	return nil
}

// RecountProblemTx sets a problem's incident_count to its linked incidents.
func (r *Repository) RecountProblemTx(ctx context.Context, tx pgx.Tx, sessionID, problemID string, at time.Time) error {
	result, err := tx.Exec(ctx, `
		UPDATE problems SET
			incident_count = (
				SELECT COUNT(*) FROM incidents WHERE session_id = $1 AND problem_id = $2
			),
			updated_at = $3
		WHERE session_id = $1 AND id = $2`,
		sessionID, problemID, at,
	)
	if err != nil {
		return fmt.Errorf("recount problem: %w", err)
	}
	if result.RowsAffected() == 0 {
		return incidents.ErrProblemNotFound
	}
	return nil
}

// CreateTimelineEntryTx appends a timeline entry within a transaction.
func (r *Repository) CreateTimelineEntryTx(ctx context.Context, tx pgx.Tx, entry *domain.TimelineEntry) error {
	query := `
		INSERT INTO timeline_entries (
			id, session_id, incident_id, entry_type, content, author, old_status, new_status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := tx.Exec(ctx, query,
		entry.ID,
		entry.SessionID,
		entry.IncidentID,
		entry.Type,
		entry.Content,
		entry.Author,
		entry.OldStatus,
		entry.NewStatus,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert timeline entry: %w", err)
	}
	return nil
}

// ListTimeline retrieves the timeline of an incident, oldest first.
func (r *Repository) ListTimeline(ctx context.Context, sessionID, incidentID string) ([]*domain.TimelineEntry, error) {
	query := `
		SELECT id, session_id, incident_id, entry_type, content, author, old_status, new_status, created_at
		FROM timeline_entries
		WHERE session_id = $1 AND incident_id = $2
		ORDER BY created_at ASC, id ASC
	`
	rows, err := r.db.Query(ctx, query, sessionID, incidentID)
	if err != nil {
		return nil, fmt.Errorf("list timeline: %w", err)
	}
	defer rows.Close()

	entries := make([]*domain.TimelineEntry, 0)
	for rows.Next() {
		var e domain.TimelineEntry
		if err := rows.Scan(
			&e.ID, &e.SessionID, &e.IncidentID, &e.Type, &e.Content, &e.Author,
			&e.OldStatus, &e.NewStatus, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan timeline entry: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// ListRecentActivity retrieves the newest timeline entries of the session with incident numbers.
func (r *Repository) ListRecentActivity(ctx context.Context, sessionID string, limit int) ([]*domain.ActivityEntry, error) {
	query := `
		SELECT t.id, t.session_id, t.incident_id, t.entry_type, t.content, t.author,
			t.old_status, t.new_status, t.created_at, i.incident_number
		FROM timeline_entries t
		JOIN incidents i ON i.id = t.incident_id
		WHERE t.session_id = $1
		ORDER BY t.created_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent activity: %w", err)
	}
	defer rows.Close()

	entries := make([]*domain.ActivityEntry, 0)
	for rows.Next() {
		var e domain.ActivityEntry
		if err := rows.Scan(
			&e.ID, &e.SessionID, &e.IncidentID, &e.Type, &e.Content, &e.Author,
			&e.OldStatus, &e.NewStatus, &e.CreatedAt, &e.IncidentNumber,
		); err != nil {
			return nil, fmt.Errorf("scan activity entry: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// CreateResponder attaches a responder to an incident.
func (r *Repository) CreateResponder(ctx context.Context, responder *domain.Responder) error {
	return createResponder(ctx, r.db, responder)
}

// CreateResponderTx adds a responder within a transaction.
func (r *Repository) CreateResponderTx(ctx context.Context, tx pgx.Tx, responder *domain.Responder) error {
	return createResponder(ctx, tx, responder)
}

func createResponder(ctx context.Context, q querier, responder *domain.Responder) error {
	query := `
		INSERT INTO incident_responders (id, session_id, incident_id, person_name, role, assigned_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := q.Exec(ctx, query,
		responder.ID, responder.SessionID, responder.IncidentID,
		responder.PersonName, responder.Role, responder.AssignedAt,
	)
	if err != nil {
		return fmt.Errorf("insert responder: %w", err)
	}
	return nil
}

// ListResponders retrieves the responders of an incident.
func (r *Repository) ListResponders(ctx context.Context, sessionID, incidentID string) ([]*domain.Responder, error) {
	query := `
		SELECT id, session_id, incident_id, person_name, role, assigned_at
		FROM incident_responders
		WHERE session_id = $1 AND incident_id = $2
		ORDER BY assigned_at ASC
	`
	rows, err := r.db.Query(ctx, query, sessionID, incidentID)
	if err != nil {
		return nil, fmt.Errorf("list responders: %w", err)
	}
	defer rows.Close()

	list := make([]*domain.Responder, 0)
	for rows.Next() {
		var res domain.Responder
		if err := rows.Scan(&res.ID, &res.SessionID, &res.IncidentID, &res.PersonName, &res.Role, &res.AssignedAt); err != nil {
			return nil, fmt.Errorf("scan responder: %w", err)
		}
		list = append(list, &res)
	}
	return list, rows.Err()
}

// CreateCommunicationTx stores an outbound message within a transaction.
func (r *Repository) CreateCommunicationTx(ctx context.Context, tx pgx.Tx, comm *domain.Communication) error {
	query := `
		INSERT INTO communications (id, session_id, incident_id, channel, recipient, message, sent_at, sent_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := tx.Exec(ctx, query,
		comm.ID, comm.SessionID, comm.IncidentID,
		comm.Channel, comm.Recipient, comm.Message, comm.SentAt, comm.SentBy,
	)
	if err != nil {
		return fmt.Errorf("insert communication: %w", err)
	}
	return nil
}

// ListCommunications retrieves the messages sent about an incident.
func (r *Repository) ListCommunications(ctx context.Context, sessionID, incidentID string) ([]*domain.Communication, error) {
	query := `
		SELECT id, session_id, incident_id, channel, recipient, message, sent_at, sent_by
		FROM communications
		WHERE session_id = $1 AND incident_id = $2
		ORDER BY sent_at ASC
	`
	rows, err := r.db.Query(ctx, query, sessionID, incidentID)
	if err != nil {
		return nil, fmt.Errorf("list communications: %w", err)
	}
	defer rows.Close()

	list := make([]*domain.Communication, 0)
	for rows.Next() {
		var c domain.Communication
		if err := rows.Scan(&c.ID, &c.SessionID, &c.IncidentID, &c.Channel, &c.Recipient, &c.Message, &c.SentAt, &c.SentBy); err != nil {
			return nil, fmt.Errorf("scan communication: %w", err)
		}
		list = append(list, &c)
	}
	return list, rows.Err()
}

// CreateAsset records an affected asset.
func (r *Repository) CreateAsset(ctx context.Context, asset *domain.Asset) error {
	return createAsset(ctx, r.db, asset)
}

// CreateAssetTx records an affected asset within a transaction.
func (r *Repository) CreateAssetTx(ctx context.Context, tx pgx.Tx, asset *domain.Asset) error {
	return createAsset(ctx, tx, asset)
}

func createAsset(ctx context.Context, q querier, asset *domain.Asset) error {
	query := `
		INSERT INTO incident_assets (id, session_id, incident_id, asset_tracker_id, asset_name, asset_type, impact_type, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := q.Exec(ctx, query,
		asset.ID, asset.SessionID, asset.IncidentID,
		asset.AssetTrackerID, asset.AssetName, asset.AssetType, asset.ImpactType, asset.Notes,
	)
	if err != nil {
		return fmt.Errorf("insert asset: %w", err)
	}
	return nil
}

// ListAssets retrieves the assets affected by an incident.
func (r *Repository) ListAssets(ctx context.Context, sessionID, incidentID string) ([]*domain.Asset, error) {
	query := `
		SELECT id, session_id, incident_id, asset_tracker_id, asset_name, asset_type, impact_type, notes
		FROM incident_assets
		WHERE session_id = $1 AND incident_id = $2
		ORDER BY asset_name ASC
	`
	rows, err := r.db.Query(ctx, query, sessionID, incidentID)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	list := make([]*domain.Asset, 0)
	for rows.Next() {
		var a domain.Asset
		if err := rows.Scan(&a.ID, &a.SessionID, &a.IncidentID, &a.AssetTrackerID, &a.AssetName, &a.AssetType, &a.ImpactType, &a.Notes); err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		list = append(list, &a)
	}
	return list, rows.Err()
}
