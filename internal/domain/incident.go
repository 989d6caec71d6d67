package domain

import "time"

// DefaultSessionID scopes records created without an explicit session.
const DefaultSessionID = "__default__"

type IncidentStatus string

const (
	IncidentStatusOpen          IncidentStatus = "open"
	IncidentStatusInvestigating IncidentStatus = "investigating"
	IncidentStatusIdentified    IncidentStatus = "identified"
	IncidentStatusMonitoring    IncidentStatus = "monitoring"
	IncidentStatusResolved      IncidentStatus = "resolved"
	IncidentStatusClosed        IncidentStatus = "closed"
)

// AllIncidentStatuses returns statuses in lifecycle order.
func AllIncidentStatuses() []IncidentStatus {
	return []IncidentStatus{
		IncidentStatusOpen,
		IncidentStatusInvestigating,
		IncidentStatusIdentified,
		IncidentStatusMonitoring,
		IncidentStatusResolved,
		IncidentStatusClosed,
	}
}

func (s IncidentStatus) IsValid() bool {
	switch s {
	case IncidentStatusOpen, IncidentStatusInvestigating, IncidentStatusIdentified,
		IncidentStatusMonitoring, IncidentStatusResolved, IncidentStatusClosed:
		return true
	}
	return false
}

// IsResolved reports whether the status ends the active lifecycle.
func (s IncidentStatus) IsResolved() bool {
	return s == IncidentStatusResolved || s == IncidentStatusClosed
}

func (s IncidentStatus) IsActive() bool {
	return !s.IsResolved()
}

// Color returns the chart color used on the dashboard.
func (s IncidentStatus) Color() string {
	switch s {
	case IncidentStatusOpen:
		return "#d9534f"
	case IncidentStatusInvestigating:
		return "#f0ad4e"
	case IncidentStatusIdentified:
		return "#5bc0de"
	case IncidentStatusMonitoring:
		return "#5cb85c"
	case IncidentStatusResolved:
		return "#337ab7"
	default:
		return DefaultColor
	}
}

type Category string

const (
	CategoryOutage      Category = "outage"
	CategoryDegradation Category = "degradation"
	CategorySecurity    Category = "security"
	CategoryDataLoss    Category = "data_loss"
	CategoryAccessIssue Category = "access_issue"
	CategoryOther       Category = "other"
)

func AllCategories() []Category {
	return []Category{
		CategoryOutage,
		CategoryDegradation,
		CategorySecurity,
		CategoryDataLoss,
		CategoryAccessIssue,
		CategoryOther,
	}
}

func (c Category) IsValid() bool {
	switch c {
	case CategoryOutage, CategoryDegradation, CategorySecurity,
		CategoryDataLoss, CategoryAccessIssue, CategoryOther:
		return true
	}
	return false
}

func (c Category) Color() string {
	switch c {
	case CategoryOutage:
		return "#d9534f"
	case CategoryDegradation:
		return "#f0ad4e"
	case CategorySecurity:
		return "#8B0000"
	case CategoryDataLoss:
		return "#5bc0de"
	case CategoryAccessIssue:
		return "#337ab7"
	default:
		return DefaultColor
	}
}

// Incident is a tracked disruption with its lifecycle timestamps.
type Incident struct {
	ID             string         `json:"id"`
	SessionID      string         `json:"session_id"`
	IncidentNumber string         `json:"incident_number"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	Severity       Severity       `json:"severity"`
	Category       Category       `json:"category"`
	Status         IncidentStatus `json:"status"`

	ReportedAt     *time.Time `json:"reported_at"`
	DetectedAt     *time.Time `json:"detected_at"`
	AcknowledgedAt *time.Time `json:"acknowledged_at"`
	ResolvedAt     *time.Time `json:"resolved_at"`
	ClosedAt       *time.Time `json:"closed_at"`

	ImpactDescription string `json:"impact_description"`
	UsersAffected     *int   `json:"users_affected"`
	BusinessImpact    string `json:"business_impact"`
	DataBreach        bool   `json:"data_breach"`

	ReportedBy        string `json:"reported_by"`
	AssignedTo        string `json:"assigned_to"`
	ResolvedBy        string `json:"resolved_by"`
	ResolutionSummary string `json:"resolution_summary"`
	RootCause         string `json:"root_cause"`
	Workaround        string `json:"workaround"`

	ProblemID             *string `json:"problem_id"`
	WikiURL               string  `json:"wiki_url"`
	PostIncidentCompleted bool    `json:"post_incident_completed"`
	LessonsLearned        string  `json:"lessons_learned"`
	PreventiveActions     string  `json:"preventive_actions"`

	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Responder is a person working an incident.
type Responder struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	IncidentID string    `json:"incident_id"`
	PersonName string    `json:"person_name"`
	Role       string    `json:"role"`
	AssignedAt time.Time `json:"assigned_at"`
}

// Communication is an outbound message sent about an incident.
type Communication struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	IncidentID string    `json:"incident_id"`
	Channel    string    `json:"channel"`
	Recipient  string    `json:"recipient"`
	Message    string    `json:"message"`
	SentAt     time.Time `json:"sent_at"`
	SentBy     string    `json:"sent_by"`
}

// Asset is an inventory item affected by an incident.
type Asset struct {
	ID             string `json:"id"`
	SessionID      string `json:"session_id"`
	IncidentID     string `json:"incident_id"`
	AssetTrackerID string `json:"asset_tracker_id"`
	AssetName      string `json:"asset_name"`
	AssetType      string `json:"asset_type"`
	ImpactType     string `json:"impact_type"`
	Notes          string `json:"notes"`
}
