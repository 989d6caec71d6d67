package domain

import "time"

type FixStatus string

const (
	FixStatusOpen        FixStatus = "open"
	FixStatusInProgress  FixStatus = "in_progress"
	FixStatusImplemented FixStatus = "implemented"
	FixStatusVerified    FixStatus = "verified"
)

func (s FixStatus) IsValid() bool {
	switch s {
	case FixStatusOpen, FixStatusInProgress, FixStatusImplemented, FixStatusVerified:
		return true
	}
	return false
}

// Problem is the underlying cause shared by one or more incidents.
type Problem struct {
	ID                   string     `json:"id"`
	SessionID            string     `json:"session_id"`
	ProblemNumber        string     `json:"problem_number"`
	Title                string     `json:"title"`
	Description          string     `json:"description"`
	RootCause            string     `json:"root_cause"`
	RootCauseCategory    string     `json:"root_cause_category"`
	PermanentFix         string     `json:"permanent_fix"`
	FixStatus            FixStatus  `json:"fix_status"`
	FixOwner             string     `json:"fix_owner"`
	FixDueDate           *time.Time `json:"fix_due_date"`
	FixCompletedDate     *time.Time `json:"fix_completed_date"`
	EstimatedCost        *float64   `json:"estimated_cost"`
	IncidentCount        int        `json:"incident_count"`
	TotalDowntimeMinutes *int       `json:"total_downtime_minutes"`
	KnownError           bool       `json:"known_error"`
	WikiURL              string     `json:"wiki_url"`
	Workaround           string     `json:"workaround"`
	Priority             Severity   `json:"priority"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// SLATarget holds per-severity response and resolution targets in minutes.
type SLATarget struct {
	ID                      string   `json:"id"`
	SessionID               string   `json:"session_id"`
	Severity                Severity `json:"severity"`
	ResponseTargetMinutes   *int     `json:"response_target_minutes"`
	ResolutionTargetMinutes *int     `json:"resolution_target_minutes"`
}
