package domain

import "time"

type TimelineEntryType string

const (
	TimelineEntryUpdate        TimelineEntryType = "update"
	TimelineEntryStatusChange  TimelineEntryType = "status_change"
	TimelineEntryAssignment    TimelineEntryType = "assignment"
	TimelineEntryResolution    TimelineEntryType = "resolution"
	TimelineEntryCommunication TimelineEntryType = "communication"
)

func (t TimelineEntryType) IsValid() bool {
	switch t {
	case TimelineEntryUpdate, TimelineEntryStatusChange, TimelineEntryAssignment,
		TimelineEntryResolution, TimelineEntryCommunication:
		return true
	}
	return false
}

// TimelineEntry is an append-only record of something that happened to an incident.
type TimelineEntry struct {
	ID         string            `json:"id"`
	SessionID  string            `json:"session_id"`
	IncidentID string            `json:"incident_id"`
	Type       TimelineEntryType `json:"entry_type"`
	Content    string            `json:"content"`
	Author     string            `json:"author"`
	OldStatus  *IncidentStatus   `json:"old_status"`
	NewStatus  *IncidentStatus   `json:"new_status"`
	CreatedAt  time.Time         `json:"created_at"`
}

// ActivityEntry is a timeline entry joined with the incident number for feeds.
type ActivityEntry struct {
	TimelineEntry
	IncidentNumber string `json:"incident_number"`
}
