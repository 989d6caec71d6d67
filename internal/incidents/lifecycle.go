package incidents

import (
	"fmt"
	"strings"
	"time"

	"github.com/bissquit/incident-tracker/internal/domain"
	"github.com/google/uuid"
)

// SystemAuthor is recorded on timeline entries without an explicit author.
const SystemAuthor = "System"

// Lifecycle applies state transitions to incidents and produces the matching
// timeline entries. It does not persist anything.
type Lifecycle struct {
	now   func() time.Time
	newID func() string
}

// NewLifecycle creates a lifecycle manager using the wall clock.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// WithClock overrides the clock.
func (l *Lifecycle) WithClock(now func() time.Time) *Lifecycle {
	l.now = now
	return l
}

// Now returns the current time as seen by the lifecycle.
func (l *Lifecycle) Now() time.Time {
	return l.now()
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func statusPtr(s domain.IncidentStatus) *domain.IncidentStatus {
	return &s
}

func (l *Lifecycle) entry(inc *domain.Incident, typ domain.TimelineEntryType, content, author string, ts time.Time) *domain.TimelineEntry {
	return &domain.TimelineEntry{
		ID:         l.newID(),
		SessionID:  inc.SessionID,
		IncidentID: inc.ID,
		Type:       typ,
		Content:    content,
		Author:     orDefault(author, SystemAuthor),
		CreatedAt:  ts,
	}
}

// NewIncidentEntry returns the initial timeline entry for a freshly created incident.
func (l *Lifecycle) NewIncidentEntry(inc *domain.Incident) *domain.TimelineEntry {
	return l.entry(inc, domain.TimelineEntryUpdate,
		fmt.Sprintf("Incident created: %s", inc.Title), inc.ReportedBy, inc.CreatedAt)
}

// ApplyStatusChange moves inc to status. Any valid status may follow any other.
//
// Moving to investigating sets AcknowledgedAt only if it is unset. Moving to
// resolved or closed always overwrites ResolvedAt or ClosedAt.
func (l *Lifecycle) ApplyStatusChange(inc *domain.Incident, status domain.IncidentStatus, author, content string) (*domain.TimelineEntry, error) {
	if !status.IsValid() {
		return nil, ErrInvalidStatus
	}

	now := l.now()
	old := inc.Status
	inc.Status = status

	switch status {
	case domain.IncidentStatusInvestigating:
		if inc.AcknowledgedAt == nil {
			inc.AcknowledgedAt = &now
		}
	case domain.IncidentStatusResolved:
		inc.ResolvedAt = &now
	case domain.IncidentStatusClosed:
		inc.ClosedAt = &now
	}
	inc.UpdatedAt = now

	content = orDefault(content, fmt.Sprintf("Status changed from %s to %s", old, status))
	e := l.entry(inc, domain.TimelineEntryStatusChange, content, author, now)
	e.OldStatus = statusPtr(old)
	e.NewStatus = statusPtr(status)
	return e, nil
}

// ApplyAssignment sets the assignee of inc.
func (l *Lifecycle) ApplyAssignment(inc *domain.Incident, assignee, author string) (*domain.TimelineEntry, error) {
	if strings.TrimSpace(assignee) == "" {
		return nil, ErrAssigneeRequired
	}

	now := l.now()
	previous := inc.AssignedTo
	inc.AssignedTo = assignee
	inc.UpdatedAt = now

	content := fmt.Sprintf("Assigned to %s", assignee)
	if previous != "" {
		content = fmt.Sprintf("Reassigned from %s to %s", previous, assignee)
	}
	return l.entry(inc, domain.TimelineEntryAssignment, content, author, now), nil
}

// ResolutionInput carries the optional fields of a resolution.
type ResolutionInput struct {
	ResolvedAt *time.Time
	ResolvedBy string
	Summary    string
	RootCause  *string
}

// ApplyResolution resolves inc regardless of its current status.
// ResolvedBy and the summary are overwritten even when empty; the root cause
// is kept unless a new one is supplied.
func (l *Lifecycle) ApplyResolution(inc *domain.Incident, in ResolutionInput) *domain.TimelineEntry {
	now := l.now()
	old := inc.Status

	resolvedAt := now
	if in.ResolvedAt != nil {
		resolvedAt = in.ResolvedAt.UTC()
	}

	inc.Status = domain.IncidentStatusResolved
	inc.ResolvedAt = &resolvedAt
	inc.ResolvedBy = in.ResolvedBy
	inc.ResolutionSummary = in.Summary
	if in.RootCause != nil {
		inc.RootCause = *in.RootCause
	}
	inc.UpdatedAt = now

	e := l.entry(inc, domain.TimelineEntryResolution, orDefault(in.Summary, "Incident resolved"), in.ResolvedBy, now)
	e.OldStatus = statusPtr(old)
	e.NewStatus = statusPtr(domain.IncidentStatusResolved)
	return e
}

// ApplyNote appends a free-form entry to the timeline of inc. A nil at means now.
func (l *Lifecycle) ApplyNote(inc *domain.Incident, typ domain.TimelineEntryType, content, author string, at *time.Time) *domain.TimelineEntry {
	now := l.now()
	inc.UpdatedAt = now

	ts := now
	if at != nil {
		ts = at.UTC()
	}
	return l.entry(inc, typ, content, author, ts)
}

// ApplyCommunication records an outbound message on the timeline of inc.
func (l *Lifecycle) ApplyCommunication(inc *domain.Incident, comm *domain.Communication) *domain.TimelineEntry {
	now := l.now()
	inc.UpdatedAt = now

	content := fmt.Sprintf("Sent via %s", orDefault(comm.Channel, "unknown channel"))
	if comm.Recipient != "" {
		content += fmt.Sprintf(" to %s", comm.Recipient)
	}
	return l.entry(inc, domain.TimelineEntryCommunication, content, comm.SentBy, now)
}
