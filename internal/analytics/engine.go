// Package analytics derives operational metrics from incident records.
package analytics

import (
	"strconv"

	"github.com/bissquit/incident-tracker/internal/domain"
	"github.com/bissquit/incident-tracker/internal/pkg/timeutil"
)

// Round rounds x to the given number of decimal places, ties to even on the
// exact binary value.
func Round(x float64, places int) float64 {
	v, err := strconv.ParseFloat(strconv.FormatFloat(x, 'f', places, 64), 64)
	if err != nil {
		return x
	}
	return v
}

// resolvedWithTimes reports whether inc counts toward resolution metrics.
func resolvedWithTimes(inc *domain.Incident) bool {
	return inc.Status.IsResolved() && inc.ReportedAt != nil && inc.ResolvedAt != nil
}

// MTTR returns the mean time to resolve in hours, rounded to 2 places.
// Negative durations are discarded. Returns 0 when nothing qualifies.
func MTTR(incidents []*domain.Incident) float64 {
	var total float64
	count := 0
	for _, inc := range incidents {
		if !resolvedWithTimes(inc) {
			continue
		}
		hours, ok := timeutil.HoursBetween(inc.ReportedAt, inc.ResolvedAt)
		if !ok || hours < 0 {
			continue
		}
		total += hours
		count++
	}
	if count == 0 {
		return 0
	}
	return Round(total/float64(count), 2)
}

// MTTA returns the mean time to acknowledge in minutes, rounded to 2 places.
// Status is not considered. Negative durations are discarded.
func MTTA(incidents []*domain.Incident) float64 {
	var total float64
	count := 0
	for _, inc := range incidents {
		minutes, ok := timeutil.MinutesBetween(inc.ReportedAt, inc.AcknowledgedAt)
		if !ok || minutes < 0 {
			continue
		}
		total += minutes
		count++
	}
	if count == 0 {
		return 0
	}
	return Round(total/float64(count), 2)
}

// targetIndex maps severities to their SLA targets.
func targetIndex(targets []*domain.SLATarget) map[domain.Severity]*domain.SLATarget {
	idx := make(map[domain.Severity]*domain.SLATarget, len(targets))
	for _, t := range targets {
		idx[t.Severity] = t
	}
	return idx
}

// withinResolutionTarget reports whether inc met its resolution target.
// Incidents without an applicable target are compliant.
func withinResolutionTarget(inc *domain.Incident, target *domain.SLATarget) (minutes float64, compliant bool) {
	minutes, _ = timeutil.MinutesBetween(inc.ReportedAt, inc.ResolvedAt)
	if target == nil || target.ResolutionTargetMinutes == nil || *target.ResolutionTargetMinutes == 0 {
		return minutes, true
	}
	return minutes, minutes <= float64(*target.ResolutionTargetMinutes)
}

// SLACompliance returns the percentage of resolved incidents that met their
// resolution target, rounded to 1 place. Negative durations count as compliant.
func SLACompliance(incidents []*domain.Incident, targets []*domain.SLATarget) float64 {
	if len(targets) == 0 {
		return 100.0
	}
	idx := targetIndex(targets)

	total, compliant := 0, 0
	for _, inc := range incidents {
		if !resolvedWithTimes(inc) {
			continue
		}
		total++
		if _, ok := withinResolutionTarget(inc, idx[inc.Severity]); ok {
			compliant++
		}
	}
	return percent(compliant, total)
}

func percent(part, total int) float64 {
	if total == 0 {
		return 100.0
	}
	return Round(float64(part)/float64(total)*100.0, 1)
}

// BreachedIncident describes an incident that missed its target.
type BreachedIncident struct {
	IncidentNumber string  `json:"incident_number"`
	Title          string  `json:"title"`
	Minutes        float64 `json:"resolution_minutes"`
	TargetMinutes  int     `json:"target_minutes"`
}

// SeverityCompliance is the SLA result for one severity.
type SeverityCompliance struct {
	Severity                domain.Severity    `json:"severity"`
	ResponseTargetMinutes   *int               `json:"response_target_minutes"`
	ResolutionTargetMinutes *int               `json:"resolution_target_minutes"`
	TotalIncidents          int                `json:"total_incidents"`
	Compliant               int                `json:"compliant"`
	Breached                int                `json:"breached"`
	CompliancePct           float64            `json:"compliance_pct"`
	BreachedIncidents       []BreachedIncident `json:"breached_incidents"`
}

// SLABreakdown computes resolution compliance for every severity that has a
// target, in rank order.
func SLABreakdown(incidents []*domain.Incident, targets []*domain.SLATarget) []SeverityCompliance {
	idx := targetIndex(targets)
	out := make([]SeverityCompliance, 0, len(idx))

	for _, sev := range domain.AllSeverities() {
		target, ok := idx[sev]
		if !ok {
			continue
		}
		row := SeverityCompliance{
			Severity:                sev,
			ResponseTargetMinutes:   target.ResponseTargetMinutes,
			ResolutionTargetMinutes: target.ResolutionTargetMinutes,
			BreachedIncidents:       make([]BreachedIncident, 0),
		}
		for _, inc := range incidents {
			if inc.Severity != sev || !resolvedWithTimes(inc) {
				continue
			}
			row.TotalIncidents++
			minutes, ok := withinResolutionTarget(inc, target)
			if ok {
				row.Compliant++
				continue
			}
			row.BreachedIncidents = append(row.BreachedIncidents, BreachedIncident{
				IncidentNumber: inc.IncidentNumber,
				Title:          inc.Title,
				Minutes:        Round(minutes, 1),
				TargetMinutes:  *target.ResolutionTargetMinutes,
			})
		}
		row.Breached = row.TotalIncidents - row.Compliant
		row.CompliancePct = percent(row.Compliant, row.TotalIncidents)
		out = append(out, row)
	}
	return out
}

// ResponseCompliance is the acknowledgement SLA result for one severity.
type ResponseCompliance struct {
	Severity              domain.Severity `json:"severity"`
	ResponseTargetMinutes *int            `json:"response_target_minutes"`
	TotalIncidents        int             `json:"total_incidents"`
	Compliant             int             `json:"compliant"`
	Breached              int             `json:"breached"`
	CompliancePct         float64         `json:"compliance_pct"`
}

// ResponseBreakdown measures acknowledgement time against response targets
// for every severity that has one. Unacknowledged incidents are not counted.
func ResponseBreakdown(incidents []*domain.Incident, targets []*domain.SLATarget) []ResponseCompliance {
	idx := targetIndex(targets)
	out := make([]ResponseCompliance, 0, len(idx))

	for _, sev := range domain.AllSeverities() {
		target, ok := idx[sev]
		if !ok || target.ResponseTargetMinutes == nil {
			continue
		}
		row := ResponseCompliance{Severity: sev, ResponseTargetMinutes: target.ResponseTargetMinutes}
		for _, inc := range incidents {
			if inc.Severity != sev {
				continue
			}
			minutes, ok := timeutil.MinutesBetween(inc.ReportedAt, inc.AcknowledgedAt)
			if !ok {
				continue
			}
			row.TotalIncidents++
			if minutes <= float64(*target.ResponseTargetMinutes) {
				row.Compliant++
			}
		}
		row.Breached = row.TotalIncidents - row.Compliant
		row.CompliancePct = percent(row.Compliant, row.TotalIncidents)
		out = append(out, row)
	}
	return out
}
