package domain

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultColor is used for chart entries without a dedicated color.
const DefaultColor = "#777"

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// AllSeverities returns severities ordered from most to least urgent.
func AllSeverities() []Severity {
	return []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}
}

func (s Severity) IsValid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// Rank orders severities for triage. Unknown values sort last.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	default:
		return 99
	}
}

func (s Severity) Color() string {
	switch s {
	case SeverityCritical:
		return "#d9534f"
	case SeverityHigh:
		return "#f0ad4e"
	case SeverityMedium:
		return "#5bc0de"
	default:
		return DefaultColor
	}
}

// Label turns an enum value such as "data_loss" into "Data Loss".
// A cases.Caser is not safe for concurrent use, so each call builds its own.
func Label(value string) string {
	out := []rune(value)
	for i, r := range out {
		if r == '_' {
			out[i] = ' '
		}
	}
	return cases.Title(language.English).String(string(out))
}
