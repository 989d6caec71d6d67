// Package timeutil parses and measures the timestamps stored on records.
package timeutil

import (
	"strings"
	"time"
)

// layouts are tried in order. Inputs without a zone are read as UTC.
var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999Z07",
	"2006-01-02 15:04:05.999999999Z07",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	time.DateOnly,
}

// Parse converts an ISO-8601 string into a UTC instant.
// It never fails: malformed or empty input yields ok == false.
func Parse(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if strings.HasSuffix(s, "z") {
		s = s[:len(s)-1] + "Z"
	}

	for _, layout := range layouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// ParsePtr is Parse for optional fields. Nil or unparseable input yields nil.
func ParsePtr(s *string) *time.Time {
	if s == nil {
		return nil
	}
	t, ok := Parse(*s)
	if !ok {
		return nil
	}
	return &t
}

// Format renders t the way it is stored and returned by the API.
func Format(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// MinutesBetween returns to-from in minutes. It reports false when either end is missing.
func MinutesBetween(from, to *time.Time) (float64, bool) {
	if from == nil || to == nil {
		return 0, false
	}
	return to.Sub(*from).Minutes(), true
}

// HoursBetween returns to-from in hours. It reports false when either end is missing.
func HoursBetween(from, to *time.Time) (float64, bool) {
	if from == nil || to == nil {
		return 0, false
	}
	return to.Sub(*from).Hours(), true
}

// Ptr returns a pointer to t.
func Ptr(t time.Time) *time.Time {
	return &t
}
