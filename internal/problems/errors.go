package problems

import (
	"errors"

	"github.com/bissquit/incident-tracker/internal/incidents"
)

// Validation errors.
var (
	ErrTitleRequired    = errors.New("title is required")
	ErrInvalidFixStatus = errors.New("invalid fix status")
	ErrInvalidPriority  = errors.New("invalid priority")
	ErrNegativeValue    = errors.New("value must not be negative")
)

// ErrProblemNotFound is shared with incidents, which checks problem_id on update.
var ErrProblemNotFound = incidents.ErrProblemNotFound

// IsValidationError reports whether err is caused by invalid input.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrTitleRequired) ||
		errors.Is(err, ErrInvalidFixStatus) ||
		errors.Is(err, ErrInvalidPriority) ||
		errors.Is(err, ErrNegativeValue)
}
