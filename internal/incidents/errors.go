package incidents

import "errors"

// Validation errors.
var (
	ErrTitleRequired      = errors.New("title is required")
	ErrInvalidSeverity    = errors.New("invalid severity")
	ErrInvalidCategory    = errors.New("invalid category")
	ErrInvalidStatus      = errors.New("invalid status")
	ErrAssigneeRequired   = errors.New("assigned_to is required")
	ErrContentRequired    = errors.New("content is required")
	ErrInvalidEntryType   = errors.New("invalid entry type")
	ErrPersonNameRequired = errors.New("person_name is required")
	ErrAssetNameRequired  = errors.New("asset_name is required")
	ErrInvalidProblemID   = errors.New("problem_id must be a UUID")
)

// Not found errors.
var (
	ErrIncidentNotFound = errors.New("incident not found")
	ErrProblemNotFound  = errors.New("problem not found")
)

// IsValidationError reports whether err is caused by invalid input.
func IsValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrTitleRequired),
		errors.Is(err, ErrInvalidSeverity),
		errors.Is(err, ErrInvalidCategory),
		errors.Is(err, ErrInvalidStatus),
		errors.Is(err, ErrAssigneeRequired),
		errors.Is(err, ErrContentRequired),
		errors.Is(err, ErrInvalidEntryType),
		errors.Is(err, ErrPersonNameRequired),
		errors.Is(err, ErrAssetNameRequired),
		errors.Is(err, ErrInvalidProblemID):
		return true
	}
	return false
}
