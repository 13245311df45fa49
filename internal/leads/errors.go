package leads

import "errors"

var (
	// ErrMissingPhone is returned when a lead has no phone
	ErrMissingPhone = errors.New("phone is required")

	// ErrInvalidScore is returned when the qualification score is out of range
	ErrInvalidScore = errors.New("qualification score must be between 0 and 100")

	// ErrLeadNotFound is returned when a lead is not found
	ErrLeadNotFound = errors.New("lead not found")
)
