package errors

import "errors"

// Application-wide error categories. Domain-specific errors wrap these so
// callers can classify with errors.Is without importing every package.
var (
	// ErrNotFound is returned when a record or resource does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrUnauthorized is returned for failed credential checks.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrValidation is returned when caller input is rejected before any
	// repository access.
	ErrValidation = errors.New("validation failed")

	// ErrConflict is returned for state conflicts, most notably a unique
	// constraint violation on account email.
	ErrConflict = errors.New("resource state conflict")
)
