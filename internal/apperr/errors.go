package apperr

import "errors"

// Sentinel errors used across services. Handlers match them with errors.Is
// and map them to HTTP status codes; services wrap them with context via
// fmt.Errorf("...: %w", ...).
var (
	// ErrNotFound is returned when the requested entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden signals an ownership or authorization violation.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalid signals a business-rule violation (closed/expired session,
	// already present, wrong status, duplicate justification).
	ErrInvalid = errors.New("invalid request")
	// ErrConflict is returned to the loser of a concurrent mutation race.
	ErrConflict = errors.New("conflict")
)
