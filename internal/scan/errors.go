package scan

import "errors"

// Caller-facing error taxonomy. The HTTP layer maps these onto status codes;
// packages wrap them with fmt.Errorf("...: %w", ...) to add detail.
var (
	// ErrValidation marks bad submission input the caller can fix.
	ErrValidation = errors.New("validation error")

	// ErrNotFound is returned when a job does not exist or is not visible
	// to the requesting owner.
	ErrNotFound = errors.New("job not found")

	// ErrNotReady is returned when results are requested before the job
	// reached completed.
	ErrNotReady = errors.New("results not ready")

	// ErrInvalidTransition is returned when a lifecycle change is requested
	// from a state that does not permit it.
	ErrInvalidTransition = errors.New("invalid status transition")
)
