package jobs

import "errors"

// Sentinel errors for tracker operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrDuplicateJob indicates Create was called with an id already tracked.
	ErrDuplicateJob = errors.New("job already exists")

	// ErrNotFound indicates the job was never created or has expired.
	ErrNotFound = errors.New("job not found")

	// ErrInvalidTransition indicates a status change outside the state machine.
	// It signals a programming error in the caller.
	ErrInvalidTransition = errors.New("invalid job status transition")

	// ErrProgressRegressed indicates a progress update lower than one already recorded.
	ErrProgressRegressed = errors.New("job progress moved backward")
)
