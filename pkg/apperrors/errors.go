package apperrors

import "errors"

var (
	ErrJobActive   = errors.New("an optimization job is already running")
	ErrNoActiveJob = errors.New("no optimization job is running")
	// ErrNoTrainingData's text is surfaced verbatim in the persisted error status.
	ErrNoTrainingData = errors.New("Need at least one chat session to optimize")
)
