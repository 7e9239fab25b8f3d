package worker

import "errors"

// Sentinel errors for worker lifecycle misuse.
var (
	ErrAlreadyStarted = errors.New("worker already started")
	ErrStopped        = errors.New("worker stopped")
)
