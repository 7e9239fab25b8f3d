package service

import "errors"

// Sentinel lifecycle errors.
var (
	// ErrNotStarted is returned by operations that need a running service.
	ErrNotStarted = errors.New("feed service not started")
	// ErrStopped is returned once Stop has run. A stopped service cannot be
	// started again; the queue lives for one process lifetime.
	ErrStopped = errors.New("feed service stopped")
)
