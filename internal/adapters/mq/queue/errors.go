package queue

import "errors"

// Sentinel errors returned by the queue.
var (
	ErrClosed    = errors.New("queue closed")
	ErrCancelled = errors.New("dequeue cancelled")
)
