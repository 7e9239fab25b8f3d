package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound      = errors.New("post not found")
	ErrInvalidPost   = errors.New("invalid post")
	ErrUnknownDriver = errors.New("unknown store driver")
	ErrMissingDSN    = errors.New("store connection string is required")
)
