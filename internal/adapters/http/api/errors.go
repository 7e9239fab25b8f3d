package api

import "errors"

// ErrNotReady is reported by /healthz while the feed service is stopped.
var ErrNotReady = errors.New("feed service not ready")
