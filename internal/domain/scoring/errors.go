package scoring

import "errors"

// Sentinel kinds for scoring errors.
var (
	ErrUnknownStrategy = errors.New("unknown ranking strategy")
	ErrUnknownPeriod   = errors.New("unknown decay period")
)
