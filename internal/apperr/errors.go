package apperr

import "errors"

var (
	ErrNotConfigured       = errors.New("search upstream not configured")
	ErrUpstreamUnavailable = errors.New("search upstream unavailable")
	ErrUpstreamTimeout     = errors.New("search upstream timed out")
	ErrInvalidPath         = errors.New("invalid search path")
	ErrRequestTooLarge     = errors.New("request body too large")
)
