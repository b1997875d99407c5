package models

import "errors"

// Error kinds shared by the store, the services and the HTTP layer.
// Callers wrap them with context and match with errors.Is.
var (
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)
