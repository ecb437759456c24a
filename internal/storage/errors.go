package storage

import "errors"

// Storage errors shared by every backend.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnknownMetric is returned when a range is requested on a metric
	// that has no index.
	ErrUnknownMetric = errors.New("unknown sort metric")
)
