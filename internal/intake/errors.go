package intake

import "errors"

var (
	// ErrNotStarted is returned by Add before Start.
	ErrNotStarted = errors.New("intake window not started")

	// ErrStopped is returned by Add and Start after Stop.
	ErrStopped = errors.New("intake window stopped")
)
