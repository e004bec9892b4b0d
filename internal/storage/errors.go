package storage

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("storage: not found")

	// ErrRunNotQueued is returned when finishing a run that already left
	// the queued state (or never existed for the org).
	ErrRunNotQueued = errors.New("storage: run is not queued")
)
