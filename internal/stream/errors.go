package stream

import "errors"

var (
	// ErrNotFound is returned when a session or segment does not exist in
	// memory. A key that was evicted is indistinguishable from one that was
	// never created.
	ErrNotFound = errors.New("session not found")

	// ErrInactive is returned when an upload or viewer join targets a session
	// that has been stopped but not yet evicted.
	ErrInactive = errors.New("session has been stopped")

	// ErrNoData is returned when a frame read finds a session that has never
	// received a frame.
	ErrNoData = errors.New("no frame uploaded yet")
)
