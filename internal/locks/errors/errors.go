package errors

import "errors"

var (
	ErrNotFound = errors.New("lock not found")

	// ErrLockHeld is returned by a conditional insert that lost to an existing row.
	ErrLockHeld = errors.New("lock already held")
)
