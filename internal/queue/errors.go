package queue

import "errors"

// ErrStaleTask indicates a conditional transition found the task in a
// different status than expected, usually because another worker moved it
// first.
var ErrStaleTask = errors.New("task status changed since it was read")

// ErrNotFound indicates the requested task or video does not exist.
var ErrNotFound = errors.New("not found")

// IsStale reports whether err stems from a lost conditional transition.
func IsStale(err error) bool {
	return errors.Is(err, ErrStaleTask)
}
