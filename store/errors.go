// Package store persists events, guests and check-in attempts.
package store

import "errors"

var (
	// ErrNotFound is returned when a record does not exist or is not visible in the given scope.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a write violates a uniqueness rule.
	ErrConflict = errors.New("record already exists")
)
