// Package repository holds the errors shared by every storage
// implementation.
package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write collides with existing state,
	// such as a duplicate key or deleting the active session
	ErrConflict = errors.New("conflict with existing state")

	// ErrForeignKeyViolation is returned when a foreign key constraint fails
	ErrForeignKeyViolation = errors.New("foreign key violation")
)
