package session

import "errors"

var (
	// ErrSessionNotFound indicates the session doesn't exist.
	ErrSessionNotFound = errors.New("session not found")
	// ErrNoActiveSession indicates the registry has not been initialized.
	ErrNoActiveSession = errors.New("no active session")
	// ErrInvalidInput indicates a rejected value, such as a sequence below 1.
	ErrInvalidInput = errors.New("invalid session input")
	// ErrPersistence indicates the session store could not be written.
	ErrPersistence = errors.New("session persistence failure")
)
