package photo

import "errors"

var (
	// ErrRecordNotFound indicates the photo record doesn't exist.
	ErrRecordNotFound = errors.New("photo record not found")
	// ErrInvalidInput indicates rejected capture input or metadata.
	ErrInvalidInput = errors.New("invalid photo input")
	// ErrStorage indicates an artifact could not be written or read.
	ErrStorage = errors.New("photo storage failure")
	// ErrPersistence indicates the catalog could not be written.
	ErrPersistence = errors.New("photo persistence failure")
)
