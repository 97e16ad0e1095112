package mcp

import (
	"errors"
	"fmt"

	"github.com/rpggio/fieldcam/internal/domain/photo"
	"github.com/rpggio/fieldcam/internal/domain/session"
)

// APIError represents an MCP error response.
type APIError struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	Details      string `json:"details,omitempty"`
	RecoveryHint string `json:"recovery_hint,omitempty"`
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// MapError maps domain errors to MCP error codes. Unknown errors map to
// INTERNAL.
func MapError(err error) *APIError {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	e := mapKnown(err)
	e.Details = err.Error()
	return e
}

func mapKnown(err error) *APIError {
	switch {
	case errors.Is(err, photo.ErrRecordNotFound):
		return &APIError{Code: "PHOTO_NOT_FOUND", Message: "photo not found", RecoveryHint: "Call list_photos for valid IDs"}
	case errors.Is(err, session.ErrSessionNotFound):
		return &APIError{Code: "SESSION_NOT_FOUND", Message: "session not found", RecoveryHint: "Call list_sessions for valid IDs"}
	case errors.Is(err, session.ErrNoActiveSession):
		return &APIError{Code: "NO_ACTIVE_SESSION", Message: "no active session", RecoveryHint: "Call create_session or switch_session"}
	case errors.Is(err, photo.ErrInvalidInput), errors.Is(err, session.ErrInvalidInput):
		return &APIError{Code: "INVALID_INPUT", Message: "invalid input", RecoveryHint: "Check the arguments"}
	case errors.Is(err, photo.ErrStorage):
		return &APIError{Code: "STORAGE_ERROR", Message: "artifact storage failed", RecoveryHint: "Check disk space and retry"}
	case errors.Is(err, photo.ErrPersistence), errors.Is(err, session.ErrPersistence):
		return &APIError{Code: "PERSISTENCE_ERROR", Message: "catalog write failed", RecoveryHint: "Retry the operation"}
	default:
		return &APIError{Code: "INTERNAL", Message: "internal error"}
	}
}
