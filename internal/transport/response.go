package transport

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rpggio/fieldcam/internal/domain/photo"
	"github.com/rpggio/fieldcam/internal/domain/session"
)

// Error is the JSON body of a failed request.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error Error `json:"error"`
}

// WriteJSON writes payload with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// WriteError writes an error response.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, errorResponse{Error: Error{Code: code, Message: message}})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, photo.ErrRecordNotFound):
		return http.StatusNotFound, "PHOTO_NOT_FOUND"
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound, "SESSION_NOT_FOUND"
	case errors.Is(err, session.ErrNoActiveSession):
		return http.StatusConflict, "NO_ACTIVE_SESSION"
	case errors.Is(err, photo.ErrInvalidInput), errors.Is(err, session.ErrInvalidInput):
		return http.StatusBadRequest, "INVALID_INPUT"
	case errors.Is(err, photo.ErrStorage):
		return http.StatusInternalServerError, "STORAGE_ERROR"
	case errors.Is(err, photo.ErrPersistence), errors.Is(err, session.ErrPersistence):
		return http.StatusInternalServerError, "PERSISTENCE_ERROR"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}
