package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rpggio/fieldcam/internal/domain/photo"
)

// MaxImageBytes caps an uploaded image body.
const MaxImageBytes = 32 << 20

// PhotoService captures photos and serves their artifacts.
type PhotoService interface {
	SaveCapture(ctx context.Context, full []byte, meta photo.Metadata) (*photo.Record, error)
	ReplaceArtifact(ctx context.Context, id string, full []byte) (*photo.Record, error)
	LoadFullImage(ctx context.Context, id string) ([]byte, error)
	LoadThumbnail(ctx context.Context, id string) ([]byte, error)
}

// Config wires the HTTP surface. MCP and Events are optional.
type Config struct {
	Photos PhotoService
	Events *EventStream
	MCP    http.Handler
	Logger *slog.Logger
}

// Server wires HTTP handlers.
type Server struct {
	photos PhotoService
	logger *slog.Logger
}

// NewServer creates an HTTP server router with middleware.
func NewServer(cfg Config) *chi.Mux {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	srv := &Server{photos: cfg.Photos, logger: logger}

	r.Get("/health", srv.handleHealth)
	r.Post("/photos", srv.handleCapture)
	r.Get("/photos/{id}/full", srv.handleArtifact(cfg.Photos.LoadFullImage))
	r.Put("/photos/{id}/full", srv.handleReplace)
	r.Get("/photos/{id}/thumbnail", srv.handleArtifact(cfg.Photos.LoadThumbnail))
	if cfg.Events != nil {
		r.Get("/events", cfg.Events.ServeHTTP)
	}
	if cfg.MCP != nil {
		r.Handle("/mcp", cfg.MCP)
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleArtifact(load func(context.Context, string) ([]byte, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		data, err := load(r.Context(), id)
		if err != nil {
			s.fail(w, "artifact load failed", err, "photo_id", id)
			return
		}

		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}

// handleCapture stores the request body as a new photo in the active
// session. Metadata comes from the query: orientation, lat and lon, notes.
func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	meta, err := captureMetadata(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
		return
	}
	body, ok := s.readImage(w, r)
	if !ok {
		return
	}

	rec, err := s.photos.SaveCapture(r.Context(), body, meta)
	if err != nil {
		s.fail(w, "capture failed", err)
		return
	}
	w.Header().Set("Location", "/photos/"+rec.ID+"/full")
	WriteJSON(w, http.StatusCreated, rec)
}

// handleReplace overwrites a photo's full image, typically with an
// annotated copy.
func (s *Server) handleReplace(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	body, ok := s.readImage(w, r)
	if !ok {
		return
	}

	rec, err := s.photos.ReplaceArtifact(r.Context(), id, body)
	if err != nil {
		s.fail(w, "replace failed", err, "photo_id", id)
		return
	}
	WriteJSON(w, http.StatusOK, rec)
}

func (s *Server) readImage(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxImageBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, http.StatusRequestEntityTooLarge, "INVALID_INPUT", "image exceeds upload limit")
			return nil, false
		}
		WriteError(w, http.StatusBadRequest, "INVALID_INPUT", "failed to read image body")
		return nil, false
	}
	if len(body) == 0 {
		WriteError(w, http.StatusBadRequest, "INVALID_INPUT", "image body is empty")
		return nil, false
	}
	return body, true
}

func (s *Server) fail(w http.ResponseWriter, msg string, err error, attrs ...any) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(msg, append(attrs, "error", err)...)
	}
	message := http.StatusText(status)
	if status < http.StatusInternalServerError {
		message = err.Error()
	}
	WriteError(w, status, code, message)
}

func captureMetadata(r *http.Request) (photo.Metadata, error) {
	q := r.URL.Query()
	meta := photo.Metadata{Orientation: photo.Orientation(q.Get("orientation"))}
	if q.Has("notes") {
		notes := q.Get("notes")
		meta.Notes = &notes
	}

	lat, lon := q.Get("lat"), q.Get("lon")
	if lat == "" && lon == "" {
		return meta, nil
	}
	if lat == "" || lon == "" {
		return meta, errors.New("lat and lon must be given together")
	}
	latitude, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return meta, fmt.Errorf("invalid lat %q", lat)
	}
	longitude, err := strconv.ParseFloat(lon, 64)
	if err != nil {
		return meta, fmt.Errorf("invalid lon %q", lon)
	}
	meta.Location = &photo.Location{Latitude: latitude, Longitude: longitude}
	return meta, nil
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
			)
		})
	}
}
