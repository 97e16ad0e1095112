package mcp

import (
	"time"

	"github.com/rpggio/fieldcam/internal/domain/photo"
	"github.com/rpggio/fieldcam/internal/domain/session"
)

// Tool inputs.

type CreateSessionParams struct {
	Name string `json:"name" jsonschema:"display name for the new session"`
}

type SwitchSessionParams struct {
	SessionID string `json:"session_id" jsonschema:"session to make active"`
}

type ListSessionsParams struct{}

type RenameSessionParams struct {
	SessionID string `json:"session_id" jsonschema:"session to rename"`
	Name      string `json:"name" jsonschema:"new display name"`
}

type PruneSessionsParams struct {
	MaxRetained int `json:"max_retained" jsonschema:"number of most recently used sessions to keep"`
}

type GetSequenceParams struct{}

type SetSequenceParams struct {
	Value int64 `json:"value" jsonschema:"next sequence number for the active session, at least 1"`
}

type ResetSequenceParams struct{}

type ListPhotosParams struct {
	SessionID string `json:"session_id,omitempty" jsonschema:"limit to one session; omit for all photos newest first"`
}

type GetPhotoParams struct {
	PhotoID string `json:"photo_id" jsonschema:"photo record id"`
}

type DeletePhotosParams struct {
	PhotoIDs []string `json:"photo_ids" jsonschema:"photo record ids to delete, from any sessions"`
}

type CapturePhotoParams struct {
	ImageBase64 string   `json:"image_base64" jsonschema:"base64-encoded JPEG, PNG or GIF image"`
	Orientation string   `json:"orientation,omitempty" jsonschema:"portrait, portrait_upside_down, landscape_left or landscape_right; default portrait"`
	Latitude    *float64 `json:"latitude,omitempty" jsonschema:"WGS84 latitude; requires longitude"`
	Longitude   *float64 `json:"longitude,omitempty" jsonschema:"WGS84 longitude; requires latitude"`
	Notes       *string  `json:"notes,omitempty" jsonschema:"free-form notes"`
}

type ReplacePhotoParams struct {
	PhotoID     string `json:"photo_id" jsonschema:"photo record id"`
	ImageBase64 string `json:"image_base64" jsonschema:"base64-encoded replacement image, such as an annotated copy"`
}

type UpdateNotesParams struct {
	PhotoID string  `json:"photo_id" jsonschema:"photo record id"`
	Notes   *string `json:"notes,omitempty" jsonschema:"new notes; omit to clear"`
}

// Tool outputs. Timestamps are RFC 3339 strings.

type SessionView struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	CreatedAt    string    `json:"created_at"`
	LastUsedAt   string    `json:"last_used_at"`
	NextSequence int64     `json:"next_sequence"`
	IsActive     bool      `json:"is_active"`
	PhotoCount   *int      `json:"photo_count,omitempty"`
}

type SessionResponse struct {
	Session SessionView `json:"session"`
}

type SwitchSessionResponse struct {
	Switched bool        `json:"switched"`
	Session  SessionView `json:"session"`
}

type ListSessionsResponse struct {
	Sessions []SessionView `json:"sessions"`
}

type PruneSessionsResponse struct {
	Pruned []SessionView `json:"pruned"`
}

type SequenceResponse struct {
	SessionID    string `json:"session_id"`
	NextSequence int64  `json:"next_sequence"`
}

type PhotoView struct {
	ID             string          `json:"id"`
	SessionID      string          `json:"session_id"`
	SequenceNumber int64           `json:"sequence_number"`
	CapturedAt     string          `json:"captured_at"`
	ImageRef       string          `json:"image_ref"`
	ThumbnailRef   string          `json:"thumbnail_ref"`
	Checksum       string          `json:"checksum,omitempty"`
	Location       *photo.Location `json:"location,omitempty"`
	Orientation    string          `json:"orientation"`
	Notes          *string         `json:"notes,omitempty"`
	Annotated      bool            `json:"annotated"`
	ModifiedAt     string          `json:"modified_at"`
}

type PhotoResponse struct {
	Photo PhotoView `json:"photo"`
}

type ListPhotosResponse struct {
	Photos []PhotoView `json:"photos"`
}

type DeleteGroupView struct {
	SessionID string    `json:"session_id"`
	Deleted   []string  `json:"deleted"`
	Error     *APIError `json:"error,omitempty"`
}

type DeletePhotosResponse struct {
	Groups []DeleteGroupView `json:"groups"`
}

func sessionView(s session.Session) SessionView {
	return SessionView{
		ID:           s.ID,
		Name:         s.Name,
		CreatedAt:    timestamp(s.CreatedAt),
		LastUsedAt:   timestamp(s.LastUsedAt),
		NextSequence: s.SequenceCounter,
		IsActive:     s.IsActive,
	}
}

func summaryView(s session.Summary) SessionView {
	v := sessionView(s.Session)
	count := s.PhotoCount
	v.PhotoCount = &count
	return v
}

func photoView(r photo.Record) PhotoView {
	return PhotoView{
		ID:             r.ID,
		SessionID:      r.SessionID,
		SequenceNumber: r.SequenceNumber,
		CapturedAt:     timestamp(r.CapturedAt),
		ImageRef:       r.ImageRef,
		ThumbnailRef:   r.ThumbnailRef,
		Checksum:       r.Checksum,
		Location:       r.Location,
		Orientation:    string(r.Orientation),
		Notes:          r.Notes,
		Annotated:      r.Annotated,
		ModifiedAt:     timestamp(r.ModifiedAt),
	}
}

func photoViews(records []photo.Record) []PhotoView {
	out := make([]PhotoView, 0, len(records))
	for _, r := range records {
		out = append(out, photoView(r))
	}
	return out
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
