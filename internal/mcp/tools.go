package mcp

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/fieldcam/internal/domain/photo"
)

type toolHandler struct {
	services Services
	logger   *slog.Logger
}

func registerTools(server *sdkmcp.Server, h *toolHandler) {
	// Sessions
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "create_session",
		Description: "Create a new inspection session and make it active. Numbering starts at 1.",
	}, h.createSession)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "switch_session",
		Description: "Make an existing session active. Its numbering resumes where it left off.",
	}, h.switchSession)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "list_sessions",
		Description: "List sessions, most recently used first, with photo counts",
	}, h.listSessions)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "rename_session",
		Description: "Change a session's display name",
	}, h.renameSession)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "prune_sessions",
		Description: "Delete the least recently used inactive sessions beyond max_retained, with their photos",
	}, h.pruneSessions)

	// Sequence
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "get_sequence",
		Description: "Get the number the next capture in the active session will receive",
	}, h.getSequence)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "set_sequence",
		Description: "Override the active session's next sequence number",
	}, h.setSequence)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "reset_sequence",
		Description: "Reset the active session's next sequence number to 1",
	}, h.resetSequence)

	// Photos
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "capture_photo",
		Description: "Store a photo in the active session. It takes the session's next sequence number.",
	}, h.capturePhoto)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "replace_photo",
		Description: "Replace a photo's image in place, keeping its number, and mark it annotated",
	}, h.replacePhoto)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "list_photos",
		Description: "List photos in a session by sequence number, or all photos newest first",
	}, h.listPhotos)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "get_photo",
		Description: "Get one photo record",
	}, h.getPhoto)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "update_photo_notes",
		Description: "Replace or clear a photo's notes",
	}, h.updateNotes)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "delete_photos",
		Description: "Delete photos from any sessions. Later photos in each session are renumbered to close the gap.",
	}, h.deletePhotos)
}

func (h *toolHandler) createSession(ctx context.Context, _ *sdkmcp.CallToolRequest, in CreateSessionParams) (*sdkmcp.CallToolResult, SessionResponse, error) {
	sess, err := h.services.Sessions.CreateSession(ctx, in.Name)
	if err != nil {
		return nil, SessionResponse{}, h.fail("create_session", err)
	}
	return nil, SessionResponse{Session: sessionView(*sess)}, nil
}

func (h *toolHandler) switchSession(ctx context.Context, _ *sdkmcp.CallToolRequest, in SwitchSessionParams) (*sdkmcp.CallToolResult, SwitchSessionResponse, error) {
	switched, err := h.services.Sessions.SwitchTo(ctx, in.SessionID)
	if err != nil {
		return nil, SwitchSessionResponse{}, h.fail("switch_session", err)
	}
	sess, err := h.services.Sessions.GetSession(ctx, in.SessionID)
	if err != nil {
		return nil, SwitchSessionResponse{}, h.fail("switch_session", err)
	}
	return nil, SwitchSessionResponse{Switched: switched, Session: sessionView(*sess)}, nil
}

func (h *toolHandler) listSessions(ctx context.Context, _ *sdkmcp.CallToolRequest, _ ListSessionsParams) (*sdkmcp.CallToolResult, ListSessionsResponse, error) {
	summaries, err := h.services.Sessions.ListSummaries(ctx)
	if err != nil {
		return nil, ListSessionsResponse{}, h.fail("list_sessions", err)
	}
	out := ListSessionsResponse{Sessions: make([]SessionView, 0, len(summaries))}
	for _, s := range summaries {
		out.Sessions = append(out.Sessions, summaryView(s))
	}
	return nil, out, nil
}

func (h *toolHandler) renameSession(ctx context.Context, _ *sdkmcp.CallToolRequest, in RenameSessionParams) (*sdkmcp.CallToolResult, SessionResponse, error) {
	if err := h.services.Sessions.RenameSession(ctx, in.SessionID, in.Name); err != nil {
		return nil, SessionResponse{}, h.fail("rename_session", err)
	}
	sess, err := h.services.Sessions.GetSession(ctx, in.SessionID)
	if err != nil {
		return nil, SessionResponse{}, h.fail("rename_session", err)
	}
	return nil, SessionResponse{Session: sessionView(*sess)}, nil
}

func (h *toolHandler) pruneSessions(ctx context.Context, _ *sdkmcp.CallToolRequest, in PruneSessionsParams) (*sdkmcp.CallToolResult, PruneSessionsResponse, error) {
	pruned, err := h.services.Photos.PruneSessions(ctx, in.MaxRetained)
	if err != nil {
		return nil, PruneSessionsResponse{}, h.fail("prune_sessions", err)
	}
	out := PruneSessionsResponse{Pruned: make([]SessionView, 0, len(pruned))}
	for _, s := range pruned {
		out.Pruned = append(out.Pruned, sessionView(s))
	}
	return nil, out, nil
}

func (h *toolHandler) getSequence(ctx context.Context, _ *sdkmcp.CallToolRequest, _ GetSequenceParams) (*sdkmcp.CallToolResult, SequenceResponse, error) {
	return h.sequence(ctx, "get_sequence")
}

func (h *toolHandler) setSequence(ctx context.Context, _ *sdkmcp.CallToolRequest, in SetSequenceParams) (*sdkmcp.CallToolResult, SequenceResponse, error) {
	if err := h.services.Sequence.Set(ctx, in.Value); err != nil {
		return nil, SequenceResponse{}, h.fail("set_sequence", err)
	}
	return h.sequence(ctx, "set_sequence")
}

func (h *toolHandler) resetSequence(ctx context.Context, _ *sdkmcp.CallToolRequest, _ ResetSequenceParams) (*sdkmcp.CallToolResult, SequenceResponse, error) {
	if err := h.services.Sequence.Reset(ctx); err != nil {
		return nil, SequenceResponse{}, h.fail("reset_sequence", err)
	}
	return h.sequence(ctx, "reset_sequence")
}

// sequence reports the active session's next number.
func (h *toolHandler) sequence(ctx context.Context, tool string) (*sdkmcp.CallToolResult, SequenceResponse, error) {
	active, err := h.services.Sessions.ActiveSession(ctx)
	if err != nil {
		return nil, SequenceResponse{}, h.fail(tool, err)
	}
	next, err := h.services.Sequence.Current(ctx)
	if err != nil {
		return nil, SequenceResponse{}, h.fail(tool, err)
	}
	return nil, SequenceResponse{SessionID: active.ID, NextSequence: next}, nil
}

func (h *toolHandler) capturePhoto(ctx context.Context, _ *sdkmcp.CallToolRequest, in CapturePhotoParams) (*sdkmcp.CallToolResult, PhotoResponse, error) {
	image, err := decodeImage(in.ImageBase64)
	if err != nil {
		return nil, PhotoResponse{}, h.fail("capture_photo", err)
	}
	meta := photo.Metadata{Orientation: photo.Orientation(in.Orientation), Notes: in.Notes}
	switch {
	case in.Latitude != nil && in.Longitude != nil:
		meta.Location = &photo.Location{Latitude: *in.Latitude, Longitude: *in.Longitude}
	case in.Latitude != nil || in.Longitude != nil:
		return nil, PhotoResponse{}, h.fail("capture_photo", fmt.Errorf("%w: latitude and longitude must be given together", photo.ErrInvalidInput))
	}

	rec, err := h.services.Photos.SaveCapture(ctx, image, meta)
	if err != nil {
		return nil, PhotoResponse{}, h.fail("capture_photo", err)
	}
	return nil, PhotoResponse{Photo: photoView(*rec)}, nil
}

func (h *toolHandler) replacePhoto(ctx context.Context, _ *sdkmcp.CallToolRequest, in ReplacePhotoParams) (*sdkmcp.CallToolResult, PhotoResponse, error) {
	image, err := decodeImage(in.ImageBase64)
	if err != nil {
		return nil, PhotoResponse{}, h.fail("replace_photo", err)
	}
	rec, err := h.services.Photos.ReplaceArtifact(ctx, in.PhotoID, image)
	if err != nil {
		return nil, PhotoResponse{}, h.fail("replace_photo", err)
	}
	return nil, PhotoResponse{Photo: photoView(*rec)}, nil
}

func decodeImage(encoded string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("%w: image_base64 is not valid base64", photo.ErrInvalidInput)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: image_base64 is empty", photo.ErrInvalidInput)
	}
	return data, nil
}

func (h *toolHandler) listPhotos(ctx context.Context, _ *sdkmcp.CallToolRequest, in ListPhotosParams) (*sdkmcp.CallToolResult, ListPhotosResponse, error) {
	var (
		records []photo.Record
		err     error
	)
	if sessionID := strings.TrimSpace(in.SessionID); sessionID != "" {
		records, err = h.services.Photos.ListBySession(ctx, sessionID)
	} else {
		records, err = h.services.Photos.ListAll(ctx)
	}
	if err != nil {
		return nil, ListPhotosResponse{}, h.fail("list_photos", err)
	}
	return nil, ListPhotosResponse{Photos: photoViews(records)}, nil
}

func (h *toolHandler) getPhoto(ctx context.Context, _ *sdkmcp.CallToolRequest, in GetPhotoParams) (*sdkmcp.CallToolResult, PhotoResponse, error) {
	rec, err := h.services.Photos.Get(ctx, in.PhotoID)
	if err != nil {
		return nil, PhotoResponse{}, h.fail("get_photo", err)
	}
	return nil, PhotoResponse{Photo: photoView(*rec)}, nil
}

func (h *toolHandler) updateNotes(ctx context.Context, _ *sdkmcp.CallToolRequest, in UpdateNotesParams) (*sdkmcp.CallToolResult, PhotoResponse, error) {
	rec, err := h.services.Photos.UpdateNotes(ctx, in.PhotoID, in.Notes)
	if err != nil {
		return nil, PhotoResponse{}, h.fail("update_photo_notes", err)
	}
	return nil, PhotoResponse{Photo: photoView(*rec)}, nil
}

func (h *toolHandler) deletePhotos(ctx context.Context, _ *sdkmcp.CallToolRequest, in DeletePhotosParams) (*sdkmcp.CallToolResult, DeletePhotosResponse, error) {
	results, err := h.services.Photos.DeleteMany(ctx, in.PhotoIDs)
	if len(results) == 0 && err != nil {
		return nil, DeletePhotosResponse{}, h.fail("delete_photos", err)
	}

	// Group failures are reported per session, not as a tool error.
	out := DeletePhotosResponse{Groups: make([]DeleteGroupView, 0, len(results))}
	for _, res := range results {
		view := DeleteGroupView{SessionID: res.SessionID, Deleted: res.Deleted}
		if view.Deleted == nil {
			view.Deleted = []string{}
		}
		if res.Err != nil {
			view.Error = MapError(res.Err)
		}
		out.Groups = append(out.Groups, view)
	}
	return nil, out, nil
}

func (h *toolHandler) fail(tool string, err error) error {
	apiErr := MapError(err)
	if apiErr.Code == "INTERNAL" || errors.Is(err, context.Canceled) {
		h.logger.Error("tool failed", "tool", tool, "error", err)
	} else {
		h.logger.Debug("tool rejected", "tool", tool, "code", apiErr.Code, "error", err)
	}
	return apiErr
}
