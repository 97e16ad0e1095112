package mcp

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/fieldcam/internal/domain/photo"
	"github.com/rpggio/fieldcam/internal/domain/session"
	"github.com/stretchr/testify/require"
)

type sessionStub struct {
	createFn  func(context.Context, string) (*session.Session, error)
	switchFn  func(context.Context, string) (bool, error)
	activeFn  func(context.Context) (*session.Session, error)
	getFn     func(context.Context, string) (*session.Session, error)
	summaryFn func(context.Context) ([]session.Summary, error)
	renameFn  func(context.Context, string, string) error
}

func (s sessionStub) CreateSession(ctx context.Context, name string) (*session.Session, error) {
	return s.createFn(ctx, name)
}
func (s sessionStub) SwitchTo(ctx context.Context, id string) (bool, error) {
	return s.switchFn(ctx, id)
}
func (s sessionStub) ActiveSession(ctx context.Context) (*session.Session, error) {
	return s.activeFn(ctx)
}
func (s sessionStub) GetSession(ctx context.Context, id string) (*session.Session, error) {
	return s.getFn(ctx, id)
}
func (s sessionStub) ListSummaries(ctx context.Context) ([]session.Summary, error) {
	return s.summaryFn(ctx)
}
func (s sessionStub) RenameSession(ctx context.Context, id, name string) error {
	return s.renameFn(ctx, id, name)
}

type sequenceStub struct {
	currentFn func(context.Context) (int64, error)
	setFn     func(context.Context, int64) error
	resetFn   func(context.Context) error
}

func (s sequenceStub) Current(ctx context.Context) (int64, error) { return s.currentFn(ctx) }
func (s sequenceStub) Set(ctx context.Context, v int64) error { return s.setFn(ctx, v) }
func (s sequenceStub) Reset(ctx context.Context) error { return s.resetFn(ctx) }

type photoStub struct {
	saveFn      func(context.Context, []byte, photo.Metadata) (*photo.Record, error)
	replaceFn   func(context.Context, string, []byte) (*photo.Record, error)
	getFn       func(context.Context, string) (*photo.Record, error)
	bySessionFn func(context.Context, string) ([]photo.Record, error)
	allFn       func(context.Context) ([]photo.Record, error)
	notesFn     func(context.Context, string, *string) (*photo.Record, error)
	deleteFn    func(context.Context, []string) ([]photo.GroupResult, error)
	pruneFn     func(context.Context, int) ([]session.Session, error)
}

func (p photoStub) SaveCapture(ctx context.Context, full []byte, meta photo.Metadata) (*photo.Record, error) {
	return p.saveFn(ctx, full, meta)
}
func (p photoStub) ReplaceArtifact(ctx context.Context, id string, full []byte) (*photo.Record, error) {
	return p.replaceFn(ctx, id, full)
}
func (p photoStub) Get(ctx context.Context, id string) (*photo.Record, error) {
	return p.getFn(ctx, id)
}
func (p photoStub) ListBySession(ctx context.Context, id string) ([]photo.Record, error) {
	return p.bySessionFn(ctx, id)
}
func (p photoStub) ListAll(ctx context.Context) ([]photo.Record, error) {
	return p.allFn(ctx)
}
func (p photoStub) UpdateNotes(ctx context.Context, id string, notes *string) (*photo.Record, error) {
	return p.notesFn(ctx, id, notes)
}
func (p photoStub) DeleteMany(ctx context.Context, ids []string) ([]photo.GroupResult, error) {
	return p.deleteFn(ctx, ids)
}
func (p photoStub) PruneSessions(ctx context.Context, max int) ([]session.Session, error) {
	return p.pruneFn(ctx, max)
}

var testNow = time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC)

func testSession(id string, counter int64, active bool) *session.Session {
	return &session.Session{
		ID:              id,
		Name:            "Inspection " + id,
		CreatedAt:       testNow,
		LastUsedAt:      testNow,
		SequenceCounter: counter,
		IsActive:        active,
	}
}

func testRecord(id, sessionID string, seq int64) photo.Record {
	return photo.Record{
		ID:             id,
		SessionID:      sessionID,
		SequenceNumber: seq,
		CapturedAt:     testNow,
		ImageRef:       "full-" + id,
		ThumbnailRef:   "thumb-" + id,
		Orientation:    photo.OrientationPortrait,
		ModifiedAt:     testNow,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestTools_Sessions(t *testing.T) {
	ctx := context.Background()
	h := &toolHandler{services: Services{
		Sessions: sessionStub{
			createFn: func(_ context.Context, name string) (*session.Session, error) {
				s := testSession("s1", 1, true)
				s.Name = name
				return s, nil
			},
			switchFn: func(_ context.Context, id string) (bool, error) {
				return id == "s2", nil
			},
			getFn: func(_ context.Context, id string) (*session.Session, error) {
				return testSession(id, 4, true), nil
			},
			summaryFn: func(context.Context) ([]session.Summary, error) {
				return []session.Summary{
					{Session: *testSession("s2", 4, true), PhotoCount: 3},
					{Session: *testSession("s1", 1, false), PhotoCount: 0},
				}, nil
			},
			renameFn: func(_ context.Context, id, name string) error {
				require.Equal(t, "s2", id)
				require.Equal(t, "Roof", name)
				return nil
			},
		},
	}, logger: discardLogger()}

	_, created, err := h.createSession(ctx, nil, CreateSessionParams{Name: "Bridge"})
	require.NoError(t, err)
	require.Equal(t, "Bridge", created.Session.Name)
	require.Equal(t, int64(1), created.Session.NextSequence)
	require.True(t, created.Session.IsActive)

	_, switched, err := h.switchSession(ctx, nil, SwitchSessionParams{SessionID: "s2"})
	require.NoError(t, err)
	require.True(t, switched.Switched)
	require.Equal(t, int64(4), switched.Session.NextSequence)

	_, listed, err := h.listSessions(ctx, nil, ListSessionsParams{})
	require.NoError(t, err)
	require.Len(t, listed.Sessions, 2)
	require.Equal(t, "s2", listed.Sessions[0].ID)
	require.NotNil(t, listed.Sessions[0].PhotoCount)
	require.Equal(t, 3, *listed.Sessions[0].PhotoCount)

	_, renamed, err := h.renameSession(ctx, nil, RenameSessionParams{SessionID: "s2", Name: "Roof"})
	require.NoError(t, err)
	require.Equal(t, "s2", renamed.Session.ID)
}

func TestTools_Sequence(t *testing.T) {
	ctx := context.Background()
	counter := int64(7)
	h := &toolHandler{services: Services{
		Sessions: sessionStub{
			activeFn: func(context.Context) (*session.Session, error) {
				return testSession("s1", counter, true), nil
			},
		},
		Sequence: sequenceStub{
			currentFn: func(context.Context) (int64, error) { return counter, nil },
			setFn: func(_ context.Context, v int64) error {
				if v < 1 {
					return fmt.Errorf("%w: sequence must be at least 1", session.ErrInvalidInput)
				}
				counter = v
				return nil
			},
			resetFn: func(context.Context) error {
				counter = 1
				return nil
			},
		},
	}, logger: discardLogger()}

	_, got, err := h.getSequence(ctx, nil, GetSequenceParams{})
	require.NoError(t, err)
	require.Equal(t, SequenceResponse{SessionID: "s1", NextSequence: 7}, got)

	_, got, err = h.setSequence(ctx, nil, SetSequenceParams{Value: 12})
	require.NoError(t, err)
	require.Equal(t, int64(12), got.NextSequence)

	_, _, err = h.setSequence(ctx, nil, SetSequenceParams{Value: 0})
	requireCode(t, err, "INVALID_INPUT")

	_, got, err = h.resetSequence(ctx, nil, ResetSequenceParams{})
	require.NoError(t, err)
	require.Equal(t, int64(1), got.NextSequence)
}

func TestTools_Photos(t *testing.T) {
	ctx := context.Background()
	var bySession, all bool
	h := &toolHandler{services: Services{
		Photos: photoStub{
			getFn: func(_ context.Context, id string) (*photo.Record, error) {
				if id != "p1" {
					return nil, photo.ErrRecordNotFound
				}
				rec := testRecord("p1", "s1", 1)
				return &rec, nil
			},
			bySessionFn: func(_ context.Context, id string) ([]photo.Record, error) {
				bySession = true
				return []photo.Record{testRecord("p1", id, 1), testRecord("p2", id, 2)}, nil
			},
			allFn: func(context.Context) ([]photo.Record, error) {
				all = true
				return nil, nil
			},
			notesFn: func(_ context.Context, id string, notes *string) (*photo.Record, error) {
				rec := testRecord(id, "s1", 1)
				rec.Notes = notes
				return &rec, nil
			},
		},
	}, logger: discardLogger()}

	_, listed, err := h.listPhotos(ctx, nil, ListPhotosParams{SessionID: "s1"})
	require.NoError(t, err)
	require.True(t, bySession)
	require.Len(t, listed.Photos, 2)
	require.Equal(t, int64(2), listed.Photos[1].SequenceNumber)

	_, listed, err = h.listPhotos(ctx, nil, ListPhotosParams{})
	require.NoError(t, err)
	require.True(t, all)
	require.NotNil(t, listed.Photos)
	require.Empty(t, listed.Photos)

	_, got, err := h.getPhoto(ctx, nil, GetPhotoParams{PhotoID: "p1"})
	require.NoError(t, err)
	require.Equal(t, "portrait", got.Photo.Orientation)

	_, _, err = h.getPhoto(ctx, nil, GetPhotoParams{PhotoID: "missing"})
	requireCode(t, err, "PHOTO_NOT_FOUND")

	notes := "crack near joint"
	_, got, err = h.updateNotes(ctx, nil, UpdateNotesParams{PhotoID: "p1", Notes: &notes})
	require.NoError(t, err)
	require.Equal(t, &notes, got.Photo.Notes)
}

func TestTools_CaptureAndReplace(t *testing.T) {
	ctx := context.Background()
	var saved []byte
	var meta photo.Metadata
	h := &toolHandler{services: Services{
		Photos: photoStub{
			saveFn: func(_ context.Context, full []byte, m photo.Metadata) (*photo.Record, error) {
				saved, meta = full, m
				rec := testRecord("p7", "s1", 3)
				return &rec, nil
			},
			replaceFn: func(_ context.Context, id string, full []byte) (*photo.Record, error) {
				if id != "p7" {
					return nil, photo.ErrRecordNotFound
				}
				rec := testRecord(id, "s1", 3)
				rec.Annotated = true
				return &rec, nil
			},
		},
	}, logger: discardLogger()}

	lat, lon := 48.85, 2.35
	notes := "north wall"
	_, got, err := h.capturePhoto(ctx, nil, CapturePhotoParams{
		ImageBase64: base64.StdEncoding.EncodeToString([]byte("jpeg")),
		Orientation: "landscape_right",
		Latitude:    &lat,
		Longitude:   &lon,
		Notes:       &notes,
	})
	require.NoError(t, err)
	require.Equal(t, int64(3), got.Photo.SequenceNumber)
	require.Equal(t, []byte("jpeg"), saved)
	require.Equal(t, photo.OrientationLandscapeRight, meta.Orientation)
	require.Equal(t, &photo.Location{Latitude: lat, Longitude: lon}, meta.Location)
	require.Equal(t, &notes, meta.Notes)

	_, _, err = h.capturePhoto(ctx, nil, CapturePhotoParams{ImageBase64: "not base64!"})
	requireCode(t, err, "INVALID_INPUT")
	_, _, err = h.capturePhoto(ctx, nil, CapturePhotoParams{ImageBase64: "anBlZw==", Latitude: &lat})
	requireCode(t, err, "INVALID_INPUT")
	_, _, err = h.capturePhoto(ctx, nil, CapturePhotoParams{})
	requireCode(t, err, "INVALID_INPUT")

	_, got, err = h.replacePhoto(ctx, nil, ReplacePhotoParams{PhotoID: "p7", ImageBase64: "anBlZw=="})
	require.NoError(t, err)
	require.True(t, got.Photo.Annotated)

	_, _, err = h.replacePhoto(ctx, nil, ReplacePhotoParams{PhotoID: "gone", ImageBase64: "anBlZw=="})
	requireCode(t, err, "PHOTO_NOT_FOUND")
}

func TestTools_DeletePhotosReportsGroups(t *testing.T) {
	ctx := context.Background()
	h := &toolHandler{services: Services{
		Photos: photoStub{
			deleteFn: func(_ context.Context, ids []string) ([]photo.GroupResult, error) {
				failure := fmt.Errorf("%w: disk I/O error", photo.ErrPersistence)
				return []photo.GroupResult{
					{SessionID: "s1", Deleted: []string{"p1", "p2"}},
					{SessionID: "s2", Err: failure},
				}, errors.Join(failure)
			},
		},
	}, logger: discardLogger()}

	_, out, err := h.deletePhotos(ctx, nil, DeletePhotosParams{PhotoIDs: []string{"p1", "p2", "p9"}})
	require.NoError(t, err)
	require.Len(t, out.Groups, 2)
	require.Equal(t, []string{"p1", "p2"}, out.Groups[0].Deleted)
	require.Nil(t, out.Groups[0].Error)
	require.Empty(t, out.Groups[1].Deleted)
	require.NotNil(t, out.Groups[1].Error)
	require.Equal(t, "PERSISTENCE_ERROR", out.Groups[1].Error.Code)
}

func TestTools_DeletePhotosUnknownID(t *testing.T) {
	h := &toolHandler{services: Services{
		Photos: photoStub{
			deleteFn: func(context.Context, []string) ([]photo.GroupResult, error) {
				return nil, fmt.Errorf("%w: p9", photo.ErrRecordNotFound)
			},
		},
	}, logger: discardLogger()}

	_, _, err := h.deletePhotos(context.Background(), nil, DeletePhotosParams{PhotoIDs: []string{"p9"}})
	requireCode(t, err, "PHOTO_NOT_FOUND")
}

func TestMapError(t *testing.T) {
	cases := []struct {
		err  error
		code string
	}{
		{photo.ErrRecordNotFound, "PHOTO_NOT_FOUND"},
		{session.ErrSessionNotFound, "SESSION_NOT_FOUND"},
		{fmt.Errorf("capture: %w", session.ErrNoActiveSession), "NO_ACTIVE_SESSION"},
		{photo.ErrInvalidInput, "INVALID_INPUT"},
		{session.ErrInvalidInput, "INVALID_INPUT"},
		{photo.ErrStorage, "STORAGE_ERROR"},
		{session.ErrPersistence, "PERSISTENCE_ERROR"},
		{errors.New("boom"), "INTERNAL"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			apiErr := MapError(tc.err)
			require.NotNil(t, apiErr)
			require.Equal(t, tc.code, apiErr.Code)
			require.Equal(t, tc.err.Error(), apiErr.Details)
		})
	}
	require.Nil(t, MapError(nil))
}

func TestServer_ToolsOverInMemoryTransport(t *testing.T) {
	ctx := context.Background()
	server := NewServer(Config{
		Services: Services{
			Sessions: sessionStub{
				activeFn: func(context.Context) (*session.Session, error) {
					return nil, session.ErrNoActiveSession
				},
			},
			Sequence: sequenceStub{},
		},
		TransportMode: "stdio",
	})

	clientTransport, serverTransport := sdkmcp.NewInMemoryTransports()
	serverSession, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	defer serverSession.Close()

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	defer cs.Close()

	tools, err := cs.ListTools(ctx, nil)
	require.NoError(t, err)
	names := make([]string, 0, len(tools.Tools))
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	require.ElementsMatch(t, []string{
		"create_session", "switch_session", "list_sessions", "rename_session", "prune_sessions",
		"get_sequence", "set_sequence", "reset_sequence",
		"capture_photo", "replace_photo",
		"list_photos", "get_photo", "update_photo_notes", "delete_photos",
	}, names)

	res, err := cs.CallTool(ctx, &sdkmcp.CallToolParams{Name: "get_sequence", Arguments: map[string]any{}})
	require.NoError(t, err)
	require.True(t, res.IsError)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(*sdkmcp.TextContent)
	require.True(t, ok)
	require.Contains(t, text.Text, "NO_ACTIVE_SESSION")

	resources, err := cs.ListResources(ctx, nil)
	require.NoError(t, err)
	require.Len(t, resources.Resources, len(docResources))
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "expected APIError, got %T", err)
	require.Equal(t, code, apiErr.Code)
}

func TestFormatPayload(t *testing.T) {
	require.Equal(t, "<nil>", formatPayload(nil))
	require.Equal(t, `{"a":1}`, formatPayload(map[string]int{"a": 1}))

	long := formatPayload(strings.Repeat("x", 5000))
	require.True(t, strings.HasSuffix(long, "...(truncated)"))
	require.Less(t, len(long), 2100)

	require.Equal(t, "func()", formatPayload(func() {}))
}
