package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rpggio/fieldcam/internal/domain/photo"
	"github.com/rpggio/fieldcam/internal/domain/session"
	"github.com/stretchr/testify/require"
)

type photoStub struct {
	full  map[string][]byte
	thumb map[string][]byte
	err   error

	save    func(full []byte, meta photo.Metadata) (*photo.Record, error)
	replace func(id string, full []byte) (*photo.Record, error)
}

func (a *photoStub) SaveCapture(_ context.Context, full []byte, meta photo.Metadata) (*photo.Record, error) {
	if a.save == nil {
		return nil, errors.New("unexpected SaveCapture")
	}
	return a.save(full, meta)
}

func (a *photoStub) ReplaceArtifact(_ context.Context, id string, full []byte) (*photo.Record, error) {
	if a.replace == nil {
		return nil, errors.New("unexpected ReplaceArtifact")
	}
	return a.replace(id, full)
}

func (a *photoStub) LoadFullImage(_ context.Context, id string) ([]byte, error) {
	return a.load(a.full, id)
}

func (a *photoStub) LoadThumbnail(_ context.Context, id string) ([]byte, error) {
	return a.load(a.thumb, id)
}

func (a *photoStub) load(m map[string][]byte, id string) ([]byte, error) {
	if a.err != nil {
		return nil, a.err
	}
	data, ok := m[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", photo.ErrRecordNotFound, id)
	}
	return data, nil
}

func TestHTTPServer_Health(t *testing.T) {
	server := httptest.NewServer(NewServer(Config{Photos: &photoStub{}}))
	t.Cleanup(server.Close)

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHTTPServer_Artifacts(t *testing.T) {
	stub := &photoStub{
		full:  map[string][]byte{"p1": []byte("full-bytes")},
		thumb: map[string][]byte{"p1": []byte("thumb")},
	}
	server := httptest.NewServer(NewServer(Config{Photos: stub}))
	t.Cleanup(server.Close)

	for path, want := range map[string]string{
		"/photos/p1/full":      "full-bytes",
		"/photos/p1/thumbnail": "thumb",
	} {
		resp, err := http.Get(server.URL + path)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
		require.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))
		require.Equal(t, want, string(body))
	}
}

func TestHTTPServer_ArtifactErrors(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		server := httptest.NewServer(NewServer(Config{Photos: &photoStub{}}))
		t.Cleanup(server.Close)

		resp, err := http.Get(server.URL + "/photos/missing/full")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusNotFound, resp.StatusCode)

		var body errorResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		require.Equal(t, "PHOTO_NOT_FOUND", body.Error.Code)
	})

	t.Run("storage failure", func(t *testing.T) {
		stub := &photoStub{err: fmt.Errorf("%w: disk gone", photo.ErrStorage)}
		server := httptest.NewServer(NewServer(Config{Photos: stub}))
		t.Cleanup(server.Close)

		resp, err := http.Get(server.URL + "/photos/p1/thumbnail")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	})
}

func TestHTTPServer_MountsMCP(t *testing.T) {
	var hit bool
	mcp := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hit = true
		w.WriteHeader(http.StatusAccepted)
	})
	server := httptest.NewServer(NewServer(Config{Photos: &photoStub{}, MCP: mcp}))
	t.Cleanup(server.Close)

	resp, err := http.Post(server.URL+"/mcp", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.True(t, hit)
}

func TestHTTPServer_Capture(t *testing.T) {
	var gotBody []byte
	var gotMeta photo.Metadata
	stub := &photoStub{save: func(full []byte, meta photo.Metadata) (*photo.Record, error) {
		gotBody, gotMeta = full, meta
		return &photo.Record{ID: "p9", SessionID: "s1", SequenceNumber: 4, Orientation: photo.OrientationLandscapeLeft}, nil
	}}
	server := httptest.NewServer(NewServer(Config{Photos: stub}))
	t.Cleanup(server.Close)

	resp, err := http.Post(server.URL+"/photos?orientation=landscape_left&lat=51.5&lon=-0.12&notes=crack", "image/jpeg", strings.NewReader("jpeg-bytes"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "/photos/p9/full", resp.Header.Get("Location"))

	var rec photo.Record
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rec))
	require.Equal(t, "p9", rec.ID)
	require.Equal(t, int64(4), rec.SequenceNumber)

	require.Equal(t, "jpeg-bytes", string(gotBody))
	require.Equal(t, photo.OrientationLandscapeLeft, gotMeta.Orientation)
	require.Equal(t, &photo.Location{Latitude: 51.5, Longitude: -0.12}, gotMeta.Location)
	require.NotNil(t, gotMeta.Notes)
	require.Equal(t, "crack", *gotMeta.Notes)
}

func TestHTTPServer_CaptureErrors(t *testing.T) {
	stub := &photoStub{save: func([]byte, photo.Metadata) (*photo.Record, error) {
		return nil, fmt.Errorf("resolving capture session: %w", session.ErrNoActiveSession)
	}}
	server := httptest.NewServer(NewServer(Config{Photos: stub}))
	t.Cleanup(server.Close)

	tests := []struct {
		name   string
		query  string
		body   string
		status int
		code   string
	}{
		{name: "empty body", body: "", status: http.StatusBadRequest, code: "INVALID_INPUT"},
		{name: "lat without lon", query: "?lat=1", body: "x", status: http.StatusBadRequest, code: "INVALID_INPUT"},
		{name: "bad lon", query: "?lat=1&lon=east", body: "x", status: http.StatusBadRequest, code: "INVALID_INPUT"},
		{name: "no active session", body: "x", status: http.StatusConflict, code: "NO_ACTIVE_SESSION"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(server.URL+"/photos"+tt.query, "image/jpeg", strings.NewReader(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()
			require.Equal(t, tt.status, resp.StatusCode)

			var body errorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			require.Equal(t, tt.code, body.Error.Code)
		})
	}
}

func TestHTTPServer_Replace(t *testing.T) {
	stub := &photoStub{replace: func(id string, full []byte) (*photo.Record, error) {
		if id != "p1" {
			return nil, fmt.Errorf("%w: %s", photo.ErrRecordNotFound, id)
		}
		return &photo.Record{ID: id, Annotated: true, Checksum: string(full)}, nil
	}}
	server := httptest.NewServer(NewServer(Config{Photos: stub}))
	t.Cleanup(server.Close)

	put := func(id, body string) *http.Response {
		req, err := http.NewRequest(http.MethodPut, server.URL+"/photos/"+id+"/full", strings.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "image/jpeg")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	resp := put("p1", "annotated")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rec photo.Record
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rec))
	require.True(t, rec.Annotated)
	require.Equal(t, "annotated", rec.Checksum)

	resp = put("missing", "annotated")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStatusFor(t *testing.T) {
	status, code := statusFor(photo.ErrInvalidInput)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "INVALID_INPUT", code)

	status, code = statusFor(fmt.Errorf("wrapped: %w", session.ErrNoActiveSession))
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "NO_ACTIVE_SESSION", code)

	status, code = statusFor(errors.New("boom"))
	require.Equal(t, http.StatusInternalServerError, status)
	require.Equal(t, "INTERNAL", code)
}
