// Package testserver runs the full fieldcam stack over real SQLite and a
// temporary artifact directory for end-to-end tests.
package testserver

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/fieldcam/internal/artifact"
	"github.com/rpggio/fieldcam/internal/clock"
	"github.com/rpggio/fieldcam/internal/domain/photo"
	"github.com/rpggio/fieldcam/internal/domain/session"
	"github.com/rpggio/fieldcam/internal/events"
	"github.com/rpggio/fieldcam/internal/mcp"
	"github.com/rpggio/fieldcam/internal/sqlite"
	"github.com/rpggio/fieldcam/internal/transport"
	"github.com/stretchr/testify/require"
)

type TestServer struct {
	Server    *httptest.Server
	DB        *sqlite.DB
	Dir       string
	Files     *artifact.FileStore
	Cache     *artifact.Cache
	Bus       *events.Bus
	Clock     *clock.FakeClock
	Sessions  *session.Service
	Allocator *session.Allocator
	Photos    *photo.Service

	stream    *transport.EventStream
	closeOnce sync.Once
}

// Option adjusts the stack before it is wired.
type Option func(*options)

type options struct {
	policy  session.ResetPolicy
	clock   *clock.FakeClock
	startup bool
}

// WithPolicy sets the session reset policy.
func WithPolicy(p session.ResetPolicy) Option {
	return func(o *options) { o.policy = p }
}

// WithClock shares a fake clock, e.g. across a restart.
func WithClock(c *clock.FakeClock) Option {
	return func(o *options) { o.clock = c }
}

// WithoutStartup skips EnsureActive and Reconcile.
func WithoutStartup() Option {
	return func(o *options) { o.startup = false }
}

// New starts a server in a fresh temporary directory.
func New(t *testing.T, opts ...Option) *TestServer {
	t.Helper()
	return Open(t, t.TempDir(), opts...)
}

// Open starts a server over dir, reusing any database and artifacts a
// previous server left there.
func Open(t *testing.T, dir string, opts ...Option) *TestServer {
	t.Helper()

	o := options{policy: session.SessionScoped{}, startup: true}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = clock.Fake(time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC))
		o.clock.SetStep(time.Millisecond)
	}

	db, err := sqlite.New(filepath.Join(dir, "fieldcam.db"))
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())

	files, err := artifact.NewFileStore(filepath.Join(dir, "artifacts"))
	require.NoError(t, err)
	cache := artifact.NewCache(8 << 20)
	bus := events.NewBus(nil)

	sessions := session.NewService(sqlite.NewSessionRepository(db), bus, o.clock, o.policy, nil)
	allocator := session.NewAllocator(sessions)
	photos := photo.NewService(
		sqlite.NewPhotoRepository(db),
		sqlite.NewIntentRepository(db),
		artifact.NewCachedStore(files, cache),
		sessions,
		allocator,
		bus,
		o.clock,
		photo.Options{ThumbnailBox: artifact.Box{Width: 32, Height: 32}},
		nil,
	)

	if o.startup {
		ctx := context.Background()
		_, err := sessions.EnsureActive(ctx)
		require.NoError(t, err)
		require.NoError(t, photos.Reconcile(ctx))
	}

	mcpServer := mcp.NewServer(mcp.Config{
		Services: mcp.Services{
			Sessions: sessions,
			Sequence: allocator,
			Photos:   photos,
		},
		TransportMode: "http",
	})
	mcpHandler := sdkmcp.NewStreamableHTTPHandler(
		func(*http.Request) *sdkmcp.Server { return mcpServer },
		nil,
	)
	stream := transport.NewEventStream(bus, nil)
	server := httptest.NewServer(transport.NewServer(transport.Config{
		Photos: photos,
		Events: stream,
		MCP:    mcpHandler,
	}))

	ts := &TestServer{
		Server:    server,
		DB:        db,
		Dir:       dir,
		Files:     files,
		Cache:     cache,
		Bus:       bus,
		Clock:     o.clock,
		Sessions:  sessions,
		Allocator: allocator,
		Photos:    photos,
		stream:    stream,
	}
	t.Cleanup(ts.Close)
	return ts
}

// Close stops the server and closes the database. It is safe to call more
// than once.
func (ts *TestServer) Close() {
	ts.closeOnce.Do(func() {
		ts.stream.Close()
		ts.Server.Close()
		_ = ts.DB.Close()
	})
}

// MCPClient connects an MCP client over streamable HTTP.
func (ts *TestServer) MCPClient(t *testing.T) *sdkmcp.ClientSession {
	t.Helper()
	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "fieldcam-test", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(context.Background(), &sdkmcp.StreamableClientTransport{Endpoint: ts.Server.URL + "/mcp"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

// Capture saves a generated photo into the active session.
func (ts *TestServer) Capture(t *testing.T) *photo.Record {
	t.Helper()
	rec, err := ts.Photos.SaveCapture(context.Background(), JPEG(t, 64, 48), photo.Metadata{})
	require.NoError(t, err)
	return rec
}

// JPEG encodes a solid w by h image.
func JPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 4), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}))
	return buf.Bytes()
}
