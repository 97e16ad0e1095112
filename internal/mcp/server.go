package mcp

import (
	"context"
	"log/slog"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/fieldcam/internal/domain/photo"
	"github.com/rpggio/fieldcam/internal/domain/session"
)

// SessionService defines session registry operations needed by MCP.
type SessionService interface {
	CreateSession(ctx context.Context, name string) (*session.Session, error)
	SwitchTo(ctx context.Context, sessionID string) (bool, error)
	ActiveSession(ctx context.Context) (*session.Session, error)
	GetSession(ctx context.Context, sessionID string) (*session.Session, error)
	ListSummaries(ctx context.Context) ([]session.Summary, error)
	RenameSession(ctx context.Context, sessionID, name string) error
}

// SequenceService defines sequence counter operations needed by MCP.
type SequenceService interface {
	Current(ctx context.Context) (int64, error)
	Set(ctx context.Context, value int64) error
	Reset(ctx context.Context) error
}

// PhotoService defines photo catalog operations needed by MCP.
type PhotoService interface {
	SaveCapture(ctx context.Context, full []byte, meta photo.Metadata) (*photo.Record, error)
	ReplaceArtifact(ctx context.Context, id string, full []byte) (*photo.Record, error)
	Get(ctx context.Context, id string) (*photo.Record, error)
	ListBySession(ctx context.Context, sessionID string) ([]photo.Record, error)
	ListAll(ctx context.Context) ([]photo.Record, error)
	UpdateNotes(ctx context.Context, id string, notes *string) (*photo.Record, error)
	DeleteMany(ctx context.Context, ids []string) ([]photo.GroupResult, error)
	PruneSessions(ctx context.Context, maxRetained int) ([]session.Session, error)
}

// Services contains all domain services needed by MCP.
type Services struct {
	Sessions SessionService
	Sequence SequenceService
	Photos   PhotoService
}

// Config contains server configuration.
type Config struct {
	Services      Services
	TransportMode string // "stdio" or "http"
	Version       string
	Logger        *slog.Logger
}

// NewServer creates and configures an MCP server with all tools and middleware.
func NewServer(cfg Config) *sdkmcp.Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	version := cfg.Version
	if version == "" {
		version = "0.1.0"
	}

	server := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "fieldcam",
		Version: version,
	}, &sdkmcp.ServerOptions{
		Instructions: serverInstructions,
		Logger:       logger,
	})

	registerDocResources(server)

	server.AddReceivingMiddleware(trafficLoggingMiddleware(logger, "inbound"))
	server.AddSendingMiddleware(trafficLoggingMiddleware(logger, "outbound"))

	registerTools(server, &toolHandler{services: cfg.Services, logger: logger.With("transport", cfg.TransportMode)})

	return server
}
