package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/fieldcam/internal/artifact"
	"github.com/rpggio/fieldcam/internal/clock"
	"github.com/rpggio/fieldcam/internal/config"
	"github.com/rpggio/fieldcam/internal/domain/photo"
	"github.com/rpggio/fieldcam/internal/domain/session"
	"github.com/rpggio/fieldcam/internal/events"
	"github.com/rpggio/fieldcam/internal/mcp"
	"github.com/rpggio/fieldcam/internal/sqlite"
	"github.com/rpggio/fieldcam/internal/transport"
	"github.com/spf13/pflag"
)

const version = "0.1.0"

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	// Use stderr for logs in stdio mode to keep stdout clean for JSON-RPC.
	logWriter := io.Writer(os.Stdout)
	if cfg.Transport.Mode == "stdio" {
		logWriter = os.Stderr
	}
	if logPath := os.Getenv("FIELDCAM_LOG_PATH"); logPath != "" {
		fileWriter, file, err := newLogFileWriter(logPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "log file error: %v\n", err)
		} else {
			defer file.Close()
			logWriter = fileWriter
		}
	}
	logger := slog.New(slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Log.Level),
	}))

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

// loadConfig applies command-line flags over file and environment config.
func loadConfig(args []string) (config.Config, error) {
	flags := pflag.NewFlagSet("fieldcam", pflag.ContinueOnError)
	transportMode := flags.String("transport", "", "transport mode: stdio or http")
	host := flags.String("host", "", "HTTP listen host")
	port := flags.Int("port", 0, "HTTP listen port")
	dbPath := flags.String("db", "", "SQLite database path")
	storageRoot := flags.String("storage", "", "artifact storage root")
	logLevel := flags.String("log-level", "", "log level: debug, info, warn or error")
	configPath := flags.String("config", "", "YAML config file (overrides FIELDCAM_CONFIG_PATH)")
	if err := flags.Parse(args); err != nil {
		return config.Config{}, err
	}

	if flags.Changed("config") {
		if err := os.Setenv("FIELDCAM_CONFIG_PATH", *configPath); err != nil {
			return config.Config{}, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}

	if flags.Changed("transport") {
		cfg.Transport.Mode = *transportMode
	}
	if flags.Changed("host") {
		cfg.Server.Host = *host
	}
	if flags.Changed("port") {
		cfg.Server.Port = *port
	}
	if flags.Changed("db") {
		cfg.DB.Path = *dbPath
	}
	if flags.Changed("storage") {
		cfg.Storage.Root = *storageRoot
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = *logLevel
	}
	return cfg, cfg.Validate()
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := ensureDBDir(cfg.DB.Path); err != nil {
		return fmt.Errorf("prepare database path: %w", err)
	}
	db, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.RunMigrations(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	files, err := artifact.NewFileStore(cfg.Storage.Root)
	if err != nil {
		return fmt.Errorf("open artifact store: %w", err)
	}
	cache := artifact.NewCache(cfg.Cache.MaxBytes)
	store := artifact.NewCachedStore(files, cache)

	bus := events.NewBus(logger)
	clk := clock.Real()

	policy, err := session.ParseResetPolicy(cfg.Sessions.ResetPolicy)
	if err != nil {
		return err
	}
	sessions := session.NewService(sqlite.NewSessionRepository(db), bus, clk, policy, logger)
	sessions.SetDefaultName(cfg.Sessions.DefaultName)
	allocator := session.NewAllocator(sessions)

	photos := photo.NewService(
		sqlite.NewPhotoRepository(db),
		sqlite.NewIntentRepository(db),
		store,
		sessions,
		allocator,
		bus,
		clk,
		photo.Options{
			ThumbnailBox:     artifact.Box{Width: cfg.Thumbnail.Width, Height: cfg.Thumbnail.Height},
			ThumbnailQuality: cfg.Thumbnail.Quality,
			IOLimit:          cfg.Workers.IOLimit,
		},
		logger,
	)

	if err := startup(ctx, cfg, sessions, photos, logger); err != nil {
		return err
	}

	monitor := artifact.NewPressureMonitor(cache, cfg.Cache.HeapLimitBytes, cfg.Cache.PressureCheckInterval, clk, logger)
	go monitor.Run(ctx)

	mcpServer := mcp.NewServer(mcp.Config{
		Services: mcp.Services{
			Sessions: sessions,
			Sequence: allocator,
			Photos:   photos,
		},
		TransportMode: cfg.Transport.Mode,
		Version:       version,
		Logger:        logger,
	})

	if cfg.Transport.Mode == "stdio" {
		return runStdioMode(ctx, logger, mcpServer)
	}
	return runHTTPMode(ctx, logger, mcpServer, photos, bus, cfg.Server.Host, cfg.Server.Port)
}

// startup makes sure a session is active, repairs anything a crash left
// behind and applies the retention cap.
func startup(ctx context.Context, cfg config.Config, sessions *session.Service, photos *photo.Service, logger *slog.Logger) error {
	active, err := sessions.EnsureActive(ctx)
	if err != nil {
		return fmt.Errorf("ensure active session: %w", err)
	}
	logger.Info("active session", "session_id", active.ID, "name", active.Name, "next_sequence", active.SequenceCounter)

	if err := photos.Reconcile(ctx); err != nil {
		logger.Warn("startup reconciliation incomplete", "error", err)
	}

	pruned, err := photos.PruneSessions(ctx, cfg.Sessions.MaxRetained)
	if err != nil {
		logger.Warn("session pruning incomplete", "error", err)
	}
	if len(pruned) > 0 {
		logger.Info("pruned sessions", "count", len(pruned))
	}
	return nil
}

func runStdioMode(ctx context.Context, logger *slog.Logger, mcpServer *sdkmcp.Server) error {
	logger.Info("starting stdio transport")

	// Run blocks until stdin closes or ctx is canceled.
	if err := mcpServer.Run(ctx, &sdkmcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("stdio server: %w", err)
	}
	logger.Info("shutting down")
	return nil
}

func runHTTPMode(ctx context.Context, logger *slog.Logger, mcpServer *sdkmcp.Server, photos *photo.Service, bus *events.Bus, host string, port int) error {
	mcpHandler := sdkmcp.NewStreamableHTTPHandler(
		func(*http.Request) *sdkmcp.Server { return mcpServer },
		&sdkmcp.StreamableHTTPOptions{
			SessionTimeout: 30 * time.Minute,
		},
	)
	stream := transport.NewEventStream(bus, logger)

	router := transport.NewServer(transport.Config{
		Photos: photos,
		Events: stream,
		MCP:    mcpHandler,
		Logger: logger,
	})

	addr := fmt.Sprintf("%s:%d", host, port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logger.Info("shutting down")
	stream.Close()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	return nil
}

func ensureDBDir(path string) error {
	if path == ":memory:" || path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
