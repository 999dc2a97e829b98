package main

import (
	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/infrastructure/grpc/server"
	"chat-relay/infrastructure/rest"
	"chat-relay/infrastructure/ws"
	"chat-relay/internal"
	"chat-relay/moderation"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/services"
	"chat-relay/storage"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
	"google.golang.org/grpc"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Relay terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the servers lifecycle and centralizes error reporting.
// Returning instead of exiting lets every defer (database, index, sequence lease) run.
func run() (int, error) {
	// 1. Configuration & Logger
	config, err := internal.LoadConfig(".env")
	if err != nil {
		return exitConfig, err
	}
	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}
	logger := logs.GetLoggerFromString(config.LogLevel)

	// NotifyContext captures OS signals and cancels the context to trigger a shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Storage (BadgerDB, Bluge)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	if logger.Enabled(ctx, slog.LevelDebug) {
		endpoint := "/inspect"
		logger.Info("Debug Badger inspector available", "url", fmt.Sprintf("http://localhost:%d%s", config.DebugPort, endpoint))
		database.StartDebugServer(db, config.DebugPort, endpoint, RecordMapper)
	}

	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	defer func() {
		logger.Info("Closing Bluge...")
		_ = blugeWriter.Close()
	}()

	messageRepository, err := repositories.NewMessageRepository(db, logger, config.LimitMessages)
	if err != nil {
		return exitRuntime, err
	}
	defer func() { _ = messageRepository.Close() }()
	conversationRepository := repositories.NewConversationRepository(db, logger)
	searchIndex := repositories.NewSearchIndex(blugeWriter, logger)

	files, filesDir, err := buildFileStorage(ctx, config, logger)
	if err != nil {
		return exitRuntime, err
	}

	var censor contract.Censor
	if config.ModerationEnabled {
		data, err := moderation.NewEmbeddedLoader().LoadAll("censored")
		if err != nil {
			return exitRuntime, fmt.Errorf("unable to load censored words: %w", err)
		}
		moderator, err := moderation.NewModerator(data.Words, charReplacement, logger)
		if err != nil {
			return exitRuntime, err
		}
		logger.Info("Moderation enabled", "words", len(data.Words), "languages", data.Languages)
		censor = moderator
	}

	// 3. Setup Supervision & Orchestration
	sup := workers.NewSupervisor(logger, config.RestartInterval)
	registry := runtime.NewRegistry()
	fanout := workers.NewEventFanout(logger, registry, config.BufferSize, config.SinkTimeout)
	coordinator := runtime.NewCoordinator(logger, messageRepository, conversationRepository, fanout, files, searchIndex, censor)
	orchestrator := runtime.NewOrchestrator(logger, sup, registry, fanout, coordinator, config.MetricInterval)

	checks := map[string]func(ctx context.Context) error{
		"badger": func(context.Context) error {
			if db.IsClosed() {
				return errors.New("badger is closed")
			}
			return nil
		},
		"bluge": func(context.Context) error {
			reader, err := blugeWriter.Reader()
			if err != nil {
				return err
			}
			return reader.Close()
		},
	}
	healthServer := server.NewHealthServer(logger, checks, config.MetricInterval)
	sup.Add(healthServer)

	// 4. Surfaces (WebSocket, REST, gRPC health)
	var tokens *auth.TokenManager
	if config.JWTSecret != "" {
		tokens = auth.NewTokenManager(config.JWTSecret)
	} else {
		logger.Warn("JWT_SECRET is empty, authentication is disabled")
	}

	sessions := ws.NewHandler(logger, orchestrator, conversationRepository, ws.Config{
		ConnectionBufferSize: config.ConnectionBufferSize,
		WriteWait:            config.WriteWait,
		PongWait:             config.PongWait,
		MaxEnvelopeSize:      config.MaxEnvelopeSize,
		InboundRatePerSecond: config.InboundRatePerSecond,
		MaxContentLength:     config.MaxContentLength,
	})
	chatService := services.NewChatService(logger, messageRepository, conversationRepository, files, searchIndex, orchestrator, config.MaxUploadSize)
	router := rest.NewRouter(logger, rest.Dependencies{
		Chat:          chatService,
		Sessions:      sessions,
		Tokens:        tokens,
		FilesDir:      filesDir,
		MaxUploadSize: config.MaxUploadSize,
		Registry:      registry,
		Checks:        checks,
	})

	errChan := make(chan error, 3)

	go func() {
		logger.Info("Starting orchestrator...")
		if err := orchestrator.Start(ctx); err != nil {
			errChan <- fmt.Errorf("orchestrator error: %w", err)
		}
	}()

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	httpServer := &http.Server{
		Addr:              address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Starting HTTP server", "address", address, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	grpcAddress := fmt.Sprintf("%s:%d", config.Host, config.GRPCHealthPort)
	listener, err := net.Listen("tcp", grpcAddress)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", grpcAddress, err)
	}
	grpcServer := server.NewGRPCServer(logger, healthServer)
	go func() {
		logger.Info("Starting gRPC health server", "address", grpcAddress)
		if err := grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	// 5. Wait for Stop or Error
	code := exitOK
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-errChan:
		code = exitRuntime
	}

	// 6. Graceful shutdown
	// Sessions are closed first so that no command reaches a stopping coordinator.
	logger.Info("Shutting down gracefully...")
	sessions.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown incomplete", "error", err)
	}
	grpcServer.GracefulStop()
	orchestrator.Stop()
	logger.Info("Program stopped cleanly")

	return code, runErr
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)
	if logger.Enabled(ctx, slog.LevelDebug) {
		return options.WithLoggingLevel(badger.DEBUG)
	}
	return options.WithLoggingLevel(badger.WARNING)
}

// buildFileStorage picks S3 when a bucket is configured, then a local directory.
// The returned directory is served under /files, empty for S3.
func buildFileStorage(ctx context.Context, config internal.Config, logger *slog.Logger) (contract.FileStorage, string, error) {
	if config.S3Bucket != "" {
		s3, err := storage.NewS3Storage(ctx, config.S3Region, config.S3Bucket, config.S3Endpoint, logger)
		if err != nil {
			return nil, "", fmt.Errorf("unable to configure s3 storage: %w", err)
		}
		logger.Info("Attachments stored on S3", "bucket", config.S3Bucket)
		return s3, "", nil
	}
	if config.FilesDirpath == "" {
		logger.Warn("No file storage configured, uploads are discarded")
		return storage.NopStorage{}, "", nil
	}
	disk, err := storage.NewDiskStorage(config.FilesDirpath, config.FilesBaseURL, logger)
	if err != nil {
		return nil, "", err
	}
	logger.Info("Attachments stored on disk", "dir", disk.Dir())
	return disk, disk.Dir(), nil
}
