package main

import (
	"context"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/infrastructure/rest"
	"chat-relay/infrastructure/ws"
	"chat-relay/internal"
	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/search"
	"chat-relay/services"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	// The main function acts as a thin wrapper.
	// Its only responsibility is to call run() and handle the OS exit code.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// The pattern keeps every defer (database close, index flush) on the exit path and
// keeps initialization testable, unlike direct os.Exit calls scattered around.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()

	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}

	logger := logs.GetLoggerFromString(config.LogLevel)
	ctx := context.Background()

	// 2. Storage (BadgerDB + Bluge)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	if logger.Enabled(ctx, slog.LevelDebug) {
		debugPort := 8081
		endpoint := "/inspect"
		logger.Info("Debug Badger inspector available",
			"url", fmt.Sprintf("http://localhost:%d%s", debugPort, endpoint))
		database.StartDebugServer(db, debugPort, endpoint, messageMapper)
	}

	index, err := search.NewMessageIndex(config.BlugeFilepath)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open search index: %w", err)
	}
	defer func() {
		logger.Info("Closing search index...")
		_ = index.Close()
	}()

	// 3. Core components
	monitoring := observability.NewMonitoringManager()
	tokens := auth.NewTokenManager(config.JWTSecret, config.AuthTokenDuration)
	gate := auth.NewGate(tokens, config.AllowedOrigins, config.Permissive, logger)

	censor, err := moderation.NewEmbeddedCensor(charReplacement)
	if err != nil {
		return exitRuntime, fmt.Errorf("censor init failed: %w", err)
	}

	messageRepository := repositories.NewMessageRepository(db, logger, config.LimitMessages)
	userRepository := repositories.NewUserRepository(db)

	registry := runtime.NewRoomRegistry(monitoring, logger)
	presence := runtime.NewPresenceService(registry)

	persistQueue := make(chan domain.PersistJob, config.PersistQueueSize)
	indexQueue := make(chan repositories.DiskMessage, config.IndexQueueSize)
	router := runtime.NewMessageRouter(registry, censor, persistQueue, monitoring, logger)

	// 4. Background workers
	sup := workers.NewSupervisor(logger, monitoring, config.RestartInterval)
	for i := 0; i < config.PersistWorkers; i++ {
		sup.Add(workers.NewPersistWorker(persistQueue, messageRepository, indexQueue, monitoring, logger))
	}
	sup.Add(
		workers.NewIndexWorker(indexQueue, index, logger),
		workers.NewHeartbeatWorker(monitoring, config.MetricInterval, logger),
	)

	// 5. Context & Signals
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	supDone := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(supDone)
	}()

	// 6. HTTP surface (websocket + REST)
	authService := services.NewAuthService(userRepository, tokens)
	chatService := services.NewChatService(messageRepository, userRepository, index)

	wsOpts := ws.ClientOptions{
		BufferSize:      config.ConnectionBufferSize,
		DeliveryTimeout: config.DeliveryTimeout,
		WriteTimeout:    config.WriteTimeout,
		PongTimeout:     config.PongTimeout,
		MaxMessageSize:  config.MaxMessageSize,
	}

	mux := http.NewServeMux()
	ws.NewHandler(gate, registry, presence, router, monitoring, wsOpts, config.AuthRequired, logger).Register(mux)
	rest.NewHandler(authService, chatService, gate, monitoring, config.MaxAvatarBytes, logger).Register(mux)

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server := &http.Server{Addr: address, Handler: mux}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "address", address, "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && !goerrors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		return exitRuntime, err
	}

	// 8. Graceful Shutdown
	// Stop accepting connections first, then let the workers drain.
	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown did not finish cleanly", "error", err)
	}

	sup.Stop()
	select {
	case <-supDone:
	case <-time.After(config.ShutdownTimeout):
		logger.Warn("Workers did not stop within the shutdown timeout")
	}

	logger.Info("Program stopped cleanly")
	return exitOK, nil
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG).
			WithBypassLockGuard(true)
	} else {
		options = options.WithLoggingLevel(badger.INFO)
	}

	return options
}

// messageMapper renders stored messages in the Badger debug inspector.
func messageMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)

	var msg repositories.DiskMessage
	if err := json.Unmarshal(val, &msg); err != nil {
		return row
	}

	row.Type = "MESSAGE"
	row.Detail = fmt.Sprintf("%s -> %s: %s", msg.Sender, msg.Receiver, msg.Content)
	return row
}
