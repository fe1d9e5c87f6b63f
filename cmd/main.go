package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"chat-relay/auth"
	"chat-relay/bus"
	"chat-relay/contract"
	"chat-relay/httpapi"
	"chat-relay/moderation"
	"chat-relay/presence"
	"chat-relay/push"
	"chat-relay/realtime"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/services"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// This pattern is preferred over calling os.Exit or panic directly because:
// 1. It ensures all 'defer' statements (like database cleanup) are executed before the program exits.
// 2. It improves testability by decoupling the initialization logic from the main entry point.
// 3. It provides a structured way to handle graceful shutdowns for the HTTP server and background workers.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Storage (BadgerDB + search index)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.INFO))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	//  Defer will be executed before run() returned anything to main()
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	searchWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.SearchFilepath))
	if err != nil {
		return fmt.Errorf("search index opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing search index...")
		_ = searchWriter.Close()
	}()

	// 3. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Repositories
	messageRepository := repositories.NewMessageRepository(db, log)
	conversationRepository := repositories.NewConversationRepository(db, log)
	deviceRepository := repositories.NewDeviceRepository(db)
	searchRepository := repositories.NewSearchRepository(searchWriter, log)

	// 5. Fanout & presence. Without Redis the process runs standalone:
	// inert bus, in-memory presence swept by a janitor worker.
	var (
		fanoutBus bus.Bus
		tracker   presence.Tracker
		janitor   contract.Worker
	)
	if config.RedisURL != "" {
		redisBus, busErr := bus.NewRedisBus(ctx, config.RedisURL, log)
		if busErr != nil {
			return fmt.Errorf("fanout bus init failed: %w", busErr)
		}
		defer func() {
			log.Info("Closing fanout bus...")
			_ = redisBus.Close()
		}()
		fanoutBus = redisBus
		tracker = presence.NewRedisTracker(redisBus.Client(), log)
		log.Info("Distributed fanout enabled", "backend", "redis")
	} else {
		fanoutBus = bus.NewNoopBus()
		localTracker := presence.NewLocalTracker()
		tracker = localTracker
		janitor = workers.NewPresenceJanitor(localTracker, log, config.PresenceSweepInterval)
		log.Warn("No fanout backend configured, running single-instance")
	}

	// 6. Coordinator
	moderator, err := moderation.NewEmbeddedModerator(config.ModerationCharReplacement)
	if err != nil {
		return fmt.Errorf("moderator init failed: %w", err)
	}
	registry := runtime.NewRegistry(log)
	authenticator := auth.NewAuthenticator(config.JWTSecret)
	pusher := push.NewDispatcher(deviceRepository, push.NoopNotifier{}, log)

	chatService := services.NewChatService(
		log,
		messageRepository, conversationRepository, deviceRepository, searchRepository,
		fanoutBus, registry, tracker, pusher, &moderator,
	)

	// 7. Background workers
	sup := workers.NewSupervisor(log).
		Add(workers.NewHealthWorker(log, config.HealthInterval)).
		Add(workers.NewReconciler(conversationRepository, messageRepository, log, config.ReconcileInterval))
	if janitor != nil {
		sup.Add(janitor)
	}
	go sup.Run(ctx)

	// 8. HTTP & websocket surface
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	wsHandler := realtime.NewHandler(log, chatService, authenticator, registry, fanoutBus)
	router.GET("/ws/chat/:user_id", wsHandler.ServeWS)

	apiHandler := httpapi.NewHandler(log, chatService)
	apiHandler.RegisterRoutes(router.Group("/api/v1"), authenticator)

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server := &http.Server{Addr: address, Handler: router}

	// Use an error channel to capture ListenAndServe() issues
	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", address, "at", time.Now().UTC())
		if serveErr := server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", serveErr)
		}
	}()

	// 9. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err = <-errChan:
		return err
	}

	// 10. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err = server.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP server shutdown incomplete", "err", err)
	}
	sup.Stop()
	log.Info("Program stopped cleanly")

	return nil
}
