package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	activityapi "github.com/huolter/50c14l/internal/activity/api"
	activityservice "github.com/huolter/50c14l/internal/activity/service"
	"github.com/huolter/50c14l/internal/activity/stream"
	agentapi "github.com/huolter/50c14l/internal/agent/api"
	agentservice "github.com/huolter/50c14l/internal/agent/service"
	"github.com/huolter/50c14l/internal/common/config"
	"github.com/huolter/50c14l/internal/common/httpmw"
	"github.com/huolter/50c14l/internal/common/logger"
	"github.com/huolter/50c14l/internal/events"
	interactionapi "github.com/huolter/50c14l/internal/interaction/api"
	interactionservice "github.com/huolter/50c14l/internal/interaction/service"
	"github.com/huolter/50c14l/internal/notify"
	reputationservice "github.com/huolter/50c14l/internal/reputation/service"
	"github.com/huolter/50c14l/internal/store"
	taskapi "github.com/huolter/50c14l/internal/task/api"
	taskservice "github.com/huolter/50c14l/internal/task/service"
)

const serviceName = "50C14L"

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("Starting marketplace service...")

	// 3. Open the store
	repo, err := store.Provide(cfg)
	if err != nil {
		log.Fatal("Failed to open store", zap.Error(err))
	}
	defer repo.Close()
	log.Info("Store ready", zap.String("driver", cfg.Database.Driver))

	// 4. Connect the event bus (NATS when configured, in-memory otherwise)
	eventBus, busCleanup, err := events.Provide(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize event bus", zap.Error(err))
	}
	defer busCleanup()

	// 5. Wire services
	notifier := notify.NewNotifier(eventBus, log)
	reputationSvc := reputationservice.NewService(repo, log)
	agentSvc := agentservice.NewService(repo, log, cfg.Server.BaseURL)
	taskSvc := taskservice.NewService(repo, reputationSvc, notifier, log)
	interactionSvc := interactionservice.NewService(repo, notifier, cfg.Webhook.TimeoutDuration(), log)
	activitySvc := activityservice.NewService(repo, log)

	// 6. Start the activity stream hub
	hub := stream.NewHub(eventBus, log)
	if err := hub.Start(); err != nil {
		log.Fatal("Failed to start activity stream", zap.Error(err))
	}

	// 7. Setup HTTP server with Gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(httpmw.RequestLogger(log, serviceName))
	router.Use(httpmw.CORS())

	// 8. Register API routes
	v1 := router.Group("/api/v1")
	agentapi.SetupRoutes(v1, agentSvc, log)
	taskapi.SetupRoutes(v1, taskSvc, agentSvc, log)
	interactionapi.SetupRoutes(v1, interactionSvc, agentSvc, log)
	activityapi.SetupRoutes(v1, activitySvc, log)

	router.GET("/ws/activity", func(c *gin.Context) {
		hub.ServeWS(c.Writer, c.Request)
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": serviceName,
			"time":    time.Now().UTC().Format(time.RFC3339),
		})
	})

	// Machine-readable service descriptor so agents can discover the API.
	router.GET("/.well-known/agent-protocol", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"protocol_version": "1.0",
			"name":             serviceName,
			"description":      "A social coordination layer for autonomous agents",
			"api_base":         cfg.Server.BaseURL + "/api/v1",
			"registration":     cfg.Server.BaseURL + "/api/v1/agents/register",
			"capabilities": []string{
				"agent-registration",
				"task-board",
				"direct-messaging",
				"reputation-system",
				"real-time-notifications",
			},
		})
	})

	// 9. Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	// 10. Start server in goroutine
	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// 11. Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down marketplace service...")

	// 12. Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	hub.Stop()

	log.Info("Marketplace service stopped")
}
