package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/gorm/logger"

	"github.com/poundcake/poundcake/internal/config"
	"github.com/poundcake/poundcake/internal/database"
	"github.com/poundcake/poundcake/internal/handlers"
	"github.com/poundcake/poundcake/internal/middleware"
	"github.com/poundcake/poundcake/internal/notify"
	"github.com/poundcake/poundcake/internal/queue"
	"github.com/poundcake/poundcake/internal/routing"
	"github.com/poundcake/poundcake/internal/services"
	"github.com/poundcake/poundcake/internal/stackstorm"
)

func main() {
	// Load .env file if it exists (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading it (this is fine if using environment variables): %v", err)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting PoundCake...")

	// Initialize JWT authentication middleware
	if cfg.AdminPassword == "" {
		log.Fatalf("ADMIN_PASSWORD is not set")
	}

	// Hash the admin password
	passwordHash, err := middleware.HashPassword(cfg.AdminPassword)
	if err != nil {
		log.Fatalf("Failed to hash admin password: %v", err)
	}

	jwtAuthMiddleware := middleware.NewJWTAuthMiddleware(&middleware.JWTAuthConfig{
		AdminUsername:     cfg.AdminUsername,
		AdminPasswordHash: passwordHash,
		JWTSecret:         cfg.JWTSecret,
		JWTExpiryHours:    cfg.JWTExpiryHours,
		SkipPaths: []string{
			"/health",
			"/webhook",
			"/auth/login",
			"/ws/events",
		},
	})
	log.Printf("JWT authentication enabled for user: %s", cfg.AdminUsername)

	// Initialize database connection
	db, err := database.Connect(cfg.DatabaseURL, logger.Warn)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	log.Printf("Database connection established")

	// Run database migrations
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	// Load the workflow routing table
	table := routing.DefaultTable()
	if cfg.RoutingRulesPath != "" {
		table, err = routing.LoadTable(cfg.RoutingRulesPath)
		if err != nil {
			log.Fatalf("Failed to load routing rules from %s: %v", cfg.RoutingRulesPath, err)
		}
		log.Printf("Routing rules loaded from %s (%d rules)", cfg.RoutingRulesPath, len(table.Rules()))
	}

	// Initialize StackStorm client
	st2Client := stackstorm.NewClient(cfg.ST2APIURL, cfg.ST2APIKey, cfg.ST2Timeout)
	log.Printf("StackStorm client initialized for %s", cfg.ST2APIURL)

	// Connect the dispatch queue
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatchQueue, err := queue.Connect(ctx, queue.Config{
		URL:            cfg.NATSURL,
		StreamName:     cfg.NATSStream,
		Subject:        cfg.NATSSubject,
		ConsumerName:   cfg.NATSConsumer,
		ConnectionName: "poundcake",
		MaxReconnects:  -1,
		ReconnectWait:  2 * time.Second,
		AckWait:        cfg.DispatchAckWait,
		MaxDeliver:     cfg.DispatchMaxDeliver,
		Workers:        cfg.DispatchWorkers,
	})
	if err != nil {
		log.Fatalf("Failed to connect dispatch queue: %v", err)
	}
	defer dispatchQueue.Close()
	log.Printf("Dispatch queue connected (stream=%s)", cfg.NATSStream)

	// Optional Slack notifier for dispatch outcomes
	var notifier services.DispatchNotifier
	if slackNotifier := notify.NewSlackNotifier(cfg.SlackBotToken, cfg.SlackAlertsChannel); slackNotifier != nil {
		notifier = slackNotifier
		log.Printf("Slack notifications enabled for channel %s", cfg.SlackAlertsChannel)
	}

	// Live event stream for UIs
	eventsHub := handlers.NewEventsHub()

	// Initialize services
	ingestService := services.NewIngestService(db)
	dispatchService := services.NewDispatchService(db, table, st2Client, notifier, eventsHub)

	// Start the dispatch workers
	go func() {
		if err := dispatchQueue.RunWorkers(ctx, dispatchService.Dispatch); err != nil && ctx.Err() == nil {
			log.Printf("Dispatch workers stopped: %v", err)
			stop()
		}
	}()

	// Set up HTTP routes
	mux := http.NewServeMux()
	handlers.NewHTTPHandler(db).SetupRoutes(mux)
	handlers.NewWebhookHandler(ingestService, dispatchQueue, eventsHub).SetupRoutes(mux)
	handlers.NewAPIHandler(db).SetupRoutes(mux)
	handlers.NewAuthHandler(jwtAuthMiddleware).SetupRoutes(mux)
	eventsHub.SetupRoutes(mux)

	// Middleware chain: CORS -> request ledger -> JWT auth -> routes
	ledger := middleware.NewLedgerMiddleware(db)
	cors := middleware.NewCORSMiddleware()
	handler := cors.Wrap(ledger.Wrap(jwtAuthMiddleware.Wrap(mux)))

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: handler,
	}

	go func() {
		log.Printf("HTTP server listening on :%d", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Printf("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	if err := database.Close(db); err != nil {
		log.Printf("Database close error: %v", err)
	}

	log.Printf("Shutdown complete")
}
