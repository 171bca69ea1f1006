// LearnHub Purchases Microservice
//
// This is the main entry point for the course purchase orchestration
// service. It wires up all dependencies and starts the HTTP server.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/learnhub/learnhub-purchases/config"
	"github.com/learnhub/learnhub-purchases/internal/api"
	"github.com/learnhub/learnhub-purchases/internal/domain"
	"github.com/learnhub/learnhub-purchases/internal/metrics"
	"github.com/learnhub/learnhub-purchases/internal/platform/anchor"
	"github.com/learnhub/learnhub-purchases/internal/platform/coursebackend"
	"github.com/learnhub/learnhub-purchases/internal/platform/events"
	"github.com/learnhub/learnhub-purchases/internal/platform/gateway"
	"github.com/learnhub/learnhub-purchases/internal/purchase"
)

func main() {
	cfg := config.Load()

	zapConfig := zap.NewProductionConfig()
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.EncoderConfig.TimeKey = "timestamp"
	logger, err := zapConfig.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create zap logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("LearnHub Purchases Service starting...",
		zap.String("port", cfg.Server.Port),
		zap.String("backend_url", cfg.Backend.BaseURL))

	if err := validateConfig(cfg, logger); err != nil {
		logger.Fatal("Configuration error", zap.Error(err))
	}

	metrics.Register()

	// Anchor store: PostgreSQL when configured, in-memory otherwise.
	var anchors domain.AnchorStore
	if cfg.Database.DSN != "" {
		db, err := openDatabase(cfg.Database.DSN, logger)
		if err != nil {
			logger.Fatal("Could not connect to database", zap.Error(err))
		}
		defer db.Close()

		m, err := migrate.New("file://"+cfg.Database.MigrationsPath, cfg.Database.DSN)
		if err != nil {
			logger.Fatal("Failed to create migrate instance", zap.Error(err))
		}
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			logger.Fatal("Failed to run database migrations", zap.Error(err))
		}
		logger.Info("Database migrations completed")

		anchors = anchor.NewPostgresStore(db)
	} else {
		logger.Warn("No database configured; anchors will not survive a restart")
		anchors = anchor.NewMemoryStore()
	}

	// Purchase event publishing is optional.
	var publisher domain.EventPublisher = events.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher := events.NewKafkaPublisher(
			cfg.Kafka.Brokers,
			cfg.Kafka.Topic,
			logger.With(zap.String("component", "KafkaPublisher")),
		)
		defer func() {
			if err := kafkaPublisher.Close(); err != nil {
				logger.Error("Error closing Kafka publisher", zap.Error(err))
			}
		}()
		publisher = kafkaPublisher
	}

	// Wire up dependencies (manual dependency injection)
	backendClient := coursebackend.NewClient(cfg.Backend.BaseURL, cfg.Backend.APIKey)
	runtime := gateway.NewWidgetRuntime(cfg.Gateway.CheckoutURL)
	opener := gateway.NewOpener(runtime, logger.With(zap.String("component", "GatewaySession")))

	intent := purchase.NewOrderIntent(backendClient, anchors,
		logger.With(zap.String("component", "OrderIntent")))
	verifier := purchase.NewVerifier(backendClient, anchors, publisher,
		logger.With(zap.String("component", "PaymentVerifier")))
	orchestrator := purchase.NewOrchestrator(backendClient, intent, opener, verifier,
		purchase.Options{
			GatewayWait:         cfg.Gateway.WaitTimeout,
			LedgerRetryAttempts: cfg.Flow.LedgerRetryAttempts,
			LedgerRetryDelay:    cfg.Flow.LedgerRetryDelay,
		},
		logger.With(zap.String("component", "PurchaseOrchestrator")))
	reconciler := purchase.NewReconciler(verifier, anchors, backendClient,
		logger.With(zap.String("component", "ReturnReconciler")))

	handler := api.NewHandler(orchestrator, reconciler, backendClient,
		logger.With(zap.String("component", "HTTPHandler")))
	router := api.SetupRouter(handler, cfg.Server.GinMode)

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("Server error", zap.Error(err))
	}
	logger.Info("Server stopped")
}

// openDatabase connects to PostgreSQL, retrying while it comes up.
func openDatabase(dsn string, logger *zap.Logger) (*sql.DB, error) {
	var db *sql.DB
	var err error
	for attempt := 1; attempt <= 10; attempt++ {
		db, err = sql.Open("postgres", dsn)
		if err == nil {
			if err = db.Ping(); err == nil {
				logger.Info("Connected to PostgreSQL")
				return db, nil
			}
			db.Close()
		}
		logger.Warn("Database not ready, retrying...",
			zap.Int("attempt", attempt),
			zap.Error(err))
		time.Sleep(3 * time.Second)
	}
	return nil, err
}

// validateConfig checks that required configuration values are set.
func validateConfig(cfg *config.Config, logger *zap.Logger) error {
	if cfg.Backend.BaseURL == "" {
		return fmt.Errorf("PLATFORM_BACKEND_URL is required")
	}
	if cfg.Backend.APIKey == "" {
		logger.Warn("PLATFORM_BACKEND_API_KEY not set")
	}
	if cfg.Gateway.CheckoutURL == "" {
		logger.Warn("GATEWAY_CHECKOUT_URL not set; checkouts will fail as gateway unavailable")
	}
	return nil
}
