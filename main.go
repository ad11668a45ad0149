package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql (migrations)
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/verdant-inc/verdant-engine/pkg/auth"
	"github.com/verdant-inc/verdant-engine/pkg/config"
	"github.com/verdant-inc/verdant-engine/pkg/database"
	"github.com/verdant-inc/verdant-engine/pkg/handlers"
	"github.com/verdant-inc/verdant-engine/pkg/logging"
	"github.com/verdant-inc/verdant-engine/pkg/middleware"
	"github.com/verdant-inc/verdant-engine/pkg/repositories"
	"github.com/verdant-inc/verdant-engine/pkg/retry"
	"github.com/verdant-inc/verdant-engine/pkg/scheduler"
	"github.com/verdant-inc/verdant-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("version", cfg.Version),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.URL())),
		zap.Bool("scheduler", cfg.Scheduler.Enabled))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The database may still be starting; retry with backoff before giving up.
	var db *database.DB
	if err := retry.Do(ctx, retry.DefaultConfig(), func() error {
		var connErr error
		db, connErr = database.NewConnection(ctx, &database.Config{
			URL:            cfg.Database.URL(),
			MaxConnections: cfg.Database.MaxConnections,
		})
		return connErr
	}); err != nil {
		logger.Fatal("Failed to connect to database",
			zap.String("error", logging.SanitizeError(err)))
	}
	defer db.Close()

	if err := runMigrations(cfg, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Repositories
	zoneRepo := repositories.NewZoneRepository()
	deviceRepo := repositories.NewDeviceRepository()
	apiKeyRepo := repositories.NewAPIKeyRepository()
	readingRepo := repositories.NewReadingRepository()
	commandRepo := repositories.NewCommandRepository()
	alertRepo := repositories.NewAlertRepository()
	scheduleRepo := repositories.NewScheduleRepository()
	accountRepo := repositories.NewAccountRepository()

	// Services
	apiKeyService := services.NewAPIKeyService(apiKeyRepo, deviceRepo, logger)
	deviceService := services.NewDeviceService(deviceRepo, zoneRepo, logger)
	commandService := services.NewCommandService(commandRepo, deviceRepo, zoneRepo, cfg.Command, logger)
	zoneService := services.NewZoneService(zoneRepo, deviceRepo, commandService, logger)
	ingestService := services.NewIngestService(readingRepo, deviceRepo, zoneRepo, alertRepo, cfg.Ingest, logger)
	alertService := services.NewAlertService(alertRepo, logger)
	scheduleService := services.NewScheduleService(scheduleRepo, zoneRepo, logger)
	analyticsService := services.NewAnalyticsService()

	// Auth
	jwksClient, err := auth.NewJWKSClient(&auth.JWKSConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		JWKSEndpoints:      cfg.Auth.JWKSEndpoints,
	})
	if err != nil {
		logger.Fatal("Failed to create JWKS client", zap.Error(err))
	}
	defer jwksClient.Close()
	authService := auth.NewAuthService(jwksClient, logger)
	authMiddleware := auth.NewMiddleware(authService)

	ownerMiddleware := handlers.OwnerMiddleware(database.WithOwnerContext(db, logger))
	scopes := database.NewOwnerScopeProvider(db)

	// Watering dispatcher and maintenance sweep
	dispatcher := scheduler.NewDispatcher(scopes, scheduleService, commandService,
		commandRepo, deviceRepo, cfg.Scheduler, cfg.Command, logger)
	if cfg.Scheduler.Enabled {
		if err := dispatcher.Start(ctx); err != nil {
			logger.Fatal("Failed to start watering dispatcher", zap.Error(err))
		}
		defer dispatcher.Stop()
	}

	mux := http.NewServeMux()

	handlers.NewHealthHandler(db, cfg.Version, logger).RegisterRoutes(mux)
	handlers.NewZonesHandler(zoneService, logger).RegisterRoutes(mux, authMiddleware, ownerMiddleware)
	handlers.NewDevicesHandler(deviceService, commandService, logger).RegisterRoutes(mux, authMiddleware, ownerMiddleware)
	handlers.NewCommandsHandler(commandService, logger).RegisterRoutes(mux, authMiddleware, ownerMiddleware)
	handlers.NewAlertsHandler(alertService, logger).RegisterRoutes(mux, authMiddleware, ownerMiddleware)
	handlers.NewReadingsHandler(readingRepo, logger).RegisterRoutes(mux, authMiddleware, ownerMiddleware)
	handlers.NewSchedulesHandler(scheduleService, logger).RegisterRoutes(mux, authMiddleware, ownerMiddleware)
	handlers.NewAnalyticsHandler(analyticsService, readingRepo, zoneRepo, commandRepo, logger).RegisterRoutes(mux, authMiddleware, ownerMiddleware)
	handlers.NewAPIKeysHandler(apiKeyService, logger).RegisterRoutes(mux, authMiddleware, ownerMiddleware)
	handlers.NewAccountHandler(accountRepo, logger).RegisterRoutes(mux, authMiddleware, ownerMiddleware)
	handlers.NewDeviceAPIHandler(scopes, apiKeyService, ingestService, commandService, deviceService, logger).RegisterRoutes(mux)

	mux.Handle("GET /metrics", promhttp.Handler())

	handler := middleware.CORS(middleware.Metrics(middleware.RequestLogger(logger)(mux)))

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting verdant-engine",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "local" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func runMigrations(cfg *config.Config, logger *zap.Logger) error {
	sqlDB, err := sql.Open("pgx", cfg.Database.URL())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sqlDB.Close(); cerr != nil {
			logger.Warn("Failed to close migration connection", zap.Error(cerr))
		}
	}()

	return database.RunMigrations(sqlDB, cfg.Database.MigrationsPath, logger)
}
