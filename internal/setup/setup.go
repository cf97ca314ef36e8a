package setup

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/rueidis"
	"github.com/robalyx/warden/internal/database"
	"github.com/robalyx/warden/internal/database/migrations"
	"github.com/robalyx/warden/internal/redis"
	"github.com/robalyx/warden/internal/setup/config"
	"github.com/robalyx/warden/internal/setup/telemetry"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"
)

// ErrPendingMigrations is returned when the schema is behind and the operator declined to migrate.
var ErrPendingMigrations = errors.New("database migrations are pending")

// App bundles all core dependencies and services needed by the application.
// Each field represents a major subsystem that needs initialization and cleanup.
type App struct {
	Config       *config.Config     // Application configuration
	Logger       *zap.Logger        // Main application logger
	DBLogger     *zap.Logger        // Database-specific logger
	DB           database.Client    // Database connection pool
	RedisManager *redis.Manager     // Redis connection manager
	StatusClient rueidis.Client     // Redis client for worker status reporting
	LogManager   *telemetry.Manager // Log management system

	shutdownTracing telemetry.TracingShutdown
}

// InitializeApp bootstraps all application dependencies in the correct order,
// ensuring each component has its required dependencies available.
func InitializeApp(ctx context.Context, serviceType telemetry.ServiceType, logDir string) (*App, error) {
	cfg, _, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	// Logging system is initialized next to capture setup issues
	logManager := telemetry.NewManager(serviceType, logDir, &cfg.Common.Debug).
		WithTelemetry(&cfg.Common.Telemetry)

	// Tracing must be configured before the loggers are built
	shutdownTracing := telemetry.SetupTracing(serviceType, &cfg.Common.Telemetry)

	logger, dbLogger, err := logManager.GetLoggers()
	if err != nil {
		logManager.Close()
		_ = shutdownTracing(ctx)
		return nil, err
	}

	db, err := checkAndRunMigrations(ctx, &cfg.Common, dbLogger)
	if err != nil {
		logManager.Close()
		_ = shutdownTracing(ctx)
		return nil, err
	}

	redisManager := redis.NewManager(&cfg.Common.Redis, logger)

	statusClient, err := redisManager.GetClient(redis.WorkerStatusDBIndex)
	if err != nil {
		// Heartbeats and cross-process locks are optional on a single node
		logger.Warn("Redis unavailable, worker status reporting disabled", zap.Error(err))
	}

	return &App{
		Config:       cfg,
		Logger:       logger,
		DBLogger:     dbLogger.Named("database"),
		DB:           db,
		RedisManager: redisManager,
		StatusClient: statusClient,
		LogManager:   logManager,

		shutdownTracing: shutdownTracing,
	}, nil
}

// Cleanup ensures graceful shutdown of all components in reverse initialization order.
// Logs but does not fail on cleanup errors to ensure all components get cleanup attempts.
func (s *App) Cleanup(ctx context.Context) {
	done := make(chan struct{})

	go func() {
		defer close(done)

		if err := s.DB.Close(); err != nil {
			log.Printf("Failed to close database connection: %v", err)
		}

		// Close Redis connections last as other components might need it during cleanup
		s.RedisManager.Close()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		log.Printf("Cleanup interrupted: %v", ctx.Err())
	}

	// Sync buffered logs before shutdown
	if err := s.Logger.Sync(); err != nil {
		log.Printf("Failed to sync logger: %v", err)
	}

	if err := s.DBLogger.Sync(); err != nil {
		log.Printf("Failed to sync DB logger: %v", err)
	}

	s.LogManager.Close()

	if s.shutdownTracing != nil {
		if err := s.shutdownTracing(ctx); err != nil {
			log.Printf("Failed to shut down tracing: %v", err)
		}
	}
}

// Location loads the configured time zone for the quiet-hours scheduler.
func (s *App) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(s.Config.Worker.QuietHours.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid quiet hours timezone %q: %w", s.Config.Worker.QuietHours.Timezone, err)
	}
	return loc, nil
}

// checkAndRunMigrations opens the database and offers to apply pending migrations.
// SQLite databases create their schema directly and never have pending migrations.
func checkAndRunMigrations(
	ctx context.Context, cfg *config.CommonConfig, dbLogger *zap.Logger,
) (database.Client, error) {
	tempDB, err := database.NewConnection(ctx, cfg, dbLogger, false)
	if err != nil {
		return nil, err
	}

	if cfg.SQLite.Path != "" {
		return tempDB, nil
	}

	migrator := migrate.NewMigrator(tempDB.DB(), migrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		_ = tempDB.Close()
		return nil, fmt.Errorf("failed to initialize migrations: %w", err)
	}

	ms, err := migrator.MigrationsWithStatus(ctx)
	if err != nil {
		_ = tempDB.Close()
		return nil, fmt.Errorf("failed to check migration status: %w", err)
	}

	if len(ms.Unapplied()) == 0 {
		return tempDB, nil
	}

	log.Println("Database migrations are pending. Would you like to run them now? (y/N)")

	var response string

	_, _ = fmt.Scanln(&response)

	if response != "y" && response != "Y" {
		_ = tempDB.Close()
		return nil, ErrPendingMigrations
	}

	_ = tempDB.Close()

	return database.NewConnection(ctx, cfg, dbLogger, true)
}
