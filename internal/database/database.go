package database

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/robalyx/warden/internal/database/migrations"
	"github.com/robalyx/warden/internal/setup/config"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bunjson"
	"github.com/uptrace/bun/extra/bunotel"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// sonicProvider is a JSON provider that uses Sonic for encoding and decoding.
type sonicProvider struct{}

func (sonicProvider) Marshal(v any) ([]byte, error) {
	return sonic.Marshal(v)
}

func (sonicProvider) Unmarshal(data []byte, v any) error {
	return sonic.Unmarshal(data, v)
}

func (sonicProvider) NewEncoder(w io.Writer) bunjson.Encoder {
	return sonic.ConfigDefault.NewEncoder(w)
}

func (sonicProvider) NewDecoder(r io.Reader) bunjson.Decoder {
	return sonic.ConfigDefault.NewDecoder(r)
}

var jsonProviderOnce sync.Once

func setJSONProvider() {
	jsonProviderOnce.Do(func() {
		bunjson.SetProvider(sonicProvider{})
	})
}

// Client defines the methods that a database client must implement.
type Client interface {
	// Model returns the repository containing all model operations.
	Model() *Repository
	// Service returns the service containing all service operations.
	Service() *Service
	// Close gracefully shuts down the database connection.
	Close() error
	// DB returns the underlying bun.DB instance.
	DB() *bun.DB
}

// clientImpl represents the concrete implementation of the database client.
type clientImpl struct {
	db      *bun.DB
	logger  *zap.Logger
	repo    *Repository
	service *Service
}

// NewConnection establishes a new database connection and returns a Client instance.
// An embedded SQLite database is used when a SQLite path is configured.
func NewConnection(
	ctx context.Context, cfg *config.CommonConfig, logger *zap.Logger, autoMigrate bool,
) (Client, error) {
	if cfg.SQLite.Path != "" {
		client, err := NewSQLite(ctx, "file:"+cfg.SQLite.Path+"?_pragma=busy_timeout(5000)", logger)
		if err != nil {
			return nil, err
		}

		if cfg.Telemetry.UptraceDSN != "" {
			client.DB().AddQueryHook(bunotel.NewQueryHook(bunotel.WithDBName("warden")))
		}

		return client, nil
	}

	pg := cfg.PostgreSQL
	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithAddr(fmt.Sprintf("%s:%d", pg.Host, pg.Port)),
		pgdriver.WithUser(pg.User),
		pgdriver.WithPassword(pg.Password),
		pgdriver.WithDatabase(pg.DBName),
		pgdriver.WithInsecure(true),
		pgdriver.WithApplicationName("warden"),
	))

	sqldb.SetMaxOpenConns(pg.MaxOpenConns)
	sqldb.SetMaxIdleConns(pg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(time.Duration(pg.MaxLifetime) * time.Minute)
	sqldb.SetConnMaxIdleTime(time.Duration(pg.MaxIdleTime) * time.Minute)

	setJSONProvider()

	db := bun.NewDB(sqldb, pgdialect.New())
	db.AddQueryHook(NewHook(logger))

	if cfg.Telemetry.UptraceDSN != "" {
		db.AddQueryHook(bunotel.NewQueryHook(bunotel.WithDBName(pg.DBName)))
	}

	if autoMigrate {
		migrator := migrate.NewMigrator(db, migrations.Migrations)
		if err := migrator.Init(ctx); err != nil {
			return nil, fmt.Errorf("failed to initialize migrations: %w", err)
		}

		group, err := migrator.Migrate(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}

		if !group.IsZero() {
			logger.Info("Automatically ran migrations", zap.String("group", group.String()))
		}
	}

	return newClient(db, logger), nil
}

// NewSQLite opens an embedded SQLite database and creates the schema directly.
// A single connection is used so that writers are serialized and in-memory
// databases survive for the lifetime of the client.
func NewSQLite(ctx context.Context, dsn string, logger *zap.Logger) (Client, error) {
	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	sqldb.SetMaxOpenConns(1)

	setJSONProvider()

	db := bun.NewDB(sqldb, sqlitedialect.New())
	db.AddQueryHook(NewHook(logger))

	if err := migrations.CreateTables(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := migrations.CreateIndexes(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return newClient(db, logger), nil
}

func newClient(db *bun.DB, logger *zap.Logger) *clientImpl {
	repo := NewRepository(db, logger)
	service := NewService(db, repo, logger)

	logger.Info("Database connection established", zap.String("dialect", db.Dialect().Name().String()))

	return &clientImpl{
		db:      db,
		logger:  logger,
		repo:    repo,
		service: service,
	}
}

// Close gracefully shuts down the database connection.
func (c *clientImpl) Close() error {
	err := c.db.Close()
	if err != nil {
		c.logger.Error("Failed to close database connection", zap.Error(err))
		return err
	}

	c.logger.Info("Database connection closed")

	return nil
}

// Model returns the repository containing all model operations.
func (c *clientImpl) Model() *Repository {
	return c.repo
}

// Service returns the service containing all service operations.
func (c *clientImpl) Service() *Service {
	return c.service
}

// DB returns the underlying bun.DB instance.
func (c *clientImpl) DB() *bun.DB {
	return c.db
}
