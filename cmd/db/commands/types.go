package commands

import (
	"errors"

	"github.com/robalyx/warden/internal/database"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"
)

var (
	ErrNameRequired     = errors.New("NAME argument required")
	ErrEmbeddedDatabase = errors.New("migrations are not used with the embedded SQLite database")
	ErrInvalidAge       = errors.New("--older-than must be positive")
)

// CLIDependencies holds the common dependencies needed by CLI commands.
type CLIDependencies struct {
	DB       database.Client
	Migrator *migrate.Migrator
	Embedded bool
	Logger   *zap.Logger
}

// requireMigrator fails when the configured database creates its schema directly.
func (d *CLIDependencies) requireMigrator() error {
	if d.Embedded {
		return ErrEmbeddedDatabase
	}
	return nil
}
