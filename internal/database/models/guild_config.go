package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/warden/internal/database/dbretry"
	"github.com/robalyx/warden/internal/database/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"go.uber.org/zap"
)

// GuildConfigModel handles database operations for per-guild moderation policy.
type GuildConfigModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewGuildConfig creates a GuildConfigModel with database access.
func NewGuildConfig(db *bun.DB, logger *zap.Logger) *GuildConfigModel {
	return &GuildConfigModel{
		db:     db,
		logger: logger.Named("db_guild_config"),
	}
}

// Get retrieves the policy of a guild, creating the default policy on first reference.
func (m *GuildConfigModel) Get(ctx context.Context, guildID snowflake.ID) (*types.GuildConfig, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.GuildConfig, error) {
		return getOrCreateConfig(ctx, m.db, guildID, false)
	})
}

// Ensure makes sure a policy row exists for the guild.
func (m *GuildConfigModel) Ensure(ctx context.Context, guildID snowflake.ID) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewInsert().
			Model(types.NewGuildConfig(guildID, time.Now().UTC())).
			On("CONFLICT (guild_id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to ensure guild config: %w (guildID=%d)", err, guildID)
		}

		return nil
	})
}

// Update applies a partial update to the guild policy.
// The merged policy is validated before it is written.
func (m *GuildConfigModel) Update(
	ctx context.Context, guildID snowflake.ID, update *types.GuildConfigUpdate,
) (*types.GuildConfig, error) {
	var invalid error

	cfg, err := dbretry.Operation(ctx, func(ctx context.Context) (*types.GuildConfig, error) {
		var cfg *types.GuildConfig

		err := m.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			current, err := getOrCreateConfig(ctx, tx, guildID, true)
			if err != nil {
				return err
			}

			update.Apply(current)
			if err := current.Validate(); err != nil {
				invalid = err
				return nil
			}

			current.UpdatedAt = time.Now().UTC()

			_, err = tx.NewUpdate().Model(current).WherePK().Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to update guild config: %w (guildID=%d)", err, guildID)
			}

			cfg = current

			return nil
		})

		return cfg, err
	})
	if err != nil {
		return nil, err
	}

	if invalid != nil {
		return nil, invalid
	}

	m.logger.Debug("Updated guild config", zap.Uint64("guildID", uint64(guildID)))

	return cfg, nil
}

// List retrieves the policy of every known guild.
func (m *GuildConfigModel) List(ctx context.Context) ([]*types.GuildConfig, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.GuildConfig, error) {
		var configs []*types.GuildConfig

		err := m.db.NewSelect().Model(&configs).
			Order("guild_id ASC").
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list guild configs: %w", err)
		}

		return configs, nil
	})
}

// getOrCreateConfig reads the stored policy, inserting the default one if none exists.
// With forUpdate the row stays locked until the surrounding transaction ends.
// SQLite has no row locks and serializes writers on its own.
func getOrCreateConfig(
	ctx context.Context, db bun.IDB, guildID snowflake.ID, forUpdate bool,
) (*types.GuildConfig, error) {
	cfg := &types.GuildConfig{GuildID: guildID}

	selectConfig := func() error {
		q := db.NewSelect().Model(cfg).WherePK()
		if forUpdate && db.Dialect().Name() == dialect.PG {
			q = q.For("UPDATE")
		}
		return q.Scan(ctx)
	}

	err := selectConfig()
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get guild config: %w (guildID=%d)", err, guildID)
	}

	// Another caller may create the row concurrently, so read back whichever row won
	_, err = db.NewInsert().
		Model(types.NewGuildConfig(guildID, time.Now().UTC())).
		On("CONFLICT (guild_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create guild config: %w (guildID=%d)", err, guildID)
	}

	if err := selectConfig(); err != nil {
		return nil, fmt.Errorf("failed to get guild config: %w (guildID=%d)", err, guildID)
	}

	return cfg, nil
}
