package models

import (
	"context"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/warden/internal/database/dbretry"
	"github.com/robalyx/warden/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// ModActionModel handles database operations for the moderation action log.
type ModActionModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewModAction creates a ModActionModel with database access.
func NewModAction(db *bun.DB, logger *zap.Logger) *ModActionModel {
	return &ModActionModel{
		db:     db,
		logger: logger.Named("db_mod_action"),
	}
}

// Append stores a moderation action.
func (m *ModActionModel) Append(ctx context.Context, action *types.ModAction) error {
	err := dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewInsert().Model(action).Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to append mod action: %w (guildID=%d)", err, action.GuildID)
		}

		return nil
	})
	if err != nil {
		return err
	}

	m.logger.Debug("Appended mod action",
		zap.Uint64("guildID", uint64(action.GuildID)),
		zap.String("action", string(action.Action)),
		zap.Uint64("targetID", uint64(action.TargetID)))

	return nil
}

// List retrieves moderation actions of a guild with offset pagination, newest first.
func (m *ModActionModel) List(
	ctx context.Context, guildID snowflake.ID, skip, limit int,
) ([]*types.ModAction, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.ModAction, error) {
		actions := make([]*types.ModAction, 0, limit)

		err := m.db.NewSelect().Model(&actions).
			Where("guild_id = ?", guildID).
			Order("timestamp DESC", "id DESC").
			Offset(skip).
			Limit(limit).
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list mod actions: %w (guildID=%d)", err, guildID)
		}

		return actions, nil
	})
}

// ListForTarget retrieves every action of a given type taken against a user.
func (m *ModActionModel) ListForTarget(
	ctx context.Context, guildID, targetID snowflake.ID, action types.ActionType,
) ([]*types.ModAction, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.ModAction, error) {
		var actions []*types.ModAction

		err := m.db.NewSelect().Model(&actions).
			Where("guild_id = ?", guildID).
			Where("target_id = ?", targetID).
			Where("action = ?", action).
			Order("timestamp ASC", "id ASC").
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list target mod actions: %w (guildID=%d)", err, guildID)
		}

		return actions, nil
	})
}

// CountSince returns the number of actions in a guild at or after the given time.
func (m *ModActionModel) CountSince(ctx context.Context, guildID snowflake.ID, since time.Time) (int, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (int, error) {
		count, err := m.db.NewSelect().Model((*types.ModAction)(nil)).
			Where("guild_id = ?", guildID).
			Where("\"timestamp\" >= ?", since.UTC()).
			Count(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to count mod actions: %w (guildID=%d)", err, guildID)
		}

		return count, nil
	})
}

// CountActiveTimeouts returns the number of timeouts in a guild that have not expired.
func (m *ModActionModel) CountActiveTimeouts(ctx context.Context, guildID snowflake.ID, now time.Time) (int, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (int, error) {
		count, err := m.db.NewSelect().Model((*types.ModAction)(nil)).
			Where("guild_id = ?", guildID).
			Where("action = ?", types.ActionTimeout).
			Where("expires_at > ?", now.UTC()).
			Count(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to count active timeouts: %w (guildID=%d)", err, guildID)
		}

		return count, nil
	})
}

// TimestampsSince returns the time of every action in a guild at or after the given time.
func (m *ModActionModel) TimestampsSince(
	ctx context.Context, guildID snowflake.ID, since time.Time,
) ([]time.Time, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]time.Time, error) {
		var timestamps []time.Time

		err := m.db.NewSelect().Model((*types.ModAction)(nil)).
			Column("timestamp").
			Where("guild_id = ?", guildID).
			Where("\"timestamp\" >= ?", since.UTC()).
			Scan(ctx, &timestamps)
		if err != nil {
			return nil, fmt.Errorf("failed to get mod action timestamps: %w (guildID=%d)", err, guildID)
		}

		return timestamps, nil
	})
}

// PurgeBefore removes actions older than the cutoff. Timeouts that are still
// active at now are kept since the engine relies on them to avoid re-applying.
func (m *ModActionModel) PurgeBefore(ctx context.Context, cutoff, now time.Time) (int64, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (int64, error) {
		result, err := m.db.NewDelete().Model((*types.ModAction)(nil)).
			Where("\"timestamp\" < ?", cutoff.UTC()).
			WhereGroup(" AND ", func(q *bun.DeleteQuery) *bun.DeleteQuery {
				return q.Where("expires_at IS NULL").WhereOr("expires_at <= ?", now.UTC())
			}).
			Exec(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to purge mod actions: %w (cutoff=%s)", err, cutoff.Format(time.RFC3339))
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to get rows affected: %w (cutoff=%s)", err, cutoff.Format(time.RFC3339))
		}

		m.logger.Debug("Purged old mod actions",
			zap.Int64("rowsAffected", rowsAffected),
			zap.Time("cutoff", cutoff))

		return rowsAffected, nil
	})
}
