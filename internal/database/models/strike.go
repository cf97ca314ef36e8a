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

// StrikeModel handles read operations on the strike ledger.
// Strikes are written only through the ledger service.
type StrikeModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewStrike creates a StrikeModel with database access.
func NewStrike(db *bun.DB, logger *zap.Logger) *StrikeModel {
	return &StrikeModel{
		db:     db,
		logger: logger.Named("db_strike"),
	}
}

// List retrieves strikes of a guild with offset pagination, newest first.
func (m *StrikeModel) List(ctx context.Context, guildID snowflake.ID, skip, limit int) ([]*types.Strike, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.Strike, error) {
		strikes := make([]*types.Strike, 0, limit)

		err := m.db.NewSelect().Model(&strikes).
			Where("guild_id = ?", guildID).
			Order("timestamp DESC", "id DESC").
			Offset(skip).
			Limit(limit).
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list strikes: %w (guildID=%d)", err, guildID)
		}

		return strikes, nil
	})
}

// CountForMember returns the number of strikes recorded against a member.
func (m *StrikeModel) CountForMember(ctx context.Context, guildID, userID snowflake.ID) (int, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (int, error) {
		count, err := m.db.NewSelect().Model((*types.Strike)(nil)).
			Where("guild_id = ?", guildID).
			Where("user_id = ?", userID).
			Count(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to count member strikes: %w (guildID=%d, userID=%d)", err, guildID, userID)
		}

		return count, nil
	})
}

// CountSince returns the number of strikes in a guild at or after the given time.
// A zero time counts every strike.
func (m *StrikeModel) CountSince(ctx context.Context, guildID snowflake.ID, since time.Time) (int, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (int, error) {
		query := m.db.NewSelect().Model((*types.Strike)(nil)).
			Where("guild_id = ?", guildID)
		if !since.IsZero() {
			query = query.Where("\"timestamp\" >= ?", since.UTC())
		}

		count, err := query.Count(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to count strikes: %w (guildID=%d)", err, guildID)
		}

		return count, nil
	})
}

// TimestampsSince returns the time of every strike in a guild at or after the given time.
func (m *StrikeModel) TimestampsSince(ctx context.Context, guildID snowflake.ID, since time.Time) ([]time.Time, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]time.Time, error) {
		var timestamps []time.Time

		err := m.db.NewSelect().Model((*types.Strike)(nil)).
			Column("timestamp").
			Where("guild_id = ?", guildID).
			Where("\"timestamp\" >= ?", since.UTC()).
			Scan(ctx, &timestamps)
		if err != nil {
			return nil, fmt.Errorf("failed to get strike timestamps: %w (guildID=%d)", err, guildID)
		}

		return timestamps, nil
	})
}
