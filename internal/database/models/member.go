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
	"go.uber.org/zap"
)

// MemberActivity describes one observed message from a member.
type MemberActivity struct {
	GuildID  snowflake.ID
	UserID   snowflake.ID
	Username string
	// JoinedAt is used only when the member record is created. Zero means At.
	JoinedAt time.Time
	At       time.Time
}

// MemberModel handles database operations for member records.
type MemberModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewMember creates a MemberModel with database access.
func NewMember(db *bun.DB, logger *zap.Logger) *MemberModel {
	return &MemberModel{
		db:     db,
		logger: logger.Named("db_member"),
	}
}

// Touch records a message from a member: the record is created if absent,
// then the message count is incremented and the last activity time is bumped.
func (m *MemberModel) Touch(ctx context.Context, activity MemberActivity) error {
	joinedAt := activity.JoinedAt
	if joinedAt.IsZero() {
		joinedAt = activity.At
	}

	return dbretry.Transaction(ctx, m.db, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().
			Model(&types.Member{
				GuildID:    activity.GuildID,
				UserID:     activity.UserID,
				Username:   activity.Username,
				JoinDate:   joinedAt.UTC(),
				LastActive: activity.At.UTC(),
			}).
			On("CONFLICT (guild_id, user_id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create member: %w (guildID=%d, userID=%d)",
				err, activity.GuildID, activity.UserID)
		}

		_, err = tx.NewUpdate().
			Model((*types.Member)(nil)).
			Set("total_messages = total_messages + 1").
			Set("last_active = ?", activity.At.UTC()).
			Set("username = ?", activity.Username).
			Where("guild_id = ?", activity.GuildID).
			Where("user_id = ?", activity.UserID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to update member activity: %w (guildID=%d, userID=%d)",
				err, activity.GuildID, activity.UserID)
		}

		return nil
	})
}

// RecordJoin creates the member record when a member joins.
// A returning member keeps its original join date and counters.
func (m *MemberModel) RecordJoin(
	ctx context.Context, guildID, userID snowflake.ID, username string, joinedAt time.Time,
) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewInsert().
			Model(&types.Member{
				GuildID:    guildID,
				UserID:     userID,
				Username:   username,
				JoinDate:   joinedAt.UTC(),
				LastActive: joinedAt.UTC(),
			}).
			On("CONFLICT (guild_id, user_id) DO UPDATE").
			Set("username = EXCLUDED.username").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to record member join: %w (guildID=%d, userID=%d)", err, guildID, userID)
		}

		return nil
	})
}

// Get retrieves a single member record.
func (m *MemberModel) Get(ctx context.Context, guildID, userID snowflake.ID) (*types.Member, error) {
	member, err := dbretry.Operation(ctx, func(ctx context.Context) (*types.Member, error) {
		member := &types.Member{GuildID: guildID, UserID: userID}

		err := m.db.NewSelect().Model(member).WherePK().Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get member: %w (guildID=%d, userID=%d)", err, guildID, userID)
		}

		return member, nil
	})
	if err != nil {
		return nil, err
	}

	if member == nil {
		return nil, types.ErrMemberNotFound
	}

	return member, nil
}

// List retrieves members of a guild with offset pagination, newest joins first.
func (m *MemberModel) List(ctx context.Context, guildID snowflake.ID, skip, limit int) ([]*types.Member, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.Member, error) {
		members := make([]*types.Member, 0, limit)

		err := m.db.NewSelect().Model(&members).
			Where("guild_id = ?", guildID).
			Order("join_date DESC", "user_id ASC").
			Offset(skip).
			Limit(limit).
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list members: %w (guildID=%d)", err, guildID)
		}

		return members, nil
	})
}

// ListPromotable retrieves members of a guild matching the promotion criteria.
func (m *MemberModel) ListPromotable(
	ctx context.Context, guildID snowflake.ID, criteria types.PromotionCriteria,
) ([]*types.Member, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.Member, error) {
		var members []*types.Member

		err := m.db.NewSelect().Model(&members).
			Where("guild_id = ?", guildID).
			Where("join_date <= ?", criteria.JoinedBefore.UTC()).
			Where("total_messages >= ?", criteria.MinMessages).
			Where("strike_count < ?", criteria.MaxStrikes).
			Order("join_date ASC").
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list promotable members: %w (guildID=%d)", err, guildID)
		}

		return members, nil
	})
}

// Count returns the number of member records of a guild.
func (m *MemberModel) Count(ctx context.Context, guildID snowflake.ID) (int, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (int, error) {
		count, err := m.db.NewSelect().Model((*types.Member)(nil)).
			Where("guild_id = ?", guildID).
			Count(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to count members: %w (guildID=%d)", err, guildID)
		}

		return count, nil
	})
}

// CountJoinedSince returns the number of members who joined at or after the given time.
func (m *MemberModel) CountJoinedSince(ctx context.Context, guildID snowflake.ID, since time.Time) (int, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (int, error) {
		count, err := m.db.NewSelect().Model((*types.Member)(nil)).
			Where("guild_id = ?", guildID).
			Where("join_date >= ?", since.UTC()).
			Count(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to count new members: %w (guildID=%d)", err, guildID)
		}

		return count, nil
	})
}
