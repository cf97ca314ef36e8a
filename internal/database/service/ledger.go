package service

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

// StrikeRequest describes a violation to be recorded against a member.
type StrikeRequest struct {
	GuildID     snowflake.ID
	UserID      snowflake.ID
	Username    string
	ModeratorID snowflake.ID
	Reason      string
	At          time.Time

	// Ladder policy captured from the guild config at evaluation time.
	StrikeLimit        int
	AutoTimeoutEnabled bool
	TimeoutMinutes     int
}

// LedgerService keeps the strike ledger and member strike counters consistent.
type LedgerService struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewLedger creates a new ledger service.
func NewLedger(db *bun.DB, logger *zap.Logger) *LedgerService {
	return &LedgerService{
		db:     db,
		logger: logger.Named("ledger_service"),
	}
}

// RecordStrike appends a strike, increments the member's strike count and,
// when the new count reaches the limit, claims the automatic timeout.
//
// Everything happens in one transaction. The counter increment locks the
// member row, so concurrent strikes against the same member are serialized
// and each observes the count and timeout state left by the previous one.
// A timeout is only claimed when the member has no unexpired timeout, which
// makes the claim exactly-once per timeout window.
func (s *LedgerService) RecordStrike(ctx context.Context, req *StrikeRequest) (*types.StrikeResult, error) {
	var result *types.StrikeResult

	at := req.At.UTC()

	err := dbretry.Transaction(ctx, s.db, func(ctx context.Context, tx bun.Tx) error {
		result = nil

		_, err := tx.NewInsert().
			Model(&types.Member{
				GuildID:    req.GuildID,
				UserID:     req.UserID,
				Username:   req.Username,
				JoinDate:   at,
				LastActive: at,
			}).
			On("CONFLICT (guild_id, user_id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create member: %w", err)
		}

		strike := &types.Strike{
			GuildID:     req.GuildID,
			UserID:      req.UserID,
			Reason:      req.Reason,
			ModeratorID: req.ModeratorID,
			Timestamp:   at,
		}
		if _, err := tx.NewInsert().Model(strike).Exec(ctx); err != nil {
			return fmt.Errorf("failed to insert strike: %w", err)
		}

		_, err = tx.NewUpdate().
			Model((*types.Member)(nil)).
			Set("strike_count = strike_count + 1").
			Where("guild_id = ?", req.GuildID).
			Where("user_id = ?", req.UserID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to increment strike count: %w", err)
		}

		var count int
		err = tx.NewSelect().
			Model((*types.Member)(nil)).
			Column("strike_count").
			Where("guild_id = ?", req.GuildID).
			Where("user_id = ?", req.UserID).
			Scan(ctx, &count)
		if err != nil {
			return fmt.Errorf("failed to read strike count: %w", err)
		}

		res := &types.StrikeResult{Strike: strike, Count: count}

		if req.AutoTimeoutEnabled && count >= req.StrikeLimit {
			timeout, err := claimTimeout(ctx, tx, req, count, at)
			if err != nil {
				return err
			}
			res.Timeout = timeout
		}

		result = res

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Recorded strike",
		zap.Uint64("guildID", uint64(req.GuildID)),
		zap.Uint64("userID", uint64(req.UserID)),
		zap.Int("count", result.Count),
		zap.Bool("timeout", result.Timeout != nil))

	return result, nil
}

// claimTimeout records the automatic timeout unless one is still active.
// Returns nil when an active timeout already exists.
func claimTimeout(
	ctx context.Context, tx bun.Tx, req *StrikeRequest, count int, at time.Time,
) (*types.ModAction, error) {
	active, err := tx.NewSelect().
		Model((*types.ModAction)(nil)).
		Where("guild_id = ?", req.GuildID).
		Where("target_id = ?", req.UserID).
		Where("action = ?", types.ActionTimeout).
		Where("expires_at > ?", at).
		Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check active timeout: %w", err)
	}

	if active {
		return nil, nil //nolint:nilnil // no claim
	}

	duration := req.TimeoutMinutes
	expiresAt := at.Add(time.Duration(duration) * time.Minute)

	action := &types.ModAction{
		GuildID:         req.GuildID,
		Action:          types.ActionTimeout,
		TargetID:        req.UserID,
		ModeratorID:     req.ModeratorID,
		Reason:          fmt.Sprintf("Auto-timeout: %d strikes", count),
		DurationMinutes: &duration,
		ExpiresAt:       &expiresAt,
		Timestamp:       at,
	}
	if _, err := tx.NewInsert().Model(action).Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to insert timeout action: %w", err)
	}

	return action, nil
}
