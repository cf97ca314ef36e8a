package moderation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/warden/internal/database/types"
	"github.com/robalyx/warden/internal/platform"
	"go.uber.org/zap"
)

// ErrValidation is returned when a moderation request is rejected before any side effect.
var ErrValidation = errors.New("validation failed")

const (
	// MaxPurgeAmount is the most messages a single purge may delete.
	MaxPurgeAmount = 100
	// DefaultMuteMinutes is used when a mute does not specify a duration.
	DefaultMuteMinutes = 60
)

// KickRequest removes a member from a guild.
type KickRequest struct {
	GuildID     snowflake.ID
	TargetID    snowflake.ID
	ModeratorID snowflake.ID
	Reason      string
}

// MuteRequest times a member out for a number of minutes.
type MuteRequest struct {
	GuildID     snowflake.ID
	TargetID    snowflake.ID
	ModeratorID snowflake.ID
	// Minutes defaults to DefaultMuteMinutes when zero.
	Minutes int
	Reason  string
}

// PurgeRequest deletes recent messages of a channel.
type PurgeRequest struct {
	GuildID     snowflake.ID
	ChannelID   snowflake.ID
	ModeratorID snowflake.ID
	Amount      int
}

// Moderator executes administrator-invoked moderation commands. Every effect
// that reaches the platform is recorded as a moderation action; a platform
// failure is returned to the caller and nothing is recorded.
type Moderator struct {
	store  Store
	dir    platform.Directory
	logger *zap.Logger
	now    func() time.Time
}

// NewModerator creates a Moderator.
func NewModerator(store Store, dir platform.Directory, logger *zap.Logger) *Moderator {
	return &Moderator{
		store:  store,
		dir:    dir,
		logger: logger.Named("moderator"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Kick removes the target from the guild.
func (m *Moderator) Kick(ctx context.Context, req *KickRequest) (*types.ModAction, error) {
	reason := reasonOrDefault(req.Reason)

	if err := m.dir.KickMember(ctx, req.GuildID, req.TargetID, reason); err != nil {
		m.logger.Warn("Failed to kick member",
			zap.Uint64("guildID", uint64(req.GuildID)),
			zap.Uint64("targetID", uint64(req.TargetID)),
			zap.Error(err))
		return nil, fmt.Errorf("failed to kick member: %w", err)
	}

	return m.record(ctx, &types.ModAction{
		GuildID:     req.GuildID,
		Action:      types.ActionKick,
		TargetID:    req.TargetID,
		ModeratorID: req.ModeratorID,
		Reason:      reason,
	})
}

// Mute times the target out.
func (m *Moderator) Mute(ctx context.Context, req *MuteRequest) (*types.ModAction, error) {
	minutes := req.Minutes
	if minutes == 0 {
		minutes = DefaultMuteMinutes
	}

	if minutes < 1 || minutes > types.MaxTimeoutMinutes {
		return nil, fmt.Errorf("%w: duration must be between 1 and %d minutes", ErrValidation, types.MaxTimeoutMinutes)
	}

	reason := reasonOrDefault(req.Reason)

	if err := m.dir.TimeoutMember(ctx, req.GuildID, req.TargetID, minutes, reason); err != nil {
		m.logger.Warn("Failed to mute member",
			zap.Uint64("guildID", uint64(req.GuildID)),
			zap.Uint64("targetID", uint64(req.TargetID)),
			zap.Error(err))
		return nil, fmt.Errorf("failed to mute member: %w", err)
	}

	now := m.now()
	expiresAt := now.Add(time.Duration(minutes) * time.Minute)

	return m.record(ctx, &types.ModAction{
		GuildID:         req.GuildID,
		Action:          types.ActionTimeout,
		TargetID:        req.TargetID,
		ModeratorID:     req.ModeratorID,
		Reason:          reason,
		DurationMinutes: &minutes,
		ExpiresAt:       &expiresAt,
		Timestamp:       now,
	})
}

// Purge deletes recent messages of a channel and returns how many were deleted.
// Amounts outside 1..MaxPurgeAmount are rejected before anything is deleted.
func (m *Moderator) Purge(ctx context.Context, req *PurgeRequest) (int, error) {
	if req.Amount < 1 || req.Amount > MaxPurgeAmount {
		return 0, fmt.Errorf("%w: amount must be between 1 and %d", ErrValidation, MaxPurgeAmount)
	}

	deleted, err := m.dir.PurgeMessages(ctx, req.ChannelID, req.Amount)
	if err != nil {
		m.logger.Warn("Failed to purge messages",
			zap.Uint64("channelID", uint64(req.ChannelID)),
			zap.Int("amount", req.Amount),
			zap.Error(err))
		return 0, fmt.Errorf("failed to purge messages: %w", err)
	}

	_, err = m.record(ctx, &types.ModAction{
		GuildID:     req.GuildID,
		Action:      types.ActionPurge,
		TargetID:    req.ChannelID,
		ModeratorID: req.ModeratorID,
		Reason:      fmt.Sprintf("Purged %d messages", deleted),
	})

	return deleted, err
}

func (m *Moderator) record(ctx context.Context, action *types.ModAction) (*types.ModAction, error) {
	if action.Timestamp.IsZero() {
		action.Timestamp = m.now()
	}

	if err := m.store.AppendModAction(ctx, action); err != nil {
		return nil, fmt.Errorf("failed to record %s: %w", action.Action, err)
	}

	m.logger.Info("Moderation action taken",
		zap.Uint64("guildID", uint64(action.GuildID)),
		zap.String("action", string(action.Action)),
		zap.Uint64("targetID", uint64(action.TargetID)),
		zap.Uint64("moderatorID", uint64(action.ModeratorID)))

	return action, nil
}

func reasonOrDefault(reason string) string {
	if reason == "" {
		return "No reason provided"
	}
	return reason
}
