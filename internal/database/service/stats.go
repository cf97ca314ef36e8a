package service

import (
	"context"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/warden/internal/database/models"
	"github.com/robalyx/warden/internal/database/types"
	"go.uber.org/zap"
)

// StatsService aggregates guild statistics from the member, strike and action tables.
type StatsService struct {
	member    *models.MemberModel
	strike    *models.StrikeModel
	modAction *models.ModActionModel
	logger    *zap.Logger
}

// NewStats creates a new stats service.
func NewStats(
	member *models.MemberModel,
	strike *models.StrikeModel,
	modAction *models.ModActionModel,
	logger *zap.Logger,
) *StatsService {
	return &StatsService{
		member:    member,
		strike:    strike,
		modAction: modAction,
		logger:    logger.Named("stats_service"),
	}
}

// GetGuildStats summarizes a guild. Recent counts cover the window ending at now.
func (s *StatsService) GetGuildStats(
	ctx context.Context, guildID snowflake.ID, now time.Time, window time.Duration,
) (*types.GuildStats, error) {
	since := now.Add(-window)

	var (
		stats types.GuildStats
		err   error
	)

	if stats.TotalMembers, err = s.member.Count(ctx, guildID); err != nil {
		return nil, fmt.Errorf("failed to get member count: %w", err)
	}

	if stats.NewMembers, err = s.member.CountJoinedSince(ctx, guildID, since); err != nil {
		return nil, fmt.Errorf("failed to get new member count: %w", err)
	}

	if stats.TotalStrikes, err = s.strike.CountSince(ctx, guildID, time.Time{}); err != nil {
		return nil, fmt.Errorf("failed to get strike count: %w", err)
	}

	if stats.RecentStrikes, err = s.strike.CountSince(ctx, guildID, since); err != nil {
		return nil, fmt.Errorf("failed to get recent strike count: %w", err)
	}

	if stats.RecentActions, err = s.modAction.CountSince(ctx, guildID, since); err != nil {
		return nil, fmt.Errorf("failed to get recent action count: %w", err)
	}

	if stats.ActiveTimeouts, err = s.modAction.CountActiveTimeouts(ctx, guildID, now); err != nil {
		return nil, fmt.Errorf("failed to get active timeout count: %w", err)
	}

	return &stats, nil
}

// GetDailyActivity returns per-day strike and action counts for the last days,
// oldest day first. Days are UTC calendar days and the last one contains now.
func (s *StatsService) GetDailyActivity(
	ctx context.Context, guildID snowflake.ID, now time.Time, days int,
) (strikes []types.DailyCount, actions []types.DailyCount, err error) {
	today := now.UTC().Truncate(24 * time.Hour)
	start := today.AddDate(0, 0, -(days - 1))

	strikeTimes, err := s.strike.TimestampsSince(ctx, guildID, start)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get strike timestamps: %w", err)
	}

	actionTimes, err := s.modAction.TimestampsSince(ctx, guildID, start)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get action timestamps: %w", err)
	}

	return bucketByDay(strikeTimes, start, days), bucketByDay(actionTimes, start, days), nil
}

// bucketByDay counts timestamps per day starting at start.
func bucketByDay(timestamps []time.Time, start time.Time, days int) []types.DailyCount {
	counts := make([]types.DailyCount, days)
	for i := range counts {
		counts[i].Day = start.AddDate(0, 0, i)
	}

	for _, ts := range timestamps {
		idx := int(ts.UTC().Sub(start) / (24 * time.Hour))
		if idx >= 0 && idx < days {
			counts[idx].Count++
		}
	}

	return counts
}
