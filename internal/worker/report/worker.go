// Package report posts a periodic moderation summary to each guild's log channel.
package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/warden/internal/database/types"
	"github.com/robalyx/warden/internal/platform"
	"github.com/robalyx/warden/internal/worker/core"
	"go.uber.org/zap"
)

// TaskName identifies the report task in logs and locks.
const TaskName = "weekly_report"

const (
	// DefaultInterval is the period between reports.
	DefaultInterval = 7 * 24 * time.Hour
	// DefaultWindowDays is the number of days a report covers.
	DefaultWindowDays = 7
)

// StatsSource provides the figures a report is built from.
type StatsSource interface {
	GetGuildStats(ctx context.Context, guildID snowflake.ID, now time.Time, window time.Duration) (*types.GuildStats, error)
	GetDailyActivity(
		ctx context.Context, guildID snowflake.ID, now time.Time, days int,
	) ([]types.DailyCount, []types.DailyCount, error)
}

// Worker builds and delivers the report of every guild with a log channel.
type Worker struct {
	stats    StatsSource
	notifier platform.Notifier
	days     int
	logger   *zap.Logger
}

// New creates a report worker covering the last days.
func New(stats StatsSource, notifier platform.Notifier, days int, logger *zap.Logger) *Worker {
	if days <= 0 {
		days = DefaultWindowDays
	}

	return &Worker{
		stats:    stats,
		notifier: notifier,
		days:     days,
		logger:   logger.Named("weekly_report"),
	}
}

// Name implements core.Task.
func (w *Worker) Name() string {
	return TaskName
}

// Reconcile posts the report for one guild.
func (w *Worker) Reconcile(ctx context.Context, cfg *types.GuildConfig, now time.Time) error {
	if cfg.LogChannelID == 0 {
		return core.ErrGuildSkipped
	}

	window := time.Duration(w.days) * 24 * time.Hour

	stats, err := w.stats.GetGuildStats(ctx, cfg.GuildID, now, window)
	if err != nil {
		return fmt.Errorf("failed to get guild stats: %w", err)
	}

	strikes, actions, err := w.stats.GetDailyActivity(ctx, cfg.GuildID, now, w.days)
	if err != nil {
		return fmt.Errorf("failed to get daily activity: %w", err)
	}

	text := FormatReport(stats, w.days)

	png, err := NewChartBuilder(strikes, actions).Build()
	if err != nil {
		// The figures are still worth sending without the chart
		w.logger.Warn("Failed to build report chart",
			zap.Uint64("guildID", uint64(cfg.GuildID)),
			zap.Error(err))

		if err := w.notifier.SendNotice(ctx, cfg.LogChannelID, text); err != nil {
			return fmt.Errorf("failed to send report: %w", err)
		}

		return nil
	}

	if err := w.notifier.SendReport(ctx, cfg.LogChannelID, text, png); err != nil {
		return fmt.Errorf("failed to send report: %w", err)
	}

	w.logger.Info("Sent moderation report",
		zap.Uint64("guildID", uint64(cfg.GuildID)),
		zap.Int("strikes", stats.RecentStrikes),
		zap.Int("actions", stats.RecentActions))

	return nil
}

// FormatReport renders the plain-text body of a report.
func FormatReport(stats *types.GuildStats, days int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Moderation report for the last %d days\n", days)
	fmt.Fprintf(&b, "Members: %d (%d new)\n", stats.TotalMembers, stats.NewMembers)
	fmt.Fprintf(&b, "Strikes: %d (%d all time)\n", stats.RecentStrikes, stats.TotalStrikes)
	fmt.Fprintf(&b, "Moderation actions: %d\n", stats.RecentActions)
	fmt.Fprintf(&b, "Active timeouts: %d", stats.ActiveTimeouts)

	return b.String()
}
