// Package quiet toggles the send permission of a guild channel during configured quiet hours.
package quiet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robalyx/warden/internal/database/types"
	"github.com/robalyx/warden/internal/platform"
	"github.com/robalyx/warden/internal/worker/core"
	"go.uber.org/zap"
)

// TaskName identifies the quiet-hours task in logs and locks.
const TaskName = "quiet_hours"

// DefaultInterval is the period between quiet-hours ticks.
const DefaultInterval = time.Minute

// Notices posted to the quiet channel when the window opens and closes.
const (
	// StartNotice is posted when sending is denied for the night.
	StartNotice = "Quiet hours are now active"
	// EndNotice is posted when sending is allowed again.
	EndNotice = "Quiet hours have ended"
)

// Worker reconciles each guild's channel permission with its quiet-hours window.
type Worker struct {
	directory platform.Directory
	notifier  platform.Notifier
	location  *time.Location
	logger    *zap.Logger
}

// New creates a quiet-hours worker that evaluates windows in the given location.
func New(directory platform.Directory, notifier platform.Notifier, location *time.Location, logger *zap.Logger) *Worker {
	if location == nil {
		location = time.UTC
	}

	return &Worker{
		directory: directory,
		notifier:  notifier,
		location:  location,
		logger:    logger.Named("quiet_hours"),
	}
}

// Name implements core.Task.
func (w *Worker) Name() string {
	return TaskName
}

// Reconcile applies a state transition only on the edge between open and quiet,
// so repeated ticks inside the same window change nothing.
func (w *Worker) Reconcile(ctx context.Context, cfg *types.GuildConfig, now time.Time) error {
	if !cfg.QuietHoursEnabled {
		return core.ErrGuildSkipped
	}

	quiet, err := IsQuiet(now.In(w.location), cfg.QuietStart, cfg.QuietEnd)
	if err != nil {
		return fmt.Errorf("failed to evaluate quiet window: %w", err)
	}

	channelID, err := w.directory.ResolveChannel(ctx, cfg.GuildID, cfg.QuietChannelName)
	if err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			return fmt.Errorf("%w: no text channel", core.ErrGuildSkipped)
		}

		return fmt.Errorf("failed to resolve quiet channel: %w", err)
	}

	// The @everyone role shares the guild's ID
	everyone := cfg.GuildID

	state, err := w.directory.GetSendPermission(ctx, channelID, everyone)
	if err != nil {
		return fmt.Errorf("failed to read send permission: %w", err)
	}

	currentlyQuiet := state == platform.PermDeny

	var (
		next   platform.PermState
		notice string
	)

	switch {
	case quiet && !currentlyQuiet:
		next, notice = platform.PermDeny, StartNotice
	case !quiet && currentlyQuiet:
		next, notice = platform.PermUnset, EndNotice
	default:
		return nil
	}

	if err := w.directory.SetSendPermission(ctx, channelID, everyone, next); err != nil {
		return fmt.Errorf("failed to set send permission: %w", err)
	}

	w.logger.Info("Quiet hours state changed",
		zap.Uint64("guildID", uint64(cfg.GuildID)),
		zap.Uint64("channelID", uint64(channelID)),
		zap.Bool("quiet", quiet))

	if err := w.notifier.SendNotice(ctx, channelID, notice); err != nil {
		w.logger.Warn("Failed to send quiet hours notice",
			zap.Uint64("guildID", uint64(cfg.GuildID)),
			zap.Error(err))
	}

	return nil
}
