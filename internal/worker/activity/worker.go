// Package activity grants the active-member role to members with sustained, clean participation.
package activity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/warden/internal/database/types"
	"github.com/robalyx/warden/internal/platform"
	"github.com/robalyx/warden/internal/worker/core"
	"go.uber.org/zap"
)

// TaskName identifies the activity task in logs and locks.
const TaskName = "activity_roles"

// DefaultInterval is the period between promotion ticks.
const DefaultInterval = time.Hour

// ActiveRoleColor is the color given to the role when the bot has to create it.
const ActiveRoleColor = 0x2ecc71

// Criteria are the thresholds a member must meet to be promoted.
type Criteria struct {
	MinAge      time.Duration
	MinMessages int
	MaxStrikes  int
}

// DefaultCriteria returns the standard promotion thresholds.
func DefaultCriteria() Criteria {
	return Criteria{
		MinAge:      7 * 24 * time.Hour,
		MinMessages: 10,
		MaxStrikes:  3,
	}
}

// MemberLister returns the members of a guild that satisfy the promotion criteria.
type MemberLister interface {
	ListPromotable(ctx context.Context, guildID snowflake.ID, criteria types.PromotionCriteria) ([]*types.Member, error)
}

// Worker promotes eligible members. It never revokes the role.
type Worker struct {
	members   MemberLister
	directory platform.Directory
	criteria  Criteria
	logger    *zap.Logger
}

// New creates an activity worker.
func New(members MemberLister, directory platform.Directory, criteria Criteria, logger *zap.Logger) *Worker {
	return &Worker{
		members:   members,
		directory: directory,
		criteria:  criteria,
		logger:    logger.Named("activity_roles"),
	}
}

// Name implements core.Task.
func (w *Worker) Name() string {
	return TaskName
}

// Reconcile grants the active role to every eligible member still present in the guild.
func (w *Worker) Reconcile(ctx context.Context, cfg *types.GuildConfig, now time.Time) error {
	if !cfg.AutoRoleEnabled {
		return core.ErrGuildSkipped
	}

	candidates, err := w.members.ListPromotable(ctx, cfg.GuildID, types.PromotionCriteria{
		JoinedBefore: now.Add(-w.criteria.MinAge),
		MinMessages:  w.criteria.MinMessages,
		MaxStrikes:   w.criteria.MaxStrikes,
	})
	if err != nil {
		return fmt.Errorf("failed to list promotable members: %w", err)
	}

	if len(candidates) == 0 {
		return nil
	}

	roleID, err := w.directory.EnsureRole(ctx, cfg.GuildID, cfg.ActiveRoleName, platform.RoleAttrs{
		Color:       ActiveRoleColor,
		Mentionable: true,
	})
	if err != nil {
		if errors.Is(err, platform.ErrPermissionDenied) {
			return fmt.Errorf("%w: cannot manage role %q", core.ErrGuildSkipped, cfg.ActiveRoleName)
		}

		return fmt.Errorf("failed to ensure active role: %w", err)
	}

	promoted := 0
	for _, candidate := range candidates {
		ok, err := w.promote(ctx, cfg.GuildID, candidate.UserID, roleID)
		if err != nil {
			w.logger.Warn("Failed to promote member",
				zap.Uint64("guildID", uint64(cfg.GuildID)),
				zap.Uint64("userID", uint64(candidate.UserID)),
				zap.Error(err))

			continue
		}

		if ok {
			promoted++
		}
	}

	if promoted > 0 {
		w.logger.Info("Promoted active members",
			zap.Uint64("guildID", uint64(cfg.GuildID)),
			zap.Int("promoted", promoted),
			zap.Int("candidates", len(candidates)))
	}

	return nil
}

// promote grants the role unless the member left or already holds it.
func (w *Worker) promote(ctx context.Context, guildID, userID, roleID snowflake.ID) (bool, error) {
	member, err := w.directory.GetMember(ctx, guildID, userID)
	if err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			return false, nil
		}

		return false, err
	}

	if member.HasRole(roleID) {
		return false, nil
	}

	if err := w.directory.GrantRole(ctx, guildID, userID, roleID); err != nil {
		return false, err
	}

	return true, nil
}
