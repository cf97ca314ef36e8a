package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/warden/internal/platform"
	"go.uber.org/zap"
)

// JoinEvent is a member joining a guild.
type JoinEvent struct {
	GuildID  snowflake.ID
	UserID   snowflake.ID
	Username string
	JoinedAt time.Time
	IsBot    bool
}

// Greeter records new members, welcomes them and assigns the default role.
type Greeter struct {
	store    Store
	dir      platform.Directory
	notifier platform.Notifier
	logger   *zap.Logger
}

// NewGreeter creates a Greeter.
func NewGreeter(store Store, dir platform.Directory, notifier platform.Notifier, logger *zap.Logger) *Greeter {
	return &Greeter{
		store:    store,
		dir:      dir,
		notifier: notifier,
		logger:   logger.Named("greeter"),
	}
}

// OnGuildAvailable makes sure the guild has a stored policy so that the
// scheduled workers pick it up.
func (g *Greeter) OnGuildAvailable(ctx context.Context, guildID snowflake.ID) error {
	if err := g.store.EnsureGuildConfig(ctx, guildID); err != nil {
		return fmt.Errorf("failed to ensure guild config: %w", err)
	}
	return nil
}

// OnJoin handles a member joining. The default role is only granted if it
// already exists; it is never created here.
func (g *Greeter) OnJoin(ctx context.Context, event *JoinEvent) error {
	if event.IsBot {
		return nil
	}

	joinedAt := event.JoinedAt
	if joinedAt.IsZero() {
		joinedAt = time.Now().UTC()
	}

	if err := g.store.RecordJoin(ctx, event.GuildID, event.UserID, event.Username, joinedAt); err != nil {
		return fmt.Errorf("failed to record join: %w", err)
	}

	cfg, err := g.store.GetGuildConfig(ctx, event.GuildID)
	if err != nil {
		return fmt.Errorf("failed to load guild config: %w", err)
	}

	logger := g.logger.With(
		zap.Uint64("guildID", uint64(event.GuildID)),
		zap.Uint64("userID", uint64(event.UserID)))

	if cfg.WelcomeChannelID != 0 && cfg.WelcomeMessage != "" {
		text := WelcomeNotice(cfg.WelcomeMessage, event.UserID)
		if err := g.notifier.SendNotice(ctx, cfg.WelcomeChannelID, text); err != nil {
			logger.Warn("Failed to send welcome message", zap.Error(err))
		}
	}

	if !cfg.AutoRoleEnabled || cfg.DefaultRoleName == "" {
		return nil
	}

	roleID, err := g.dir.FindRole(ctx, event.GuildID, cfg.DefaultRoleName)
	if errors.Is(err, platform.ErrNotFound) {
		logger.Debug("Default role does not exist", zap.String("role", cfg.DefaultRoleName))
		return nil
	}
	if err != nil {
		logger.Warn("Failed to look up default role", zap.Error(err))
		return nil
	}

	if err := g.dir.GrantRole(ctx, event.GuildID, event.UserID, roleID); err != nil {
		logger.Warn("Failed to grant default role", zap.Error(err))
	}

	return nil
}

// WelcomeNotice renders the welcome template, replacing {user} with a mention.
func WelcomeNotice(template string, userID snowflake.ID) string {
	return strings.ReplaceAll(template, "{user}", fmt.Sprintf("<@%d>", userID))
}
