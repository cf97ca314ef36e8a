package commands

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

// DefaultPruneAge is how long moderation actions are kept by default.
const DefaultPruneAge = 90 * 24 * time.Hour

// MaintenanceCommands returns data maintenance commands.
func MaintenanceCommands(deps *CLIDependencies) []*cli.Command {
	return []*cli.Command{
		{
			Name:  "guilds",
			Usage: "List every guild with a stored configuration",
			Action: func(ctx context.Context, _ *cli.Command) error {
				return handleListGuilds(ctx, deps)
			},
		},
		{
			Name:  "prune-actions",
			Usage: "Delete moderation actions older than a given age",
			Description: `Delete moderation log entries older than --older-than.
Timeouts that have not expired yet are always kept. Strikes are never pruned.

Examples:
  db prune-actions                        # Remove entries older than 90 days
  db prune-actions --older-than 720h -y   # Remove entries older than 30 days without asking`,
			Flags: []cli.Flag{
				&cli.DurationFlag{
					Name:    "older-than",
					Usage:   "Minimum age of the entries to delete",
					Value:   DefaultPruneAge,
					Aliases: []string{"o"},
				},
				&cli.BoolFlag{
					Name:    "yes",
					Usage:   "Skip the confirmation prompt",
					Aliases: []string{"y"},
				},
			},
			Action: func(ctx context.Context, c *cli.Command) error {
				return handlePruneActions(ctx, deps, c.Duration("older-than"), c.Bool("yes"))
			},
		},
	}
}

func handleListGuilds(ctx context.Context, deps *CLIDependencies) error {
	configs, err := deps.DB.Model().GuildConfig().List(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("%-20s %-8s %-8s %-8s %-8s\n", "GUILD", "WORDS", "STRIKES", "QUIET", "ROLES")

	for _, cfg := range configs {
		fmt.Printf("%-20s %-8d %-8d %-8t %-8t\n",
			cfg.GuildID, len(cfg.ForbiddenWords), cfg.StrikeLimit, cfg.QuietHoursEnabled, cfg.AutoRoleEnabled)
	}

	deps.Logger.Info("Listed guilds", zap.Int("count", len(configs)))

	return nil
}

func handlePruneActions(ctx context.Context, deps *CLIDependencies, age time.Duration, skipConfirm bool) error {
	if age <= 0 {
		return ErrInvalidAge
	}

	now := time.Now().UTC()
	cutoff := now.Add(-age)

	if !skipConfirm {
		log.Printf("Delete moderation actions recorded before %s? (y/N)", cutoff.Format(time.RFC3339))

		var response string

		_, _ = fmt.Scanln(&response)

		if !strings.EqualFold(response, "y") {
			deps.Logger.Info("Prune cancelled")
			return nil
		}
	}

	removed, err := deps.DB.Model().ModAction().PurgeBefore(ctx, cutoff, now)
	if err != nil {
		return err
	}

	deps.Logger.Info("Pruned moderation actions",
		zap.Int64("removed", removed),
		zap.Time("cutoff", cutoff))

	return nil
}
