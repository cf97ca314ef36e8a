package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

var indexStatements = []string{ //nolint:gochecknoglobals // -
	`CREATE INDEX IF NOT EXISTS idx_members_promotion
	ON members (guild_id, join_date, total_messages)`,

	`CREATE INDEX IF NOT EXISTS idx_strikes_member
	ON strikes (guild_id, user_id)`,

	`CREATE INDEX IF NOT EXISTS idx_strikes_guild_time
	ON strikes (guild_id, "timestamp" DESC)`,

	`CREATE INDEX IF NOT EXISTS idx_mod_actions_guild_time
	ON mod_actions (guild_id, "timestamp" DESC)`,

	`CREATE INDEX IF NOT EXISTS idx_mod_actions_active_timeouts
	ON mod_actions (guild_id, target_id, expires_at)
	WHERE action = 'timeout'`,
}

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		return CreateIndexes(ctx, db)
	}, func(ctx context.Context, db *bun.DB) error {
		for _, name := range []string{
			"idx_members_promotion",
			"idx_strikes_member",
			"idx_strikes_guild_time",
			"idx_mod_actions_guild_time",
			"idx_mod_actions_active_timeouts",
		} {
			if _, err := db.NewRaw("DROP INDEX IF EXISTS " + name).Exec(ctx); err != nil {
				return fmt.Errorf("failed to drop index %s: %w", name, err)
			}
		}

		return nil
	})
}

// CreateIndexes creates the lookup indexes used by the models.
func CreateIndexes(ctx context.Context, db bun.IDB) error {
	for _, stmt := range indexStatements {
		if _, err := db.NewRaw(stmt).Exec(ctx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}
