package migrations

import (
	"context"
	"fmt"

	"github.com/robalyx/warden/internal/database/types"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		return CreateTables(ctx, db)
	}, func(ctx context.Context, db *bun.DB) error {
		for _, model := range tableModels() {
			if _, err := db.NewDropTable().Model(model).IfExists().Exec(ctx); err != nil {
				return fmt.Errorf("failed to drop table: %w", err)
			}
		}

		return nil
	})
}

func tableModels() []any {
	return []any{
		(*types.GuildConfig)(nil),
		(*types.Member)(nil),
		(*types.Strike)(nil),
		(*types.ModAction)(nil),
	}
}

// CreateTables creates every table if it does not exist yet.
// The statements are portable between PostgreSQL and SQLite.
func CreateTables(ctx context.Context, db bun.IDB) error {
	for _, model := range tableModels() {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	return nil
}
