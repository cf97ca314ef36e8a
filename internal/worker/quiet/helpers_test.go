package quiet_test

import (
	"context"

	"github.com/robalyx/warden/internal/database/types"
)

type guildList []*types.GuildConfig

func (g guildList) List(context.Context) ([]*types.GuildConfig, error) {
	return g, nil
}
