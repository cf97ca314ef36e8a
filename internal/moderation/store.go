package moderation

import (
	"context"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/warden/internal/database"
	"github.com/robalyx/warden/internal/database/models"
	"github.com/robalyx/warden/internal/database/service"
	"github.com/robalyx/warden/internal/database/types"
)

// Store is the persistence the moderation components need.
type Store interface {
	GetGuildConfig(ctx context.Context, guildID snowflake.ID) (*types.GuildConfig, error)
	EnsureGuildConfig(ctx context.Context, guildID snowflake.ID) error
	TouchMember(ctx context.Context, activity models.MemberActivity) error
	RecordJoin(ctx context.Context, guildID, userID snowflake.ID, username string, joinedAt time.Time) error
	RecordStrike(ctx context.Context, req *service.StrikeRequest) (*types.StrikeResult, error)
	AppendModAction(ctx context.Context, action *types.ModAction) error
}

// dbStore adapts a database client to Store.
type dbStore struct {
	db database.Client
}

// NewStore creates a Store backed by the database client.
func NewStore(db database.Client) Store {
	return &dbStore{db: db}
}

func (s *dbStore) GetGuildConfig(ctx context.Context, guildID snowflake.ID) (*types.GuildConfig, error) {
	return s.db.Model().GuildConfig().Get(ctx, guildID)
}

func (s *dbStore) EnsureGuildConfig(ctx context.Context, guildID snowflake.ID) error {
	return s.db.Model().GuildConfig().Ensure(ctx, guildID)
}

func (s *dbStore) TouchMember(ctx context.Context, activity models.MemberActivity) error {
	return s.db.Model().Member().Touch(ctx, activity)
}

func (s *dbStore) RecordJoin(
	ctx context.Context, guildID, userID snowflake.ID, username string, joinedAt time.Time,
) error {
	return s.db.Model().Member().RecordJoin(ctx, guildID, userID, username, joinedAt)
}

func (s *dbStore) RecordStrike(ctx context.Context, req *service.StrikeRequest) (*types.StrikeResult, error) {
	return s.db.Service().Ledger().RecordStrike(ctx, req)
}

func (s *dbStore) AppendModAction(ctx context.Context, action *types.ModAction) error {
	return s.db.Model().ModAction().Append(ctx, action)
}
