package moderation_test

import (
	"testing"
	"time"

	"github.com/robalyx/warden/internal/database/types"
	"github.com/robalyx/warden/internal/moderation"
	"github.com/robalyx/warden/internal/platform"
	"github.com/robalyx/warden/internal/platform/platformtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGreeterOnJoin(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	fake := platformtest.NewFake()
	greeter := moderation.NewGreeter(moderation.NewStore(db), fake, fake, zap.NewNop())
	ctx := t.Context()

	welcome := channelID
	_, err := db.Model().GuildConfig().Update(ctx, guildID, &types.GuildConfigUpdate{WelcomeChannelID: &welcome})
	require.NoError(t, err)

	fake.AddRole(guildID, 77, "Member")
	fake.AddMember(guildID, &platform.Member{UserID: userID, Username: "alice"})

	joined := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, greeter.OnJoin(ctx, &moderation.JoinEvent{
		GuildID: guildID, UserID: userID, Username: "alice", JoinedAt: joined,
	}))

	assert.Equal(t, []string{"Welcome to the server, <@100>!"}, fake.NoticeTexts())

	member, err := fake.GetMember(ctx, guildID, userID)
	require.NoError(t, err)
	assert.True(t, member.HasRole(77))

	record, err := db.Model().Member().Get(ctx, guildID, userID)
	require.NoError(t, err)
	assert.True(t, joined.Equal(record.JoinDate))
}

func TestGreeterMissingDefaultRole(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	fake := platformtest.NewFake()
	greeter := moderation.NewGreeter(moderation.NewStore(db), fake, fake, zap.NewNop())
	fake.AddMember(guildID, &platform.Member{UserID: userID})

	require.NoError(t, greeter.OnJoin(t.Context(), &moderation.JoinEvent{GuildID: guildID, UserID: userID}))

	fake.Snapshot(func(f *platformtest.Fake) {
		assert.Zero(t, f.RoleCreates, "the default role is never created on join")
		assert.Empty(t, f.RoleGrants)
		assert.Empty(t, f.Notices, "no welcome channel configured")
	})
}

func TestGreeterOnGuildAvailable(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	fake := platformtest.NewFake()
	greeter := moderation.NewGreeter(moderation.NewStore(db), fake, fake, zap.NewNop())

	require.NoError(t, greeter.OnGuildAvailable(t.Context(), guildID))
	require.NoError(t, greeter.OnGuildAvailable(t.Context(), guildID))

	configs, err := db.Model().GuildConfig().List(t.Context())
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Equal(t, guildID, configs[0].GuildID)
}
