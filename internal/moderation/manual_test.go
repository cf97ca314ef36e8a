package moderation_test

import (
	"testing"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/warden/internal/database/types"
	"github.com/robalyx/warden/internal/moderation"
	"github.com/robalyx/warden/internal/platform"
	"github.com/robalyx/warden/internal/platform/platformtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const adminID = snowflake.ID(500)

func TestPurgeValidation(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	fake := platformtest.NewFake()
	mod := moderation.NewModerator(moderation.NewStore(db), fake, zap.NewNop())
	ctx := t.Context()

	for _, amount := range []int{101, 0, -5} {
		_, err := mod.Purge(ctx, &moderation.PurgeRequest{
			GuildID: guildID, ChannelID: channelID, ModeratorID: adminID, Amount: amount,
		})
		require.ErrorIs(t, err, moderation.ErrValidation, "amount %d", amount)
	}

	fake.Snapshot(func(f *platformtest.Fake) {
		assert.Empty(t, f.PurgeCalls, "rejected purges never reach the platform")
	})

	deleted, err := mod.Purge(ctx, &moderation.PurgeRequest{
		GuildID: guildID, ChannelID: channelID, ModeratorID: adminID, Amount: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, 100, deleted)

	actions, err := db.Model().ModAction().List(ctx, guildID, 0, 50)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, types.ActionPurge, actions[0].Action)
	assert.Equal(t, channelID, actions[0].TargetID)
	assert.Equal(t, "Purged 100 messages", actions[0].Reason)
}

func TestKick(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	fake := platformtest.NewFake()
	mod := moderation.NewModerator(moderation.NewStore(db), fake, zap.NewNop())
	ctx := t.Context()

	action, err := mod.Kick(ctx, &moderation.KickRequest{
		GuildID: guildID, TargetID: userID, ModeratorID: adminID, Reason: "rude",
	})
	require.NoError(t, err)
	assert.Equal(t, types.ActionKick, action.Action)
	assert.Equal(t, "rude", action.Reason)

	t.Run("permission denied records nothing", func(t *testing.T) {
		fake.KickErr = platform.ErrPermissionDenied

		_, err := mod.Kick(ctx, &moderation.KickRequest{GuildID: guildID, TargetID: 101, ModeratorID: adminID})
		require.ErrorIs(t, err, platform.ErrPermissionDenied)

		actions, err := db.Model().ModAction().List(ctx, guildID, 0, 50)
		require.NoError(t, err)
		assert.Len(t, actions, 1)
	})
}

func TestMute(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	fake := platformtest.NewFake()
	mod := moderation.NewModerator(moderation.NewStore(db), fake, zap.NewNop())
	ctx := t.Context()

	action, err := mod.Mute(ctx, &moderation.MuteRequest{GuildID: guildID, TargetID: userID, ModeratorID: adminID})
	require.NoError(t, err)
	require.NotNil(t, action.DurationMinutes)
	assert.Equal(t, moderation.DefaultMuteMinutes, *action.DurationMinutes)
	require.NotNil(t, action.ExpiresAt)
	assert.Equal(t, "No reason provided", action.Reason)

	_, err = mod.Mute(ctx, &moderation.MuteRequest{
		GuildID: guildID, TargetID: userID, ModeratorID: adminID, Minutes: types.MaxTimeoutMinutes + 1,
	})
	require.ErrorIs(t, err, moderation.ErrValidation)

	fake.Snapshot(func(f *platformtest.Fake) {
		require.Len(t, f.Timeouts, 1)
		assert.Equal(t, 60, f.Timeouts[0].Minutes)
	})
}
