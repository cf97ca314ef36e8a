package commands_test

import (
	"strings"
	"testing"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/json"
	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/warden/internal/bot/commands"
	"github.com/robalyx/warden/internal/database"
	"github.com/robalyx/warden/internal/database/types"
	"github.com/robalyx/warden/internal/moderation"
	"github.com/robalyx/warden/internal/platform"
	"github.com/robalyx/warden/internal/platform/platformtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	guildID   snowflake.ID = 1
	channelID snowflake.ID = 10
	adminID   snowflake.ID = 20
	targetID  snowflake.ID = 30
)

func newHandler(t *testing.T) (*commands.Handler, database.Client, *platformtest.Fake) {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.NewSQLite(t.Context(), "file:commands_"+name+"?mode=memory&cache=shared", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	fake := platformtest.NewFake()
	fake.AddMember(guildID, &platform.Member{UserID: targetID})

	moderator := moderation.NewModerator(moderation.NewStore(db), fake, zap.NewNop())

	return commands.NewHandler(moderator, zap.NewNop()), db, fake
}

func TestDefinitions(t *testing.T) {
	t.Parallel()

	defs := commands.Definitions()
	require.Len(t, defs, 3)

	names := make([]string, 0, len(defs))
	for _, def := range defs {
		names = append(names, def.CommandName())
	}
	assert.Equal(t, []string{commands.KickCommandName, commands.MuteCommandName, commands.PurgeCommandName}, names)
}

func TestHandleKick(t *testing.T) {
	t.Parallel()

	h, db, fake := newHandler(t)

	reply := h.Handle(t.Context(), &commands.Input{
		Name:      commands.KickCommandName,
		GuildID:   guildID,
		InvokerID: adminID,
		TargetID:  targetID,
		Reason:    "raiding",
	})
	assert.Equal(t, "Kicked <@30>: raiding", reply)
	assert.Equal(t, []snowflake.ID{targetID}, fake.Kicks)

	actions, err := db.Model().ModAction().List(t.Context(), guildID, 0, 10)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, types.ActionKick, actions[0].Action)
	assert.Equal(t, adminID, actions[0].ModeratorID)
}

func TestHandleMuteDefaults(t *testing.T) {
	t.Parallel()

	h, _, fake := newHandler(t)

	reply := h.Handle(t.Context(), &commands.Input{
		Name:      commands.MuteCommandName,
		GuildID:   guildID,
		InvokerID: adminID,
		TargetID:  targetID,
	})
	assert.Equal(t, "Timed out <@30> for 60 minutes: No reason provided", reply)

	fake.Snapshot(func(f *platformtest.Fake) {
		require.Len(t, f.Timeouts, 1)
		assert.Equal(t, moderation.DefaultMuteMinutes, f.Timeouts[0].Minutes)
	})
}

func TestHandlePurgeBounds(t *testing.T) {
	t.Parallel()

	h, _, fake := newHandler(t)

	reply := h.Handle(t.Context(), &commands.Input{
		Name:      commands.PurgeCommandName,
		GuildID:   guildID,
		ChannelID: channelID,
		InvokerID: adminID,
		Amount:    101,
	})
	assert.True(t, strings.HasPrefix(reply, "Rejected: "), reply)
	assert.Empty(t, fake.PurgeCalls)

	reply = h.Handle(t.Context(), &commands.Input{
		Name:      commands.PurgeCommandName,
		GuildID:   guildID,
		ChannelID: channelID,
		InvokerID: adminID,
		Amount:    100,
	})
	assert.Equal(t, "Deleted 100 messages", reply)
}

func TestHandleFailures(t *testing.T) {
	t.Parallel()

	h, _, fake := newHandler(t)

	fake.KickErr = platform.ErrPermissionDenied
	reply := h.Handle(t.Context(), &commands.Input{
		Name: commands.KickCommandName, GuildID: guildID, InvokerID: adminID, TargetID: targetID,
	})
	assert.Equal(t, commands.ReplyPermissionDenied, reply)

	reply = h.Handle(t.Context(), &commands.Input{Name: commands.KickCommandName, TargetID: targetID})
	assert.Equal(t, commands.ReplyGuildOnly, reply)
}

func TestParseInput(t *testing.T) {
	t.Parallel()

	guild := guildID
	in := commands.ParseInput(&guild, channelID, adminID, discord.SlashCommandInteractionData{
		Options: map[string]discord.SlashCommandOption{
			"member":  {Name: "member", Type: discord.ApplicationCommandOptionTypeUser, Value: json.RawMessage(`"30"`)},
			"minutes": {Name: "minutes", Type: discord.ApplicationCommandOptionTypeInt, Value: json.RawMessage(`15`)},
			"reason":  {Name: "reason", Type: discord.ApplicationCommandOptionTypeString, Value: json.RawMessage(`"spam"`)},
		},
	})
	assert.Equal(t, guildID, in.GuildID)
	assert.Equal(t, channelID, in.ChannelID)
	assert.Equal(t, adminID, in.InvokerID)
	assert.Equal(t, targetID, in.TargetID)
	assert.Equal(t, 15, in.Minutes)
	assert.Equal(t, "spam", in.Reason)
	assert.Zero(t, in.Amount)

	in = commands.ParseInput(nil, channelID, adminID, discord.SlashCommandInteractionData{})
	assert.Zero(t, in.GuildID)
}
