package bot

import (
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/warden/internal/moderation"
)

// toMessage converts a gateway message into the moderation engine's input.
func toMessage(guildID, channelID snowflake.ID, msg discord.Message) *moderation.Message {
	out := &moderation.Message{
		GuildID:    guildID,
		ChannelID:  channelID,
		MessageID:  msg.ID,
		AuthorID:   msg.Author.ID,
		AuthorName: msg.Author.EffectiveName(),
		Content:    msg.Content,
		IsBot:      msg.Author.Bot || msg.Author.System,
	}

	if msg.Member != nil {
		// Partial members sent with messages carry no user object
		member := *msg.Member
		member.User = msg.Author
		out.AuthorName = member.EffectiveName()
		out.AuthorJoinedAt = member.JoinedAt.UTC()
	}

	return out
}

// toJoinEvent converts a gateway member join into the greeter's input.
func toJoinEvent(guildID snowflake.ID, member discord.Member) *moderation.JoinEvent {
	return &moderation.JoinEvent{
		GuildID:  guildID,
		UserID:   member.User.ID,
		Username: member.EffectiveName(),
		JoinedAt: member.JoinedAt.UTC(),
		IsBot:    member.User.Bot,
	}
}
