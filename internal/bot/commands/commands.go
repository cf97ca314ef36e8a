// Package commands defines the moderation slash commands and turns their input into moderation requests.
package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/json"
	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/warden/internal/database/types"
	"github.com/robalyx/warden/internal/moderation"
	"github.com/robalyx/warden/internal/platform"
	"go.uber.org/zap"
)

// Slash command names as registered with Discord.
const (
	// KickCommandName removes a member from the guild.
	KickCommandName = "kick"
	// MuteCommandName times a member out.
	MuteCommandName = "mute"
	// PurgeCommandName bulk deletes recent messages in the channel.
	PurgeCommandName = "purge"
)

const (
	optionMember  = "member"
	optionReason  = "reason"
	optionMinutes = "minutes"
	optionAmount  = "amount"
)

// Replies sent for failures that are not the invoker's fault.
const (
	ReplyPermissionDenied = "I don't have permission to do that."
	ReplyNotFound         = "That member or channel no longer exists."
	ReplyFailed           = "Something went wrong. Please try again later."
	ReplyGuildOnly        = "This command can only be used in a server."
)

// Definitions returns the slash commands registered with Discord.
func Definitions() []discord.ApplicationCommandCreate {
	minMinutes, maxMinutes := 1, types.MaxTimeoutMinutes
	minAmount, maxAmount := 1, moderation.MaxPurgeAmount
	guildOnly := []discord.InteractionContextType{discord.InteractionContextTypeGuild}

	return []discord.ApplicationCommandCreate{
		discord.SlashCommandCreate{
			Name:                     KickCommandName,
			Description:              "Kick a member from the server",
			DefaultMemberPermissions: json.NewNullablePtr(discord.PermissionKickMembers),
			Contexts:                 guildOnly,
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionUser{Name: optionMember, Description: "Member to kick", Required: true},
				discord.ApplicationCommandOptionString{Name: optionReason, Description: "Reason for the kick"},
			},
		},
		discord.SlashCommandCreate{
			Name:                     MuteCommandName,
			Description:              "Time out a member",
			DefaultMemberPermissions: json.NewNullablePtr(discord.PermissionModerateMembers),
			Contexts:                 guildOnly,
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionUser{Name: optionMember, Description: "Member to time out", Required: true},
				discord.ApplicationCommandOptionInt{
					Name:        optionMinutes,
					Description: fmt.Sprintf("Duration in minutes (default %d)", moderation.DefaultMuteMinutes),
					MinValue:    &minMinutes,
					MaxValue:    &maxMinutes,
				},
				discord.ApplicationCommandOptionString{Name: optionReason, Description: "Reason for the timeout"},
			},
		},
		discord.SlashCommandCreate{
			Name:                     PurgeCommandName,
			Description:              "Delete recent messages in this channel",
			DefaultMemberPermissions: json.NewNullablePtr(discord.PermissionManageMessages),
			Contexts:                 guildOnly,
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionInt{
					Name:        optionAmount,
					Description: "Number of messages to delete",
					Required:    true,
					MinValue:    &minAmount,
					MaxValue:    &maxAmount,
				},
			},
		},
	}
}

// Input is a parsed slash command invocation.
type Input struct {
	Name      string
	GuildID   snowflake.ID
	ChannelID snowflake.ID
	InvokerID snowflake.ID
	TargetID  snowflake.ID
	Reason    string
	Minutes   int
	Amount    int
}

// ParseInput extracts the options of a slash command.
func ParseInput(guildID *snowflake.ID, channelID, invokerID snowflake.ID, data discord.SlashCommandInteractionData) *Input {
	in := &Input{
		Name:      data.CommandName(),
		ChannelID: channelID,
		InvokerID: invokerID,
	}

	if guildID != nil {
		in.GuildID = *guildID
	}
	if target, ok := data.OptSnowflake(optionMember); ok {
		in.TargetID = target
	}
	if reason, ok := data.OptString(optionReason); ok {
		in.Reason = reason
	}
	if minutes, ok := data.OptInt(optionMinutes); ok {
		in.Minutes = minutes
	}
	if amount, ok := data.OptInt(optionAmount); ok {
		in.Amount = amount
	}

	return in
}

// Handler executes slash commands through the moderator.
type Handler struct {
	moderator *moderation.Moderator
	logger    *zap.Logger
}

// NewHandler creates a command handler.
func NewHandler(moderator *moderation.Moderator, logger *zap.Logger) *Handler {
	return &Handler{
		moderator: moderator,
		logger:    logger.Named("commands"),
	}
}

// Handle runs the command and returns the reply shown to the invoker.
func (h *Handler) Handle(ctx context.Context, in *Input) string {
	if in.GuildID == 0 {
		return ReplyGuildOnly
	}

	switch in.Name {
	case KickCommandName:
		action, err := h.moderator.Kick(ctx, &moderation.KickRequest{
			GuildID:     in.GuildID,
			TargetID:    in.TargetID,
			ModeratorID: in.InvokerID,
			Reason:      in.Reason,
		})
		if err != nil {
			return h.failure(in, err)
		}
		return fmt.Sprintf("Kicked <@%d>: %s", in.TargetID, action.Reason)

	case MuteCommandName:
		action, err := h.moderator.Mute(ctx, &moderation.MuteRequest{
			GuildID:     in.GuildID,
			TargetID:    in.TargetID,
			ModeratorID: in.InvokerID,
			Minutes:     in.Minutes,
			Reason:      in.Reason,
		})
		if err != nil {
			return h.failure(in, err)
		}
		return fmt.Sprintf("Timed out <@%d> for %d minutes: %s", in.TargetID, *action.DurationMinutes, action.Reason)

	case PurgeCommandName:
		deleted, err := h.moderator.Purge(ctx, &moderation.PurgeRequest{
			GuildID:     in.GuildID,
			ChannelID:   in.ChannelID,
			ModeratorID: in.InvokerID,
			Amount:      in.Amount,
		})
		if err != nil {
			return h.failure(in, err)
		}
		return fmt.Sprintf("Deleted %d messages", deleted)

	default:
		return "This command is not available."
	}
}

func (h *Handler) failure(in *Input, err error) string {
	switch {
	case errors.Is(err, moderation.ErrValidation):
		return "Rejected: " + err.Error()
	case errors.Is(err, platform.ErrPermissionDenied):
		return ReplyPermissionDenied
	case errors.Is(err, platform.ErrNotFound):
		return ReplyNotFound
	}

	h.logger.Error("Command failed",
		zap.String("command", in.Name),
		zap.Uint64("guildID", uint64(in.GuildID)),
		zap.Error(err))

	return ReplyFailed
}
