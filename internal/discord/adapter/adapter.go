// Package adapter implements the platform interfaces on top of the Discord REST API.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/json"
	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/warden/internal/platform"
	"go.uber.org/zap"
)

// bulkDeleteMaxAge is the oldest message Discord accepts in a bulk delete.
const bulkDeleteMaxAge = 14*24*time.Hour - time.Hour

// API is the subset of the Discord REST API the adapter uses.
type API interface {
	rest.Channels
	rest.Guilds
	rest.Members
}

var (
	_ platform.Notifier  = (*Adapter)(nil)
	_ platform.Directory = (*Adapter)(nil)
)

// Adapter implements platform.Notifier and platform.Directory.
type Adapter struct {
	api    API
	logger *zap.Logger
}

// New creates an adapter over a Discord REST client.
func New(api API, logger *zap.Logger) *Adapter {
	return &Adapter{
		api:    api,
		logger: logger.Named("discord"),
	}
}

// SendNotice posts a plain-text message.
func (a *Adapter) SendNotice(ctx context.Context, channelID snowflake.ID, text string) error {
	_, err := a.api.CreateMessage(channelID, discord.MessageCreate{Content: text}, rest.WithCtx(ctx))
	return classify(err, "send notice")
}

// SendReport posts a message with a PNG attachment.
func (a *Adapter) SendReport(ctx context.Context, channelID snowflake.ID, text string, png io.Reader) error {
	msg := discord.NewMessageCreateBuilder().
		SetContent(text).
		AddFile("report.png", "Moderation activity", png).
		Build()

	_, err := a.api.CreateMessage(channelID, msg, rest.WithCtx(ctx))
	return classify(err, "send report")
}

func (a *Adapter) DeleteMessage(ctx context.Context, channelID, messageID snowflake.ID) error {
	return classify(a.api.DeleteMessage(channelID, messageID, rest.WithCtx(ctx)), "delete message")
}

// TimeoutMember disables communication for the member for the given minutes.
func (a *Adapter) TimeoutMember(ctx context.Context, guildID, userID snowflake.ID, minutes int, reason string) error {
	until := time.Now().Add(time.Duration(minutes) * time.Minute)

	_, err := a.api.UpdateMember(guildID, userID, discord.MemberUpdate{
		CommunicationDisabledUntil: json.NewNullablePtr(until),
	}, rest.WithCtx(ctx), rest.WithReason(reason))

	return classify(err, "timeout member")
}

func (a *Adapter) KickMember(ctx context.Context, guildID, userID snowflake.ID, reason string) error {
	return classify(a.api.RemoveMember(guildID, userID, rest.WithCtx(ctx), rest.WithReason(reason)), "kick member")
}

// PurgeMessages deletes up to amount of the most recent messages in the channel.
// Messages too old for a bulk delete are removed one by one.
func (a *Adapter) PurgeMessages(ctx context.Context, channelID snowflake.ID, amount int) (int, error) {
	messages, err := a.api.GetMessages(channelID, 0, 0, 0, amount, rest.WithCtx(ctx))
	if err != nil {
		return 0, classify(err, "list messages")
	}

	cutoff := time.Now().Add(-bulkDeleteMaxAge)

	var recent, old []snowflake.ID
	for _, msg := range messages {
		if msg.ID.Time().After(cutoff) {
			recent = append(recent, msg.ID)
		} else {
			old = append(old, msg.ID)
		}
	}

	deleted := 0

	switch len(recent) {
	case 0:
	case 1:
		// Bulk delete requires at least two messages
		old = append(old, recent[0])
	default:
		if err := a.api.BulkDeleteMessages(channelID, recent, rest.WithCtx(ctx)); err != nil {
			return 0, classify(err, "bulk delete messages")
		}
		deleted += len(recent)
	}

	for _, id := range old {
		if err := a.api.DeleteMessage(channelID, id, rest.WithCtx(ctx)); err != nil {
			err = classify(err, "delete message")
			if errors.Is(err, platform.ErrNotFound) {
				continue
			}

			return deleted, err
		}
		deleted++
	}

	return deleted, nil
}

func (a *Adapter) GetMember(ctx context.Context, guildID, userID snowflake.ID) (*platform.Member, error) {
	member, err := a.api.GetMember(guildID, userID, rest.WithCtx(ctx))
	if err != nil {
		return nil, classify(err, "get member")
	}

	return &platform.Member{
		UserID:   member.User.ID,
		Username: member.User.Username,
		RoleIDs:  member.RoleIDs,
		JoinedAt: member.JoinedAt,
	}, nil
}

func (a *Adapter) GrantRole(ctx context.Context, guildID, userID, roleID snowflake.ID) error {
	return classify(a.api.AddMemberRole(guildID, userID, roleID, rest.WithCtx(ctx)), "grant role")
}

func (a *Adapter) FindRole(ctx context.Context, guildID snowflake.ID, name string) (snowflake.ID, error) {
	roles, err := a.api.GetRoles(guildID, rest.WithCtx(ctx))
	if err != nil {
		return 0, classify(err, "list roles")
	}

	for _, role := range roles {
		if role.Name == name {
			return role.ID, nil
		}
	}

	return 0, fmt.Errorf("%w: role %q", platform.ErrNotFound, name)
}

func (a *Adapter) EnsureRole(
	ctx context.Context, guildID snowflake.ID, name string, attrs platform.RoleAttrs,
) (snowflake.ID, error) {
	id, err := a.FindRole(ctx, guildID, name)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, platform.ErrNotFound) {
		return 0, err
	}

	role, err := a.api.CreateRole(guildID, discord.RoleCreate{
		Name:        name,
		Color:       attrs.Color,
		Mentionable: attrs.Mentionable,
	}, rest.WithCtx(ctx), rest.WithReason("Created for automatic role assignment"))
	if err != nil {
		return 0, classify(err, "create role")
	}

	a.logger.Info("Created role",
		zap.Uint64("guildID", uint64(guildID)),
		zap.Uint64("roleID", uint64(role.ID)),
		zap.String("name", name))

	return role.ID, nil
}

// ResolveChannel picks the text channel with the preferred name, or the
// topmost text channel when none matches.
func (a *Adapter) ResolveChannel(ctx context.Context, guildID snowflake.ID, preferredName string) (snowflake.ID, error) {
	channels, err := a.api.GetGuildChannels(guildID, rest.WithCtx(ctx))
	if err != nil {
		return 0, classify(err, "list channels")
	}

	var first discord.GuildChannel
	for _, ch := range channels {
		if ch.Type() != discord.ChannelTypeGuildText {
			continue
		}
		if ch.Name() == preferredName {
			return ch.ID(), nil
		}
		if first == nil || ch.Position() < first.Position() {
			first = ch
		}
	}

	if first == nil {
		return 0, fmt.Errorf("%w: no text channel in guild %d", platform.ErrNotFound, guildID)
	}

	return first.ID(), nil
}

// GetSendPermission reads the send-messages bit of the role's overwrite on the channel.
func (a *Adapter) GetSendPermission(ctx context.Context, channelID, roleID snowflake.ID) (platform.PermState, error) {
	overwrite, err := a.roleOverwrite(ctx, channelID, roleID)
	if err != nil {
		return platform.PermUnset, err
	}

	switch {
	case overwrite.Deny.Has(discord.PermissionSendMessages):
		return platform.PermDeny, nil
	case overwrite.Allow.Has(discord.PermissionSendMessages):
		return platform.PermAllow, nil
	default:
		return platform.PermUnset, nil
	}
}

// SetSendPermission rewrites only the send-messages bit of the role's overwrite.
func (a *Adapter) SetSendPermission(
	ctx context.Context, channelID, roleID snowflake.ID, state platform.PermState,
) error {
	overwrite, err := a.roleOverwrite(ctx, channelID, roleID)
	if err != nil {
		return err
	}

	allow := overwrite.Allow.Remove(discord.PermissionSendMessages)
	deny := overwrite.Deny.Remove(discord.PermissionSendMessages)

	switch state {
	case platform.PermAllow:
		allow = allow.Add(discord.PermissionSendMessages)
	case platform.PermDeny:
		deny = deny.Add(discord.PermissionSendMessages)
	case platform.PermUnset:
	}

	err = a.api.UpdatePermissionOverwrite(channelID, roleID, discord.RolePermissionOverwriteUpdate{
		Allow: &allow,
		Deny:  &deny,
	}, rest.WithCtx(ctx), rest.WithReason("Quiet hours"))

	return classify(err, "update permission overwrite")
}

func (a *Adapter) roleOverwrite(
	ctx context.Context, channelID, roleID snowflake.ID,
) (discord.RolePermissionOverwrite, error) {
	channel, err := a.api.GetChannel(channelID, rest.WithCtx(ctx))
	if err != nil {
		return discord.RolePermissionOverwrite{}, classify(err, "get channel")
	}

	guildChannel, ok := channel.(discord.GuildChannel)
	if !ok {
		return discord.RolePermissionOverwrite{}, fmt.Errorf("%w: channel %d is not a guild channel",
			platform.ErrNotFound, channelID)
	}

	overwrite, _ := guildChannel.PermissionOverwrites().Role(roleID)
	return overwrite, nil
}

// classify maps Discord HTTP failures onto the platform error taxonomy.
func classify(err error, action string) error {
	if err == nil {
		return nil
	}

	var restErr rest.Error
	if errors.As(err, &restErr) && restErr.Response != nil {
		switch restErr.Response.StatusCode {
		case http.StatusForbidden:
			return fmt.Errorf("failed to %s: %w: %w", action, platform.ErrPermissionDenied, err)
		case http.StatusNotFound:
			return fmt.Errorf("failed to %s: %w: %w", action, platform.ErrNotFound, err)
		}
	}

	return fmt.Errorf("failed to %s: %w", action, err)
}
