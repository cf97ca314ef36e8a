// Package platform defines the chat-platform capabilities the moderation core depends on.
package platform

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

var (
	// ErrPermissionDenied means the bot lacks the privilege for an action.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrNotFound means a referenced guild, channel, role, member or message no longer exists.
	ErrNotFound = errors.New("not found")
)

// PermState is the state of a permission overwrite bit.
type PermState int

const (
	// PermUnset means the overwrite neither allows nor denies the permission.
	PermUnset PermState = iota
	// PermAllow means the overwrite explicitly allows the permission.
	PermAllow
	// PermDeny means the overwrite explicitly denies the permission.
	PermDeny
)

// String returns the name of the state.
func (s PermState) String() string {
	switch s {
	case PermAllow:
		return "allow"
	case PermDeny:
		return "deny"
	default:
		return "unset"
	}
}

// RoleAttrs describes a role created by the bot.
type RoleAttrs struct {
	Color       int
	Mentionable bool
}

// Member is a guild member as seen by the platform.
type Member struct {
	UserID   snowflake.ID
	Username string
	RoleIDs  []snowflake.ID
	JoinedAt time.Time
}

// HasRole reports whether the member holds the role.
func (m *Member) HasRole(roleID snowflake.ID) bool {
	for _, id := range m.RoleIDs {
		if id == roleID {
			return true
		}
	}
	return false
}

// Notifier sends plain-text notices to channels.
type Notifier interface {
	// SendNotice posts a plain-text message to a channel.
	SendNotice(ctx context.Context, channelID snowflake.ID, text string) error
	// SendReport posts a message with an attached PNG image.
	SendReport(ctx context.Context, channelID snowflake.ID, text string, png io.Reader) error
}

// Directory exposes membership, role, channel and message operations of a guild.
// Implementations report privilege failures as ErrPermissionDenied and missing
// entities as ErrNotFound.
type Directory interface {
	DeleteMessage(ctx context.Context, channelID, messageID snowflake.ID) error
	TimeoutMember(ctx context.Context, guildID, userID snowflake.ID, minutes int, reason string) error
	KickMember(ctx context.Context, guildID, userID snowflake.ID, reason string) error
	// PurgeMessages deletes up to amount recent messages and returns how many were deleted.
	PurgeMessages(ctx context.Context, channelID snowflake.ID, amount int) (int, error)

	GetMember(ctx context.Context, guildID, userID snowflake.ID) (*Member, error)
	GrantRole(ctx context.Context, guildID, userID, roleID snowflake.ID) error
	// FindRole returns the ID of the role with the given name, or ErrNotFound.
	FindRole(ctx context.Context, guildID snowflake.ID, name string) (snowflake.ID, error)
	// EnsureRole returns the ID of the named role, creating it if it does not exist.
	EnsureRole(ctx context.Context, guildID snowflake.ID, name string, attrs RoleAttrs) (snowflake.ID, error)

	// ResolveChannel returns the text channel with the preferred name, falling back to
	// the first text channel of the guild. Returns ErrNotFound when there is none.
	ResolveChannel(ctx context.Context, guildID snowflake.ID, preferredName string) (snowflake.ID, error)
	GetSendPermission(ctx context.Context, channelID, roleID snowflake.ID) (PermState, error)
	SetSendPermission(ctx context.Context, channelID, roleID snowflake.ID, state PermState) error
}
