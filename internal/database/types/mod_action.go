package types

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// ActionType identifies the kind of administrative effect.
type ActionType string

const (
	ActionKick    ActionType = "kick"
	ActionTimeout ActionType = "timeout"
	ActionPurge   ActionType = "purge"
)

// ModAction is an immutable record of one administrative effect, manual or automatic.
type ModAction struct {
	ID              int64        `bun:",pk,autoincrement" json:"id"`
	GuildID         snowflake.ID `bun:",notnull"          json:"guildId"`
	Action          ActionType   `bun:",notnull"          json:"action"`
	TargetID        snowflake.ID `bun:",notnull"          json:"targetId"`
	ModeratorID     snowflake.ID `bun:",notnull"          json:"moderatorId"`
	Reason          string       `bun:",notnull"          json:"reason"`
	DurationMinutes *int         `bun:",nullzero"         json:"durationMinutes,omitempty"`
	ExpiresAt       *time.Time   `bun:",nullzero"         json:"expiresAt,omitempty"`
	Timestamp       time.Time    `bun:",notnull"          json:"timestamp"`
}
