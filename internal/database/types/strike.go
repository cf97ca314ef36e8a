package types

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// ReasonForbiddenWord is recorded for strikes issued by the word filter.
const ReasonForbiddenWord = "forbidden word"

// Strike is an immutable record of one policy violation.
type Strike struct {
	ID          int64        `bun:",pk,autoincrement" json:"id"`
	GuildID     snowflake.ID `bun:",notnull"          json:"guildId"`
	UserID      snowflake.ID `bun:",notnull"          json:"userId"`
	Reason      string       `bun:",notnull"          json:"reason"`
	ModeratorID snowflake.ID `bun:",notnull"          json:"moderatorId"`
	Timestamp   time.Time    `bun:",notnull"          json:"timestamp"`
}

// StrikeResult is the outcome of recording a strike against a member.
type StrikeResult struct {
	Strike *Strike
	// Count is the member's strike count after the increment.
	Count int
	// Timeout is set when this strike claimed the automatic timeout.
	Timeout *ModAction
}
