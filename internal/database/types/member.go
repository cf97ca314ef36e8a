package types

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// Member tracks a user's activity and standing within one guild.
type Member struct {
	GuildID       snowflake.ID `bun:",pk"      json:"guildId"`
	UserID        snowflake.ID `bun:",pk"      json:"userId"`
	Username      string       `bun:",notnull" json:"username"`
	JoinDate      time.Time    `bun:",notnull" json:"joinDate"`
	StrikeCount   int          `bun:",notnull" json:"strikeCount"`
	TotalMessages int          `bun:",notnull" json:"totalMessages"`
	LastActive    time.Time    `bun:",notnull" json:"lastActive"`
}

// PromotionCriteria selects members eligible for the activity role.
type PromotionCriteria struct {
	JoinedBefore time.Time
	MinMessages  int
	MaxStrikes   int
}

// Eligible reports whether the member satisfies the criteria.
func (c PromotionCriteria) Eligible(m *Member) bool {
	return !m.JoinDate.After(c.JoinedBefore) &&
		m.TotalMessages >= c.MinMessages &&
		m.StrikeCount < c.MaxStrikes
}
