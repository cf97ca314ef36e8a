package types

import "time"

// GuildStats summarizes a guild's moderation activity.
type GuildStats struct {
	TotalMembers   int `json:"totalMembers"`
	NewMembers     int `json:"newMembers"`
	TotalStrikes   int `json:"totalStrikes"`
	RecentStrikes  int `json:"recentStrikes"`
	RecentActions  int `json:"recentActions"`
	ActiveTimeouts int `json:"activeTimeouts"`
}

// DailyCount is the number of records falling on one UTC day.
type DailyCount struct {
	Day   time.Time
	Count int
}
