package types

import (
	"time"

	dbTypes "github.com/robalyx/warden/internal/database/types"
	"github.com/robalyx/warden/internal/worker/core"
)

// Pagination defaults for list endpoints.
const (
	DefaultLimit = 50
	MaxLimit     = 100
)

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
}

// GuildsResponse lists every guild with a stored policy.
type GuildsResponse struct {
	Guilds []*dbTypes.GuildConfig `json:"guilds"`
}

// StatsResponse summarizes a guild over the last WindowDays days.
type StatsResponse struct {
	GuildID    string              `json:"guildId"`
	WindowDays int                 `json:"windowDays"`
	Stats      *dbTypes.GuildStats `json:"stats"`
	Daily      []DailyActivity     `json:"daily"`
	Timestamp  time.Time           `json:"timestamp"`
}

// DailyActivity is one day of strike and action counts.
type DailyActivity struct {
	Day     string `json:"day"`
	Strikes int    `json:"strikes"`
	Actions int    `json:"actions"`
}

// Page describes the window a list response covers.
type Page struct {
	Skip  int `json:"skip"`
	Limit int `json:"limit"`
}

// MembersResponse is a page of member records.
type MembersResponse struct {
	Page
	Members []*dbTypes.Member `json:"members"`
}

// StrikesResponse is a page of strikes, newest first.
type StrikesResponse struct {
	Page
	Strikes []*dbTypes.Strike `json:"strikes"`
}

// ActionsResponse is a page of moderation actions, newest first.
type ActionsResponse struct {
	Page
	Actions []*dbTypes.ModAction `json:"actions"`
}

// HealthStatus is the overall state reported by the health endpoint.
type HealthStatus string

const (
	HealthOK       HealthStatus = "ok"
	HealthDegraded HealthStatus = "degraded"
)

// WorkerHealth is the last heartbeat of a scheduled worker.
type WorkerHealth struct {
	core.Status
	Healthy bool `json:"healthy"`
	Stale   bool `json:"stale"`
}

// HealthResponse reports database reachability and worker heartbeats.
type HealthResponse struct {
	Status   HealthStatus   `json:"status"`
	Database string         `json:"database"`
	Workers  []WorkerHealth `json:"workers"`
}
