package types

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// Default values applied to a guild the first time it is referenced.
const (
	DefaultStrikeLimit      = 3
	DefaultTimeoutMinutes   = 60
	DefaultQuietStart       = "22:00"
	DefaultQuietEnd         = "08:00"
	DefaultQuietChannelName = "general"
	DefaultRoleName         = "Member"
	DefaultActiveRoleName   = "Active Member"
	DefaultWelcomeMessage   = "Welcome to the server, {user}!"

	// MaxTimeoutMinutes is the longest timeout the platform accepts (28 days).
	MaxTimeoutMinutes = 40320
)

// DefaultForbiddenWords is the word list a new guild starts with.
var DefaultForbiddenWords = []string{"spam", "toxic", "inappropriate"}

// GuildConfig stores the moderation policy of a single guild.
type GuildConfig struct {
	GuildID            snowflake.ID `bun:",pk"                  json:"guildId"`
	ForbiddenWords     []string     `bun:",type:jsonb,notnull"  json:"forbiddenWords"`
	StrikeLimit        int          `bun:",notnull"             json:"strikeLimit"`
	AutoTimeoutEnabled bool         `bun:",notnull"             json:"autoTimeoutEnabled"`
	TimeoutMinutes     int          `bun:",notnull"             json:"timeoutMinutes"`
	QuietHoursEnabled  bool         `bun:",notnull"             json:"quietHoursEnabled"`
	QuietStart         string       `bun:",notnull"             json:"quietStart"`
	QuietEnd           string       `bun:",notnull"             json:"quietEnd"`
	QuietChannelName   string       `bun:",notnull"             json:"quietChannelName"`
	AutoRoleEnabled    bool         `bun:",notnull"             json:"autoRoleEnabled"`
	DefaultRoleName    string       `bun:",notnull"             json:"defaultRoleName"`
	ActiveRoleName     string       `bun:",notnull"             json:"activeRoleName"`
	WelcomeChannelID   snowflake.ID `bun:",notnull"             json:"welcomeChannelId"`
	LogChannelID       snowflake.ID `bun:",notnull"             json:"logChannelId"`
	WelcomeMessage     string       `bun:",notnull"             json:"welcomeMessage"`
	CreatedAt          time.Time    `bun:",notnull"             json:"createdAt"`
	UpdatedAt          time.Time    `bun:",notnull"             json:"updatedAt"`
}

// NewGuildConfig returns the default policy for a guild.
func NewGuildConfig(guildID snowflake.ID, now time.Time) *GuildConfig {
	words := make([]string, len(DefaultForbiddenWords))
	copy(words, DefaultForbiddenWords)

	return &GuildConfig{
		GuildID:            guildID,
		ForbiddenWords:     words,
		StrikeLimit:        DefaultStrikeLimit,
		AutoTimeoutEnabled: true,
		TimeoutMinutes:     DefaultTimeoutMinutes,
		QuietHoursEnabled:  true,
		QuietStart:         DefaultQuietStart,
		QuietEnd:           DefaultQuietEnd,
		QuietChannelName:   DefaultQuietChannelName,
		AutoRoleEnabled:    true,
		DefaultRoleName:    DefaultRoleName,
		ActiveRoleName:     DefaultActiveRoleName,
		WelcomeMessage:     DefaultWelcomeMessage,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// GuildConfigUpdate is a partial update of a guild policy.
// Nil fields are left unchanged.
type GuildConfigUpdate struct {
	ForbiddenWords     *[]string     `json:"forbiddenWords,omitempty"`
	StrikeLimit        *int          `json:"strikeLimit,omitempty"`
	AutoTimeoutEnabled *bool         `json:"autoTimeoutEnabled,omitempty"`
	TimeoutMinutes     *int          `json:"timeoutMinutes,omitempty"`
	QuietHoursEnabled  *bool         `json:"quietHoursEnabled,omitempty"`
	QuietStart         *string       `json:"quietStart,omitempty"`
	QuietEnd           *string       `json:"quietEnd,omitempty"`
	QuietChannelName   *string       `json:"quietChannelName,omitempty"`
	AutoRoleEnabled    *bool         `json:"autoRoleEnabled,omitempty"`
	DefaultRoleName    *string       `json:"defaultRoleName,omitempty"`
	ActiveRoleName     *string       `json:"activeRoleName,omitempty"`
	WelcomeChannelID   *snowflake.ID `json:"welcomeChannelId,omitempty"`
	LogChannelID       *snowflake.ID `json:"logChannelId,omitempty"`
	WelcomeMessage     *string       `json:"welcomeMessage,omitempty"`
}

// Apply copies every set field of the update onto the config.
func (u *GuildConfigUpdate) Apply(cfg *GuildConfig) {
	if u.ForbiddenWords != nil {
		cfg.ForbiddenWords = *u.ForbiddenWords
	}
	if u.StrikeLimit != nil {
		cfg.StrikeLimit = *u.StrikeLimit
	}
	if u.AutoTimeoutEnabled != nil {
		cfg.AutoTimeoutEnabled = *u.AutoTimeoutEnabled
	}
	if u.TimeoutMinutes != nil {
		cfg.TimeoutMinutes = *u.TimeoutMinutes
	}
	if u.QuietHoursEnabled != nil {
		cfg.QuietHoursEnabled = *u.QuietHoursEnabled
	}
	if u.QuietStart != nil {
		cfg.QuietStart = *u.QuietStart
	}
	if u.QuietEnd != nil {
		cfg.QuietEnd = *u.QuietEnd
	}
	if u.QuietChannelName != nil {
		cfg.QuietChannelName = *u.QuietChannelName
	}
	if u.AutoRoleEnabled != nil {
		cfg.AutoRoleEnabled = *u.AutoRoleEnabled
	}
	if u.DefaultRoleName != nil {
		cfg.DefaultRoleName = *u.DefaultRoleName
	}
	if u.ActiveRoleName != nil {
		cfg.ActiveRoleName = *u.ActiveRoleName
	}
	if u.WelcomeChannelID != nil {
		cfg.WelcomeChannelID = *u.WelcomeChannelID
	}
	if u.LogChannelID != nil {
		cfg.LogChannelID = *u.LogChannelID
	}
	if u.WelcomeMessage != nil {
		cfg.WelcomeMessage = *u.WelcomeMessage
	}
}

// ErrInvalidGuildConfig is returned when a guild policy fails validation.
var ErrInvalidGuildConfig = errors.New("invalid guild config")

// Validate checks the policy fields that the moderation components rely on.
func (c *GuildConfig) Validate() error {
	if c.StrikeLimit < 1 {
		return fmt.Errorf("%w: strike limit must be at least 1", ErrInvalidGuildConfig)
	}

	if c.TimeoutMinutes < 1 || c.TimeoutMinutes > MaxTimeoutMinutes {
		return fmt.Errorf("%w: timeout must be between 1 and %d minutes", ErrInvalidGuildConfig, MaxTimeoutMinutes)
	}

	for name, value := range map[string]string{"quiet start": c.QuietStart, "quiet end": c.QuietEnd} {
		if _, err := time.Parse("15:04", value); err != nil {
			return fmt.Errorf("%w: %s %q is not HH:MM", ErrInvalidGuildConfig, name, value)
		}
	}

	for _, word := range c.ForbiddenWords {
		if strings.TrimSpace(word) == "" {
			return fmt.Errorf("%w: forbidden words cannot be blank", ErrInvalidGuildConfig)
		}
	}

	return nil
}
