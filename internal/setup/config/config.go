package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var (
	ErrConfigFileNotFound    = errors.New("could not find config file in any config path")
	ErrConfigVersionMissing  = errors.New("config file is missing version field")
	ErrConfigVersionMismatch = errors.New("config file version mismatch")
)

// RepositoryVersion is the repository version tag for config file references.
const RepositoryVersion = "v0.3.0"

// Current version of the config file.
const (
	CurrentCommonVersion = 1
	CurrentBotVersion    = 1
	CurrentWorkerVersion = 1
	CurrentAPIVersion    = 1
)

// Config represents the entire application configuration.
type Config struct {
	Common CommonConfig `koanf:"common"`
	Bot    BotConfig    `koanf:"bot"`
	Worker WorkerConfig `koanf:"worker"`
	API    APIConfig    `koanf:"api"`
}

// CommonConfig contains configuration shared between every service.
type CommonConfig struct {
	// Version of the common config.
	Version    int        `koanf:"version"`
	Debug      Debug      `koanf:"debug"`
	Telemetry  Telemetry  `koanf:"telemetry"`
	PostgreSQL PostgreSQL `koanf:"postgresql"`
	SQLite     SQLite     `koanf:"sqlite"`
	Redis      Redis      `koanf:"redis"`
	Discord    Discord    `koanf:"discord"`
}

// BotConfig contains gateway bot specific configuration.
type BotConfig struct {
	// Version of the bot config.
	Version int `koanf:"version"`
	// Maximum number of inbound events processed concurrently.
	MaxConcurrentEvents int64 `koanf:"max_concurrent_events"`
	// Register slash commands globally on startup.
	RegisterCommands bool `koanf:"register_commands"`
}

// WorkerConfig contains scheduled worker configuration.
type WorkerConfig struct {
	// Version of the worker config.
	Version int `koanf:"version"`
	// Maximum number of guilds reconciled concurrently per tick.
	MaxConcurrentGuilds int `koanf:"max_concurrent_guilds"`
	// Quiet-hours scheduler settings.
	QuietHours QuietHours `koanf:"quiet_hours"`
	// Activity promoter settings.
	Activity Activity `koanf:"activity"`
	// Weekly report settings.
	Report Report `koanf:"report"`
}

// QuietHours configures the quiet-hours scheduler.
type QuietHours struct {
	// Tick interval in seconds.
	Interval int `koanf:"interval"`
	// IANA time zone used to evaluate quiet windows.
	Timezone string `koanf:"timezone"`
}

// Activity configures the activity-based role promoter.
type Activity struct {
	// Tick interval in seconds.
	Interval int `koanf:"interval"`
	// Minimum membership age in days.
	MinAgeDays int `koanf:"min_age_days"`
	// Minimum number of messages sent.
	MinMessages int `koanf:"min_messages"`
	// Members at or above this strike count are never promoted.
	MaxStrikes int `koanf:"max_strikes"`
}

// Report configures the weekly report worker.
type Report struct {
	// Tick interval in seconds.
	Interval int `koanf:"interval"`
	// Number of days covered by each report.
	WindowDays int `koanf:"window_days"`
}

// APIConfig contains REST API configuration.
type APIConfig struct {
	// Version of the api config.
	Version   int       `koanf:"version"`
	Server    Server    `koanf:"server"`
	RateLimit RateLimit `koanf:"rate_limit"`
	IP        IP        `koanf:"ip"`
}

// IP contains client address detection configuration.
type IP struct {
	// Read the client address from forwarding headers sent by trusted proxies.
	EnableHeaderCheck bool `koanf:"enable_header_check"`
	// Proxy addresses or CIDR ranges allowed to set forwarding headers.
	TrustedProxies []string `koanf:"trusted_proxies"`
	// Headers checked in order for the client address.
	CustomHeaders []string `koanf:"custom_headers"`
}

// Server contains HTTP listener configuration.
type Server struct {
	// Host address to bind to.
	Host string `koanf:"host"`
	// Port to listen on.
	Port int `koanf:"port"`
	// Static API keys accepted in the Authorization header for write endpoints.
	APIKeys []string `koanf:"api_keys"`
}

// RateLimit contains rate limiting configuration.
type RateLimit struct {
	// Requests per second per client.
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	// Maximum burst size.
	BurstSize int `koanf:"burst_size"`
	// Violations before a client is blocked.
	StrikeLimit int `koanf:"strike_limit"`
	// Block duration in seconds.
	BlockDuration int `koanf:"block_duration"`
}

// Debug contains debug-related configuration.
type Debug struct {
	// Log level (debug, info, warn, error).
	LogLevel string `koanf:"log_level"`
	// Maximum log sessions to keep.
	MaxLogsToKeep int `koanf:"max_logs_to_keep"`
	// Maximum lines per log file.
	MaxLogLines int `koanf:"max_log_lines"`
}

// Telemetry contains optional log shipping and tracing configuration.
type Telemetry struct {
	// Uptrace DSN. Tracing is disabled when empty.
	UptraceDSN string `koanf:"uptrace_dsn"`
	// Deployment environment reported with traces.
	Environment string `koanf:"environment"`
	Loki        Loki   `koanf:"loki"`
}

// Loki contains Grafana Loki log shipping configuration.
type Loki struct {
	// Enable Loki integration.
	Enabled bool `koanf:"enabled"`
	// Loki server URL (without /loki/api/v1/push suffix).
	URL string `koanf:"url"`
	// Minimum level shipped to Loki.
	Level string `koanf:"level"`
	// Maximum number of log entries per batch.
	BatchMaxSize int `koanf:"batch_max_size"`
	// Maximum time to wait before sending a batch (in milliseconds).
	BatchMaxWaitMS int `koanf:"batch_max_wait_ms"`
	// Labels added to all log streams.
	Labels map[string]string `koanf:"labels"`
	// Basic authentication username (optional).
	Username string `koanf:"username"`
	// Basic authentication password (optional).
	Password string `koanf:"password"`
}

// PostgreSQL contains database connection configuration.
type PostgreSQL struct {
	// Database hostname.
	Host string `koanf:"host"`
	// Database port.
	Port int `koanf:"port"`
	// Database username.
	User string `koanf:"user"`
	// Database password.
	Password string `koanf:"password"`
	// Database name.
	DBName string `koanf:"db_name"`
	// Maximum open connections.
	MaxOpenConns int `koanf:"max_open_conns"`
	// Maximum idle connections.
	MaxIdleConns int `koanf:"max_idle_conns"`
	// Connection lifetime in minutes.
	MaxLifetime int `koanf:"max_lifetime"`
	// Idle timeout in minutes.
	MaxIdleTime int `koanf:"max_idle_time"`
}

// SQLite contains configuration for the embedded single-node store.
type SQLite struct {
	// Database file path. When set, SQLite is used instead of PostgreSQL.
	Path string `koanf:"path"`
}

// Redis contains Redis connection configuration.
type Redis struct {
	// Redis hostname.
	Host string `koanf:"host"`
	// Redis port.
	Port int `koanf:"port"`
	// Redis username.
	Username string `koanf:"username"`
	// Redis password.
	Password string `koanf:"password"`
}

// Discord contains Discord application configuration.
type Discord struct {
	// Bot token for authentication.
	Token string `koanf:"token"`
}

// LoadConfig loads the configuration from the config search paths.
// Returns the config along with the used config directory.
func LoadConfig() (*Config, string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return LoadConfigFrom([]string{
		".warden",
		homeDir + "/.warden/config",
		"/etc/warden/config",
		"/app/config",
		"config",
		".",
	})
}

// LoadConfigFrom loads every config file from the first search path that contains it.
func LoadConfigFrom(configPaths []string) (*Config, string, error) {
	k := koanf.New(".")

	var usedConfigPath string

	configFiles := []string{"common", "bot", "worker", "api"}
	for _, configName := range configFiles {
		configLoaded := false

		for _, path := range configPaths {
			configPath := fmt.Sprintf("%s/%s.toml", path, configName)

			// Each file owns its own namespace
			sub := koanf.New(".")
			if err := sub.Load(file.Provider(configPath), toml.Parser()); err == nil {
				if err := k.MergeAt(sub, configName); err != nil {
					return nil, "", fmt.Errorf("failed to merge %s.toml: %w", configName, err)
				}

				configLoaded = true

				if usedConfigPath == "" {
					usedConfigPath = path
				}

				break
			}
		}

		if !configLoaded {
			return nil, "", fmt.Errorf("%w: %s.toml", ErrConfigFileNotFound, configName)
		}
	}

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, "", fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Check versions for each config file
	versions := []struct {
		name     string
		current  int
		expected int
	}{
		{"common", config.Common.Version, CurrentCommonVersion},
		{"bot", config.Bot.Version, CurrentBotVersion},
		{"worker", config.Worker.Version, CurrentWorkerVersion},
		{"api", config.API.Version, CurrentAPIVersion},
	}
	for _, v := range versions {
		if err := checkConfigVersion(v.name, v.current, v.expected); err != nil {
			return nil, "", err
		}
	}

	config.applyDefaults()

	return &config, usedConfigPath, nil
}

// applyDefaults fills zero values that would otherwise disable a component.
func (c *Config) applyDefaults() {
	if c.Common.Debug.LogLevel == "" {
		c.Common.Debug.LogLevel = "info"
	}
	if c.Common.Debug.MaxLogsToKeep <= 0 {
		c.Common.Debug.MaxLogsToKeep = 10
	}
	if c.Common.Debug.MaxLogLines <= 0 {
		c.Common.Debug.MaxLogLines = 10000
	}
	if c.Bot.MaxConcurrentEvents <= 0 {
		c.Bot.MaxConcurrentEvents = 64
	}
	if c.Worker.MaxConcurrentGuilds <= 0 {
		c.Worker.MaxConcurrentGuilds = 8
	}
	if c.Worker.QuietHours.Interval <= 0 {
		c.Worker.QuietHours.Interval = 60
	}
	if c.Worker.QuietHours.Timezone == "" {
		c.Worker.QuietHours.Timezone = "UTC"
	}
	if c.Worker.Activity.Interval <= 0 {
		c.Worker.Activity.Interval = 3600
	}
	if c.Worker.Activity.MinAgeDays <= 0 {
		c.Worker.Activity.MinAgeDays = 7
	}
	if c.Worker.Activity.MinMessages <= 0 {
		c.Worker.Activity.MinMessages = 10
	}
	if c.Worker.Activity.MaxStrikes <= 0 {
		c.Worker.Activity.MaxStrikes = 3
	}
	if c.Worker.Report.Interval <= 0 {
		c.Worker.Report.Interval = 7 * 24 * 3600
	}
	if c.Worker.Report.WindowDays <= 0 {
		c.Worker.Report.WindowDays = 7
	}
	if c.API.Server.Port == 0 {
		c.API.Server.Port = 8080
	}
	if c.API.RateLimit.RequestsPerSecond <= 0 {
		c.API.RateLimit.RequestsPerSecond = 5
	}
	if c.API.RateLimit.BurstSize <= 0 {
		c.API.RateLimit.BurstSize = 10
	}
	if c.API.RateLimit.StrikeLimit <= 0 {
		c.API.RateLimit.StrikeLimit = 20
	}
	if c.API.RateLimit.BlockDuration <= 0 {
		c.API.RateLimit.BlockDuration = 300
	}
	if len(c.API.IP.CustomHeaders) == 0 {
		c.API.IP.CustomHeaders = []string{"X-Forwarded-For", "X-Real-IP"}
	}
}

// checkConfigVersion checks if the config file version is correct.
func checkConfigVersion(name string, current, expected int) error {
	if current == 0 {
		return fmt.Errorf("%w: %s.toml", ErrConfigVersionMissing, name)
	}

	if current != expected {
		return fmt.Errorf(
			"%w: %s.toml (got: %d, expected: %d)\n"+
				"Please update your config file from: https://github.com/robalyx/warden/tree/%s/config/%s.toml",
			ErrConfigVersionMismatch,
			name,
			current,
			expected,
			RepositoryVersion,
			name,
		)
	}

	return nil
}
