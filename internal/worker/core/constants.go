package core

import "time"

const (
	// DefaultMaxConcurrentGuilds is used when no concurrency bound is configured.
	DefaultMaxConcurrentGuilds = 8

	// DefaultLockTTL bounds how long a crashed worker can hold a guild.
	DefaultLockTTL = 5 * time.Minute

	// HeartbeatInterval is how often workers should report their status.
	HeartbeatInterval = 10 * time.Second

	// HeartbeatTTL is how long a worker's status remains valid.
	HeartbeatTTL = 10 * time.Minute

	// StaleThreshold is how long before a worker is considered offline.
	StaleThreshold = 1 * time.Minute

	statusKeyPrefix = "worker:"
)
