package core

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/rueidis"
	"go.uber.org/zap"
)

// scanBatchSize is the COUNT hint used when walking heartbeat keys.
const scanBatchSize = 100

// Phase is the part of a tick a worker is in.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseListing     Phase = "listing"
	PhaseReconciling Phase = "reconciling"
)

// TickSummary is the outcome of the most recent completed tick.
type TickSummary struct {
	TickResult
	StartedAt time.Time `json:"startedAt"`
	ElapsedMS int64     `json:"elapsedMs"`
}

// Status is the heartbeat a worker loop publishes for the health endpoint.
type Status struct {
	WorkerID    string       `json:"workerId"`
	Task        string       `json:"task"`
	LastSeen    time.Time    `json:"lastSeen"`
	Phase       Phase        `json:"phase"`
	GuildsDone  int          `json:"guildsDone"`
	GuildsTotal int          `json:"guildsTotal"`
	LastTick    *TickSummary `json:"lastTick,omitempty"`
	// ListError is set when the last tick could not list the guilds.
	ListError string `json:"listError,omitempty"`
}

// IsHealthy reports whether the last tick listed its guilds and reconciled every claimed one.
func (s Status) IsHealthy() bool {
	if s.ListError != "" {
		return false
	}
	return s.LastTick == nil || s.LastTick.Failed == 0
}

// IsStale reports whether the worker has missed its recent heartbeats.
func (s Status) IsStale(now time.Time) bool {
	return now.Sub(s.LastSeen) > StaleThreshold
}

func statusKey(task, workerID string) string {
	return fmt.Sprintf("%s%s:%s", statusKeyPrefix, task, workerID)
}

// Monitor stores and reads worker heartbeats in Redis.
type Monitor struct {
	client rueidis.Client
	logger *zap.Logger
}

// NewMonitor creates a new worker status monitor.
func NewMonitor(client rueidis.Client, logger *zap.Logger) *Monitor {
	return &Monitor{
		client: client,
		logger: logger.Named("worker_monitor"),
	}
}

// ReportStatus stamps the heartbeat and stores it with a TTL, so dead workers disappear.
func (m *Monitor) ReportStatus(ctx context.Context, status Status) error {
	status.LastSeen = time.Now()

	data, err := sonic.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	key := statusKey(status.Task, status.WorkerID)
	err = m.client.Do(ctx, m.client.B().Set().Key(key).Value(string(data)).Ex(HeartbeatTTL).Build()).Error()
	if err != nil {
		return fmt.Errorf("failed to store status: %w", err)
	}

	return nil
}

// GetAllStatuses retrieves the heartbeat of every live worker loop.
func (m *Monitor) GetAllStatuses(ctx context.Context) ([]Status, error) {
	var statuses []Status

	var cursor uint64
	for {
		cmd := m.client.B().Scan().Cursor(cursor).Match(statusKeyPrefix + "*").Count(scanBatchSize).Build()

		entry, err := m.client.Do(ctx, cmd).AsScanEntry()
		if err != nil {
			return nil, fmt.Errorf("failed to scan worker keys: %w", err)
		}

		for _, key := range entry.Elements {
			if status, ok := m.getStatus(ctx, key); ok {
				statuses = append(statuses, status)
			}
		}

		cursor = entry.Cursor
		if cursor == 0 {
			break
		}
	}

	return statuses, nil
}

func (m *Monitor) getStatus(ctx context.Context, key string) (Status, bool) {
	var status Status

	data, err := m.client.Do(ctx, m.client.B().Get().Key(key).Build()).AsBytes()
	if err != nil {
		// Expired between SCAN and GET
		if !rueidis.IsRedisNil(err) {
			m.logger.Error("Failed to get worker status", zap.String("key", key), zap.Error(err))
		}
		return status, false
	}

	if err := sonic.Unmarshal(data, &status); err != nil {
		m.logger.Error("Failed to unmarshal worker status", zap.String("key", key), zap.Error(err))
		return status, false
	}

	return status, true
}
