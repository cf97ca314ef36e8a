package core

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/rueidis"
	"go.uber.org/zap"
)

// StatusReporter tracks a loop's tick progress and publishes it as a heartbeat.
// The heartbeat is written on every HeartbeatInterval and whenever a tick ends.
type StatusReporter struct {
	monitor *Monitor
	status  Status
	mu      sync.Mutex
	logger  *zap.Logger
}

// NewStatusReporter creates a reporter for one task's loop.
func NewStatusReporter(client rueidis.Client, task string, logger *zap.Logger) *StatusReporter {
	return &StatusReporter{
		monitor: NewMonitor(client, logger),
		status: Status{
			WorkerID: uuid.New().String(),
			Task:     task,
			Phase:    PhaseIdle,
		},
		logger: logger.Named("status_reporter"),
	}
}

// Run publishes heartbeats until ctx is cancelled.
func (r *StatusReporter) Run(ctx context.Context) {
	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()

	r.publish(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.publish(ctx)
		}
	}
}

// TickStarted marks the start of a tick.
func (r *StatusReporter) TickStarted() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.status.Phase = PhaseListing
	r.status.GuildsDone = 0
	r.status.GuildsTotal = 0
}

// GuildsListed records how many guilds the tick will reconcile.
func (r *StatusReporter) GuildsListed(total int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.status.Phase = PhaseReconciling
	r.status.GuildsTotal = total
	r.status.ListError = ""
}

// GuildDone counts one finished guild.
func (r *StatusReporter) GuildDone() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.status.GuildsDone++
}

// ListFailed records a tick that could not list its guilds and publishes it.
func (r *StatusReporter) ListFailed(ctx context.Context, err error) {
	r.mu.Lock()
	r.status.Phase = PhaseIdle
	r.status.ListError = err.Error()
	r.mu.Unlock()

	r.publish(ctx)
}

// TickFinished stores the tick's outcome and publishes it.
func (r *StatusReporter) TickFinished(ctx context.Context, result TickResult, startedAt time.Time, elapsed time.Duration) {
	r.mu.Lock()
	r.status.Phase = PhaseIdle
	r.status.LastTick = &TickSummary{
		TickResult: result,
		StartedAt:  startedAt.UTC(),
		ElapsedMS:  elapsed.Milliseconds(),
	}
	r.mu.Unlock()

	r.publish(ctx)
}

// Snapshot returns a copy of the current status.
func (r *StatusReporter) Snapshot() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	status := r.status
	if status.LastTick != nil {
		tick := *status.LastTick
		status.LastTick = &tick
	}

	return status
}

func (r *StatusReporter) publish(ctx context.Context) {
	if err := r.monitor.ReportStatus(ctx, r.Snapshot()); err != nil {
		r.logger.Error("Failed to report status", zap.Error(err))
	}
}
