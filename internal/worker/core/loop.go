package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robalyx/warden/internal/database/types"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// ErrTickInProgress is returned when a tick is requested while the previous one is still running.
var ErrTickInProgress = errors.New("tick already in progress")

// ErrGuildSkipped is returned by a Task when a guild has nothing to reconcile.
var ErrGuildSkipped = errors.New("guild skipped")

// GuildSource lists the guild configurations a task reconciles.
type GuildSource interface {
	List(ctx context.Context) ([]*types.GuildConfig, error)
}

// Task is one recurring unit of per-guild work.
type Task interface {
	// Name identifies the task in logs, locks and status reports.
	Name() string
	// Reconcile brings one guild in line with its configuration at the given instant.
	Reconcile(ctx context.Context, cfg *types.GuildConfig, now time.Time) error
}

// Options configures a Loop.
type Options struct {
	// Interval between ticks.
	Interval time.Duration
	// MaxConcurrentGuilds bounds the guilds reconciled in parallel within a tick.
	MaxConcurrentGuilds int
	// Locker, when set, claims each guild across worker processes.
	Locker *Locker
	// Reporter, when set, publishes tick progress and results as heartbeats.
	Reporter *StatusReporter
	// Now overrides the clock.
	Now func() time.Time
	// SkipInitialTick waits a full interval before the first tick.
	SkipInitialTick bool
}

// TickResult summarizes one pass over every known guild.
type TickResult struct {
	Guilds     int `json:"guilds"`
	Reconciled int `json:"reconciled"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
}

// Loop runs a Task against every guild on a fixed interval.
// A tick that fires while the previous one is still running is dropped, not queued.
type Loop struct {
	task     Task
	guilds   GuildSource
	opts     Options
	running  atomic.Bool
	inflight sync.WaitGroup
	logger   *zap.Logger
}

// NewLoop creates a Loop for the task.
func NewLoop(task Task, guilds GuildSource, opts Options, logger *zap.Logger) *Loop {
	if opts.MaxConcurrentGuilds <= 0 {
		opts.MaxConcurrentGuilds = DefaultMaxConcurrentGuilds
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Loop{
		task:   task,
		guilds: guilds,
		opts:   opts,
		logger: logger.Named("loop").With(zap.String("task", task.Name())),
	}
}

// Run ticks immediately, unless SkipInitialTick is set, and then on every interval until ctx is cancelled.
// On cancellation it waits for the in-flight tick so that no guild is left half-reconciled.
func (l *Loop) Run(ctx context.Context) error {
	if l.opts.Interval <= 0 {
		return fmt.Errorf("invalid interval %s for task %s", l.opts.Interval, l.task.Name())
	}

	if l.opts.Reporter != nil {
		reporterCtx, stopReporter := context.WithCancel(ctx)
		defer stopReporter()

		go l.opts.Reporter.Run(reporterCtx)
	}

	ticker := time.NewTicker(l.opts.Interval)
	defer ticker.Stop()

	l.logger.Info("Loop started", zap.Duration("interval", l.opts.Interval))
	if !l.opts.SkipInitialTick {
		l.fire(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			l.inflight.Wait()
			l.logger.Info("Loop stopped")

			return nil
		case <-ticker.C:
			l.fire(ctx)
		}
	}
}

// fire starts a tick in the background unless one is already running.
func (l *Loop) fire(ctx context.Context) {
	if !l.running.CompareAndSwap(false, true) {
		l.logger.Warn("Previous tick still running, skipping")
		return
	}

	l.inflight.Add(1)

	go func() {
		defer l.inflight.Done()
		defer l.running.Store(false)

		if _, err := l.tick(context.WithoutCancel(ctx)); err != nil {
			l.logger.Error("Tick failed", zap.Error(err))
		}
	}()
}

// Tick runs a single pass synchronously.
func (l *Loop) Tick(ctx context.Context) (TickResult, error) {
	if !l.running.CompareAndSwap(false, true) {
		return TickResult{}, ErrTickInProgress
	}
	defer l.running.Store(false)

	return l.tick(ctx)
}

func (l *Loop) tick(ctx context.Context) (TickResult, error) {
	start := time.Now()
	now := l.opts.Now()
	reporter := l.opts.Reporter

	if reporter != nil {
		reporter.TickStarted()
	}

	configs, err := l.guilds.List(ctx)
	if err != nil {
		err = fmt.Errorf("failed to list guilds: %w", err)
		if reporter != nil {
			reporter.ListFailed(ctx, err)
		}
		return TickResult{}, err
	}

	if reporter != nil {
		reporter.GuildsListed(len(configs))
	}

	var (
		reconciled atomic.Int64
		failed     atomic.Int64
		skipped    atomic.Int64
	)

	p := pool.New().WithMaxGoroutines(l.opts.MaxConcurrentGuilds)
	for _, cfg := range configs {
		p.Go(func() {
			switch l.reconcileGuild(ctx, cfg, now) {
			case guildReconciled:
				reconciled.Add(1)
			case guildSkipped:
				skipped.Add(1)
			case guildFailed:
				failed.Add(1)
			}

			if reporter != nil {
				reporter.GuildDone()
			}
		})
	}
	p.Wait()

	result := TickResult{
		Guilds:     len(configs),
		Reconciled: int(reconciled.Load()),
		Failed:     int(failed.Load()),
		Skipped:    int(skipped.Load()),
	}

	elapsed := time.Since(start)
	if reporter != nil {
		reporter.TickFinished(ctx, result, start, elapsed)
	}

	l.logger.Info("Tick completed",
		zap.Int("guilds", result.Guilds),
		zap.Int("reconciled", result.Reconciled),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped),
		zap.Duration("elapsed", elapsed))

	return result, nil
}

type guildOutcome int

const (
	guildReconciled guildOutcome = iota
	guildSkipped
	guildFailed
)

// reconcileGuild runs the task for one guild. Errors and panics stay inside the guild.
func (l *Loop) reconcileGuild(ctx context.Context, cfg *types.GuildConfig, now time.Time) (outcome guildOutcome) {
	logger := l.logger.With(zap.Uint64("guildID", uint64(cfg.GuildID)))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Guild reconcile panicked", zap.Any("panic", r))
			outcome = guildFailed
		}
	}()

	if l.opts.Locker != nil {
		key := tickLockKey(l.task.Name(), uint64(cfg.GuildID))

		ok, err := l.opts.Locker.Acquire(ctx, key)
		if err != nil {
			logger.Error("Failed to claim guild", zap.Error(err))
			return guildFailed
		}
		if !ok {
			logger.Debug("Guild claimed by another worker")
			return guildSkipped
		}

		defer func() {
			if err := l.opts.Locker.Release(ctx, key); err != nil {
				logger.Warn("Failed to release guild claim", zap.Error(err))
			}
		}()
	}

	if err := l.task.Reconcile(ctx, cfg, now); err != nil {
		if errors.Is(err, ErrGuildSkipped) {
			logger.Debug("Guild skipped", zap.Error(err))
			return guildSkipped
		}

		logger.Error("Guild reconcile failed", zap.Error(err))
		return guildFailed
	}

	return guildReconciled
}
