package core_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/disgoorg/snowflake/v2"
	"github.com/redis/rueidis"
	"github.com/robalyx/warden/internal/database/types"
	"github.com/robalyx/warden/internal/worker/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticGuilds []*types.GuildConfig

func (s staticGuilds) List(context.Context) ([]*types.GuildConfig, error) {
	return s, nil
}

func guilds(ids ...uint64) staticGuilds {
	out := make(staticGuilds, 0, len(ids))
	for _, id := range ids {
		out = append(out, types.NewGuildConfig(snowflake.ID(id), time.Now()))
	}

	return out
}

type funcTask struct {
	name string
	fn   func(ctx context.Context, cfg *types.GuildConfig, now time.Time) error
}

func (t funcTask) Name() string { return t.name }

func (t funcTask) Reconcile(ctx context.Context, cfg *types.GuildConfig, now time.Time) error {
	return t.fn(ctx, cfg, now)
}

func newRedis(t *testing.T) rueidis.Client {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{mr.Addr()},
		DisableCache: true,
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return client
}

func TestTickReconcilesEveryGuild(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	var mu sync.Mutex
	seen := make(map[snowflake.ID]time.Time)

	task := funcTask{name: "test", fn: func(_ context.Context, cfg *types.GuildConfig, now time.Time) error {
		mu.Lock()
		defer mu.Unlock()
		seen[cfg.GuildID] = now
		return nil
	}}

	loop := core.NewLoop(task, guilds(1, 2, 3), core.Options{
		Interval: time.Minute,
		Now:      func() time.Time { return fixed },
	}, zap.NewNop())

	result, err := loop.Tick(t.Context())
	require.NoError(t, err)
	assert.Equal(t, core.TickResult{Guilds: 3, Reconciled: 3}, result)

	require.Len(t, seen, 3)
	for _, at := range seen {
		assert.Equal(t, fixed, at)
	}
}

func TestTickIsolatesGuildFailures(t *testing.T) {
	t.Parallel()

	task := funcTask{name: "test", fn: func(_ context.Context, cfg *types.GuildConfig, _ time.Time) error {
		switch cfg.GuildID {
		case 1:
			return errors.New("boom")
		case 2:
			panic("unexpected")
		case 3:
			return core.ErrGuildSkipped
		default:
			return nil
		}
	}}

	loop := core.NewLoop(task, guilds(1, 2, 3, 4, 5), core.Options{
		Interval:            time.Minute,
		MaxConcurrentGuilds: 2,
	}, zap.NewNop())

	result, err := loop.Tick(t.Context())
	require.NoError(t, err)
	assert.Equal(t, core.TickResult{Guilds: 5, Reconciled: 2, Failed: 2, Skipped: 1}, result)
}

func TestTickSkipsWhileRunning(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})

	var once sync.Once
	task := funcTask{name: "slow", fn: func(context.Context, *types.GuildConfig, time.Time) error {
		once.Do(func() { close(started) })
		<-release
		return nil
	}}

	loop := core.NewLoop(task, guilds(1), core.Options{Interval: time.Minute}, zap.NewNop())

	done := make(chan core.TickResult)
	go func() {
		result, _ := loop.Tick(t.Context())
		done <- result
	}()

	<-started

	_, err := loop.Tick(t.Context())
	require.ErrorIs(t, err, core.ErrTickInProgress)

	close(release)
	assert.Equal(t, 1, (<-done).Reconciled)

	// The guard is released once the first tick returns
	_, err = loop.Tick(t.Context())
	require.NoError(t, err)
}

func TestTickHonoursGuildLocks(t *testing.T) {
	t.Parallel()

	client := newRedis(t)
	ours := core.NewLocker(client, "worker-a", time.Minute)
	theirs := core.NewLocker(client, "worker-b", time.Minute)

	ok, err := theirs.Acquire(t.Context(), "tick:test:2")
	require.NoError(t, err)
	require.True(t, ok)

	var calls atomic.Int64
	task := funcTask{name: "test", fn: func(context.Context, *types.GuildConfig, time.Time) error {
		calls.Add(1)
		return nil
	}}

	loop := core.NewLoop(task, guilds(1, 2), core.Options{
		Interval: time.Minute,
		Locker:   ours,
	}, zap.NewNop())

	result, err := loop.Tick(t.Context())
	require.NoError(t, err)
	assert.Equal(t, core.TickResult{Guilds: 2, Reconciled: 1, Skipped: 1}, result)
	assert.Equal(t, int64(1), calls.Load())

	// Our claim on guild 1 was released after the tick
	ok, err = theirs.Acquire(t.Context(), "tick:test:1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLockerRelease(t *testing.T) {
	t.Parallel()

	client := newRedis(t)
	a := core.NewLocker(client, "a", time.Minute)
	b := core.NewLocker(client, "b", time.Minute)

	ok, err := a.Acquire(t.Context(), "key")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = b.Acquire(t.Context(), "key")
	require.NoError(t, err)
	assert.False(t, ok)

	// Releasing someone else's claim is a no-op
	require.NoError(t, b.Release(t.Context(), "key"))
	ok, err = b.Acquire(t.Context(), "key")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, a.Release(t.Context(), "key"))
	ok, err = b.Acquire(t.Context(), "key")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	task := funcTask{name: "fast", fn: func(context.Context, *types.GuildConfig, time.Time) error {
		calls.Add(1)
		return nil
	}}

	loop := core.NewLoop(task, guilds(1), core.Options{Interval: 5 * time.Millisecond}, zap.NewNop())

	ctx, cancel := context.WithCancel(t.Context())
	errCh := make(chan error, 1)
	go func() { errCh <- loop.Run(ctx) }()

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestRunRejectsZeroInterval(t *testing.T) {
	t.Parallel()

	task := funcTask{name: "noop", fn: func(context.Context, *types.GuildConfig, time.Time) error { return nil }}
	loop := core.NewLoop(task, guilds(), core.Options{}, zap.NewNop())

	require.Error(t, loop.Run(t.Context()))
}

func TestMonitorStatuses(t *testing.T) {
	t.Parallel()

	client := newRedis(t)
	monitor := core.NewMonitor(client, zap.NewNop())

	require.NoError(t, monitor.ReportStatus(t.Context(), core.Status{
		WorkerID: "one",
		Task:     "quiet_hours",
		Phase:    core.PhaseIdle,
		LastTick: &core.TickSummary{TickResult: core.TickResult{Guilds: 1, Reconciled: 1}},
	}))
	require.NoError(t, monitor.ReportStatus(t.Context(), core.Status{
		WorkerID: "two",
		Task:     "activity_roles",
	}))

	statuses, err := monitor.GetAllStatuses(t.Context())
	require.NoError(t, err)
	require.Len(t, statuses, 2)

	for _, status := range statuses {
		assert.False(t, status.IsStale(time.Now()))
		assert.True(t, status.IsStale(time.Now().Add(2*core.StaleThreshold)))
		assert.True(t, status.IsHealthy())
	}
}

type failingGuilds struct{}

func (failingGuilds) List(context.Context) ([]*types.GuildConfig, error) {
	return nil, errors.New("store unavailable")
}

func TestReporterPublishesTickResults(t *testing.T) {
	t.Parallel()

	client := newRedis(t)
	reporter := core.NewStatusReporter(client, "test", zap.NewNop())

	task := funcTask{name: "test", fn: func(_ context.Context, cfg *types.GuildConfig, _ time.Time) error {
		if cfg.GuildID == 2 {
			return errors.New("permission denied")
		}
		return nil
	}}

	loop := core.NewLoop(task, guilds(1, 2, 3), core.Options{
		Interval: time.Minute,
		Reporter: reporter,
	}, zap.NewNop())

	_, err := loop.Tick(t.Context())
	require.NoError(t, err)

	statuses, err := core.NewMonitor(client, zap.NewNop()).GetAllStatuses(t.Context())
	require.NoError(t, err)
	require.Len(t, statuses, 1)

	status := statuses[0]
	assert.Equal(t, "test", status.Task)
	assert.Equal(t, core.PhaseIdle, status.Phase)
	assert.Equal(t, 3, status.GuildsDone)
	assert.Equal(t, 3, status.GuildsTotal)
	require.NotNil(t, status.LastTick)
	assert.Equal(t, core.TickResult{Guilds: 3, Reconciled: 2, Failed: 1}, status.LastTick.TickResult)
	assert.False(t, status.IsHealthy())
}

func TestReporterRecordsListFailure(t *testing.T) {
	t.Parallel()

	client := newRedis(t)
	reporter := core.NewStatusReporter(client, "test", zap.NewNop())

	task := funcTask{name: "test", fn: func(context.Context, *types.GuildConfig, time.Time) error { return nil }}
	loop := core.NewLoop(task, failingGuilds{}, core.Options{
		Interval: time.Minute,
		Reporter: reporter,
	}, zap.NewNop())

	_, err := loop.Tick(t.Context())
	require.Error(t, err)

	status := reporter.Snapshot()
	assert.Contains(t, status.ListError, "store unavailable")
	assert.False(t, status.IsHealthy())
	assert.Nil(t, status.LastTick)
}
