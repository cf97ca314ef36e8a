package quiet_test

import (
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/warden/internal/database/types"
	"github.com/robalyx/warden/internal/platform"
	"github.com/robalyx/warden/internal/platform/platformtest"
	"github.com/robalyx/warden/internal/worker/core"
	"github.com/robalyx/warden/internal/worker/quiet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	guildID   snowflake.ID = 1
	generalID snowflake.ID = 10
	rulesID   snowflake.ID = 11
)

func at(hour, minute int) time.Time {
	return time.Date(2025, 3, 14, hour, minute, 0, 0, time.UTC)
}

func TestIsQuiet(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		now        time.Time
		start, end string
		want       bool
	}{
		{"late evening in wrapping window", at(23, 30), "22:00", "08:00", true},
		{"early morning in wrapping window", at(2, 0), "22:00", "08:00", true},
		{"daytime outside wrapping window", at(10, 0), "22:00", "08:00", false},
		{"start is inclusive", at(22, 0), "22:00", "08:00", true},
		{"end is exclusive", at(8, 0), "22:00", "08:00", false},
		{"inside same-day window", at(13, 0), "12:00", "14:00", true},
		{"after same-day window", at(14, 0), "12:00", "14:00", false},
		{"equal bounds are empty", at(9, 0), "09:00", "09:00", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := quiet.IsQuiet(tt.now, tt.start, tt.end)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsQuietInvalid(t *testing.T) {
	t.Parallel()

	_, err := quiet.IsQuiet(at(1, 0), "25:00", "08:00")
	require.Error(t, err)

	_, err = quiet.IsQuiet(at(1, 0), "22:00", "8am")
	require.Error(t, err)
}

func newGuild() (*platformtest.Fake, *types.GuildConfig) {
	fake := platformtest.NewFake()
	fake.AddChannel(guildID, rulesID, "rules")
	fake.AddChannel(guildID, generalID, "general")

	return fake, types.NewGuildConfig(guildID, at(0, 0))
}

func TestReconcileIsIdempotent(t *testing.T) {
	t.Parallel()

	fake, cfg := newGuild()
	worker := quiet.New(fake, fake, time.UTC, zap.NewNop())

	require.NoError(t, worker.Reconcile(t.Context(), cfg, at(23, 0)))
	require.NoError(t, worker.Reconcile(t.Context(), cfg, at(23, 1)))
	require.NoError(t, worker.Reconcile(t.Context(), cfg, at(23, 2)))

	fake.Snapshot(func(f *platformtest.Fake) {
		assert.Equal(t, 1, f.PermissionSets)
		require.Len(t, f.Notices, 1)
		assert.Equal(t, generalID, f.Notices[0].ChannelID)
		assert.Equal(t, quiet.StartNotice, f.Notices[0].Text)
	})

	state, err := fake.GetSendPermission(t.Context(), generalID, guildID)
	require.NoError(t, err)
	assert.Equal(t, platform.PermDeny, state)
}

func TestReconcileEndsQuietHours(t *testing.T) {
	t.Parallel()

	fake, cfg := newGuild()
	fake.SetOverwrite(generalID, guildID, platform.PermDeny)
	worker := quiet.New(fake, fake, time.UTC, zap.NewNop())

	require.NoError(t, worker.Reconcile(t.Context(), cfg, at(8, 0)))
	require.NoError(t, worker.Reconcile(t.Context(), cfg, at(8, 1)))

	assert.Equal(t, []string{quiet.EndNotice}, fake.NoticeTexts())

	state, err := fake.GetSendPermission(t.Context(), generalID, guildID)
	require.NoError(t, err)
	assert.Equal(t, platform.PermUnset, state)
}

func TestReconcileOpenDuringDay(t *testing.T) {
	t.Parallel()

	fake, cfg := newGuild()
	fake.SetOverwrite(generalID, guildID, platform.PermAllow)
	worker := quiet.New(fake, fake, time.UTC, zap.NewNop())

	require.NoError(t, worker.Reconcile(t.Context(), cfg, at(12, 0)))

	fake.Snapshot(func(f *platformtest.Fake) {
		assert.Zero(t, f.PermissionSets)
		assert.Empty(t, f.Notices)
	})
}

func TestReconcileUsesLocation(t *testing.T) {
	t.Parallel()

	fake, cfg := newGuild()
	// 20:00 UTC is 23:00 at UTC+3
	worker := quiet.New(fake, fake, time.FixedZone("UTC+3", 3*3600), zap.NewNop())

	require.NoError(t, worker.Reconcile(t.Context(), cfg, at(20, 0)))
	assert.Equal(t, []string{quiet.StartNotice}, fake.NoticeTexts())
}

func TestReconcileSkips(t *testing.T) {
	t.Parallel()

	t.Run("disabled", func(t *testing.T) {
		t.Parallel()

		fake, cfg := newGuild()
		cfg.QuietHoursEnabled = false
		worker := quiet.New(fake, fake, time.UTC, zap.NewNop())

		require.ErrorIs(t, worker.Reconcile(t.Context(), cfg, at(23, 0)), core.ErrGuildSkipped)
		assert.Empty(t, fake.NoticeTexts())
	})

	t.Run("no channel", func(t *testing.T) {
		t.Parallel()

		fake := platformtest.NewFake()
		worker := quiet.New(fake, fake, time.UTC, zap.NewNop())

		err := worker.Reconcile(t.Context(), types.NewGuildConfig(guildID, at(0, 0)), at(23, 0))
		require.ErrorIs(t, err, core.ErrGuildSkipped)
	})

	t.Run("fallback channel", func(t *testing.T) {
		t.Parallel()

		fake, cfg := newGuild()
		cfg.QuietChannelName = "missing"
		worker := quiet.New(fake, fake, time.UTC, zap.NewNop())

		require.NoError(t, worker.Reconcile(t.Context(), cfg, at(23, 0)))
		fake.Snapshot(func(f *platformtest.Fake) {
			require.Len(t, f.Notices, 1)
			assert.Equal(t, rulesID, f.Notices[0].ChannelID)
		})
	})
}

func TestReconcilePermissionDenied(t *testing.T) {
	t.Parallel()

	fake, cfg := newGuild()
	fake.SetPermErr = platform.ErrPermissionDenied
	worker := quiet.New(fake, fake, time.UTC, zap.NewNop())

	err := worker.Reconcile(t.Context(), cfg, at(23, 0))
	require.ErrorIs(t, err, platform.ErrPermissionDenied)
	assert.Empty(t, fake.NoticeTexts())
}

func TestLoopAcrossGuilds(t *testing.T) {
	t.Parallel()

	fake := platformtest.NewFake()
	var configs guildList
	for id := snowflake.ID(1); id <= 5; id++ {
		fake.AddChannel(id, id*100, "general")
		configs = append(configs, types.NewGuildConfig(id, at(0, 0)))
	}
	// A guild without channels is skipped, the rest still transition
	configs = append(configs, types.NewGuildConfig(6, at(0, 0)))

	loop := core.NewLoop(quiet.New(fake, fake, time.UTC, zap.NewNop()), configs, core.Options{
		Interval: quiet.DefaultInterval,
		Now:      func() time.Time { return at(23, 30) },
	}, zap.NewNop())

	result, err := loop.Tick(t.Context())
	require.NoError(t, err)
	assert.Equal(t, core.TickResult{Guilds: 6, Reconciled: 5, Skipped: 1}, result)
	assert.Len(t, fake.NoticeTexts(), 5)
}
