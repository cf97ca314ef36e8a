package database_test

import (
	"context"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/warden/internal/database/service"
	"github.com/robalyx/warden/internal/database/types"
	"github.com/sourcegraph/conc/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strikeRequest(at time.Time) *service.StrikeRequest {
	return &service.StrikeRequest{
		GuildID:            testGuild,
		UserID:             testUser,
		Username:           "alice",
		ModeratorID:        testBot,
		Reason:             types.ReasonForbiddenWord,
		At:                 at,
		StrikeLimit:        3,
		AutoTimeoutEnabled: true,
		TimeoutMinutes:     60,
	}
}

func TestRecordStrikeLadder(t *testing.T) {
	t.Parallel()

	client := newTestClient(t)
	ctx := t.Context()
	ledger := client.Service().Ledger()
	now := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)

	var counts []int
	for i := range 4 {
		result, err := ledger.RecordStrike(ctx, strikeRequest(now.Add(time.Duration(i)*time.Second)))
		require.NoError(t, err)

		counts = append(counts, result.Count)

		switch result.Count {
		case 3:
			require.NotNil(t, result.Timeout, "third strike claims the timeout")
			assert.Equal(t, types.ActionTimeout, result.Timeout.Action)
			require.NotNil(t, result.Timeout.DurationMinutes)
			assert.Equal(t, 60, *result.Timeout.DurationMinutes)
			assert.Equal(t, "Auto-timeout: 3 strikes", result.Timeout.Reason)
		default:
			assert.Nil(t, result.Timeout, "strike %d", result.Count)
		}
	}

	// Counts only ever increase
	assert.Equal(t, []int{1, 2, 3, 4}, counts)

	member, err := client.Model().Member().Get(ctx, testGuild, testUser)
	require.NoError(t, err)
	strikes, err := client.Model().Strike().CountForMember(ctx, testGuild, testUser)
	require.NoError(t, err)
	assert.Equal(t, member.StrikeCount, strikes)
}

func TestRecordStrikeAfterTimeoutExpires(t *testing.T) {
	t.Parallel()

	client := newTestClient(t)
	ctx := t.Context()
	ledger := client.Service().Ledger()
	now := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)

	for i := range 3 {
		_, err := ledger.RecordStrike(ctx, strikeRequest(now.Add(time.Duration(i)*time.Second)))
		require.NoError(t, err)
	}

	// The first timeout has run out, so the next violation is punished again
	result, err := ledger.RecordStrike(ctx, strikeRequest(now.Add(2*time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, 4, result.Count)
	assert.NotNil(t, result.Timeout)

	timeouts, err := client.Model().ModAction().ListForTarget(ctx, testGuild, testUser, types.ActionTimeout)
	require.NoError(t, err)
	assert.Len(t, timeouts, 2)
}

func TestRecordStrikeTimeoutDisabled(t *testing.T) {
	t.Parallel()

	client := newTestClient(t)
	ctx := t.Context()
	now := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)

	for i := range 5 {
		req := strikeRequest(now.Add(time.Duration(i) * time.Second))
		req.AutoTimeoutEnabled = false

		result, err := client.Service().Ledger().RecordStrike(ctx, req)
		require.NoError(t, err)
		assert.Nil(t, result.Timeout)
	}

	timeouts, err := client.Model().ModAction().ListForTarget(ctx, testGuild, testUser, types.ActionTimeout)
	require.NoError(t, err)
	assert.Empty(t, timeouts)
}

func TestRecordStrikeConcurrent(t *testing.T) {
	t.Parallel()

	client := newTestClient(t)
	ctx := t.Context()
	ledger := client.Service().Ledger()
	now := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)

	p := pool.NewWithResults[*types.StrikeResult]().WithErrors().WithContext(ctx)
	for range 50 {
		p.Go(func(ctx context.Context) (*types.StrikeResult, error) {
			return ledger.RecordStrike(ctx, strikeRequest(now))
		})
	}

	results, err := p.Wait()
	require.NoError(t, err)
	require.Len(t, results, 50)

	seen := make(map[int]bool)
	claimed := 0
	for _, result := range results {
		seen[result.Count] = true
		if result.Timeout != nil {
			claimed++
		}
	}

	assert.Len(t, seen, 50, "every increment observed a distinct count")
	assert.Equal(t, 1, claimed)

	member, err := client.Model().Member().Get(ctx, testGuild, testUser)
	require.NoError(t, err)
	assert.Equal(t, 50, member.StrikeCount)

	strikes, err := client.Model().Strike().CountForMember(ctx, testGuild, testUser)
	require.NoError(t, err)
	assert.Equal(t, 50, strikes)

	timeouts, err := client.Model().ModAction().ListForTarget(ctx, testGuild, testUser, types.ActionTimeout)
	require.NoError(t, err)
	assert.Len(t, timeouts, 1)
}

func TestRecordStrikeIsolatesMembers(t *testing.T) {
	t.Parallel()

	client := newTestClient(t)
	ctx := t.Context()
	now := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)

	other := strikeRequest(now)
	other.UserID = snowflake.ID(2002)

	_, err := client.Service().Ledger().RecordStrike(ctx, strikeRequest(now))
	require.NoError(t, err)
	result, err := client.Service().Ledger().RecordStrike(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Count)
}

func TestGuildStats(t *testing.T) {
	t.Parallel()

	client := newTestClient(t)
	ctx := t.Context()
	now := time.Date(2025, 4, 10, 12, 0, 0, 0, time.UTC)

	require.NoError(t, client.Model().Member().RecordJoin(ctx, testGuild, testUser, "alice", now.AddDate(0, 0, -30)))
	require.NoError(t, client.Model().Member().RecordJoin(ctx, testGuild, 2002, "bob", now.AddDate(0, 0, -1)))

	// One old strike, three recent ones with the third claiming a timeout
	_, err := client.Service().Ledger().RecordStrike(ctx, strikeRequest(now.AddDate(0, 0, -20)))
	require.NoError(t, err)
	for i := range 2 {
		_, err := client.Service().Ledger().RecordStrike(ctx, strikeRequest(now.Add(-time.Duration(2-i)*time.Minute)))
		require.NoError(t, err)
	}

	stats, err := client.Service().Stats().GetGuildStats(ctx, testGuild, now, 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalMembers)
	assert.Equal(t, 1, stats.NewMembers)
	assert.Equal(t, 3, stats.TotalStrikes)
	assert.Equal(t, 2, stats.RecentStrikes)
	assert.Equal(t, 1, stats.RecentActions)
	assert.Equal(t, 1, stats.ActiveTimeouts)

	strikes, actions, err := client.Service().Stats().GetDailyActivity(ctx, testGuild, now, 7)
	require.NoError(t, err)
	require.Len(t, strikes, 7)
	require.Len(t, actions, 7)
	assert.Equal(t, 2, strikes[6].Count)
	assert.Equal(t, 1, actions[6].Count)
	assert.Equal(t, 0, strikes[0].Count)
}
