package moderation_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/warden/internal/database"
	"github.com/robalyx/warden/internal/database/service"
	"github.com/robalyx/warden/internal/database/types"
	"github.com/robalyx/warden/internal/moderation"
	"github.com/robalyx/warden/internal/platform"
	"github.com/robalyx/warden/internal/platform/platformtest"
	"github.com/sourcegraph/conc/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	guildID   = snowflake.ID(1)
	channelID = snowflake.ID(10)
	userID    = snowflake.ID(100)
	botID     = snowflake.ID(999)
)

func newTestDB(t *testing.T) database.Client {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	client, err := database.NewSQLite(t.Context(), "file:moderation_"+name+"?mode=memory&cache=shared", zap.NewNop())
	require.NoError(t, err)

	t.Cleanup(func() { _ = client.Close() })

	return client
}

func newEngine(t *testing.T) (*moderation.Engine, database.Client, *platformtest.Fake) {
	t.Helper()

	db := newTestDB(t)
	fake := platformtest.NewFake()

	return moderation.NewEngine(moderation.NewStore(db), fake, fake, botID, zap.NewNop()), db, fake
}

func violation(messageID snowflake.ID) *moderation.Message {
	return &moderation.Message{
		GuildID:    guildID,
		ChannelID:  channelID,
		MessageID:  messageID,
		AuthorID:   userID,
		AuthorName: "alice",
		Content:    "buy cheap SPAM now",
	}
}

func TestEvaluateLadder(t *testing.T) {
	t.Parallel()

	engine, db, fake := newEngine(t)
	ctx := t.Context()

	first, err := engine.Evaluate(ctx, violation(1))
	require.NoError(t, err)
	assert.Equal(t, moderation.OutcomeWarned, first.Outcome)
	assert.Equal(t, "spam", first.MatchedWord)

	second, err := engine.Evaluate(ctx, violation(2))
	require.NoError(t, err)
	assert.Equal(t, moderation.OutcomeWarned, second.Outcome)
	assert.Equal(t, 2, second.StrikeCount)

	third, err := engine.Evaluate(ctx, violation(3))
	require.NoError(t, err)
	assert.Equal(t, moderation.OutcomeTimedOut, third.Outcome)
	assert.Equal(t, 3, third.StrikeCount)

	assert.Equal(t, []string{
		"<@100> Strike (1/3)",
		"<@100> Strike (2/3)",
		"<@100> You have been timed out for 60 minutes (3 strikes)",
	}, fake.NoticeTexts())

	fake.Snapshot(func(f *platformtest.Fake) {
		assert.Equal(t, []snowflake.ID{1, 2, 3}, f.DeletedMessages)
		require.Len(t, f.Timeouts, 1)
		assert.Equal(t, 60, f.Timeouts[0].Minutes)
		assert.Equal(t, userID, f.Timeouts[0].UserID)
	})

	member, err := db.Model().Member().Get(ctx, guildID, userID)
	require.NoError(t, err)
	assert.Equal(t, 3, member.StrikeCount)
	assert.Equal(t, 3, member.TotalMessages)

	timeouts, err := db.Model().ModAction().ListForTarget(ctx, guildID, userID, types.ActionTimeout)
	require.NoError(t, err)
	require.Len(t, timeouts, 1)
	assert.Equal(t, botID, timeouts[0].ModeratorID)
}

func TestEvaluateMonotonicStrikes(t *testing.T) {
	t.Parallel()

	engine, db, _ := newEngine(t)
	ctx := t.Context()

	last := 0
	for i := range 8 {
		verdict, err := engine.Evaluate(ctx, violation(snowflake.ID(i+1)))
		require.NoError(t, err)
		assert.Greater(t, verdict.StrikeCount, last)
		last = verdict.StrikeCount
	}

	member, err := db.Model().Member().Get(ctx, guildID, userID)
	require.NoError(t, err)
	strikes, err := db.Model().Strike().CountForMember(ctx, guildID, userID)
	require.NoError(t, err)
	assert.Equal(t, 8, member.StrikeCount)
	assert.Equal(t, member.StrikeCount, strikes)
}

func TestEvaluateTimeoutDisabled(t *testing.T) {
	t.Parallel()

	engine, db, fake := newEngine(t)
	ctx := t.Context()

	disabled := false
	_, err := db.Model().GuildConfig().Update(ctx, guildID, &types.GuildConfigUpdate{AutoTimeoutEnabled: &disabled})
	require.NoError(t, err)

	var verdict *moderation.Verdict
	for i := range 3 {
		verdict, err = engine.Evaluate(ctx, violation(snowflake.ID(i+1)))
		require.NoError(t, err)
	}

	assert.Equal(t, moderation.OutcomeWarned, verdict.Outcome)
	assert.Contains(t, fake.NoticeTexts(), "<@100> Strike (3/3)")
	fake.Snapshot(func(f *platformtest.Fake) {
		assert.Empty(t, f.Timeouts)
	})
}

func TestEvaluateTimeoutDeliveryFailure(t *testing.T) {
	t.Parallel()

	engine, db, fake := newEngine(t)
	ctx := t.Context()
	fake.TimeoutErr = platform.ErrPermissionDenied
	fake.DeleteErr = platform.ErrPermissionDenied

	var verdict *moderation.Verdict
	var err error
	for i := range 3 {
		verdict, err = engine.Evaluate(ctx, violation(snowflake.ID(i+1)))
		require.NoError(t, err)
	}

	// The ledger stays authoritative even when the platform refuses the timeout
	assert.Equal(t, moderation.OutcomeWarned, verdict.Outcome)
	assert.True(t, verdict.TimeoutFailed)
	assert.Equal(t, 3, verdict.StrikeCount)

	fake.Snapshot(func(f *platformtest.Fake) {
		assert.Empty(t, f.Timeouts)
	})
	assert.Equal(t, []string{
		moderation.WarningNotice(userID, 1, 3),
		moderation.WarningNotice(userID, 2, 3),
		moderation.WarningNotice(userID, 3, 3),
	}, fake.NoticeTexts())

	member, err := db.Model().Member().Get(ctx, guildID, userID)
	require.NoError(t, err)
	assert.Equal(t, 3, member.StrikeCount)

	timeouts, err := db.Model().ModAction().ListForTarget(ctx, guildID, userID, types.ActionTimeout)
	require.NoError(t, err)
	assert.Len(t, timeouts, 1)
}

func TestEvaluateIgnoredAndClean(t *testing.T) {
	t.Parallel()

	engine, db, fake := newEngine(t)
	ctx := t.Context()

	bot := violation(1)
	bot.IsBot = true
	verdict, err := engine.Evaluate(ctx, bot)
	require.NoError(t, err)
	assert.Equal(t, moderation.OutcomeIgnored, verdict.Outcome)

	dm := violation(2)
	dm.GuildID = 0
	verdict, err = engine.Evaluate(ctx, dm)
	require.NoError(t, err)
	assert.Equal(t, moderation.OutcomeIgnored, verdict.Outcome)

	_, err = db.Model().Member().Get(ctx, guildID, userID)
	require.ErrorIs(t, err, types.ErrMemberNotFound)

	clean := violation(3)
	clean.Content = "good morning"
	verdict, err = engine.Evaluate(ctx, clean)
	require.NoError(t, err)
	assert.Equal(t, moderation.OutcomeClean, verdict.Outcome)

	member, err := db.Model().Member().Get(ctx, guildID, userID)
	require.NoError(t, err)
	assert.Equal(t, 1, member.TotalMessages)
	assert.Equal(t, 0, member.StrikeCount)
	assert.Empty(t, fake.NoticeTexts())
}

func TestEvaluateEmptyPolicy(t *testing.T) {
	t.Parallel()

	engine, db, _ := newEngine(t)
	ctx := t.Context()

	none := []string{}
	_, err := db.Model().GuildConfig().Update(ctx, guildID, &types.GuildConfigUpdate{ForbiddenWords: &none})
	require.NoError(t, err)

	verdict, err := engine.Evaluate(ctx, violation(1))
	require.NoError(t, err)
	assert.Equal(t, moderation.OutcomeClean, verdict.Outcome)
}

func TestEvaluateConcurrentViolations(t *testing.T) {
	t.Parallel()

	engine, db, fake := newEngine(t)
	ctx := t.Context()

	p := pool.NewWithResults[*moderation.Verdict]().WithErrors().WithContext(ctx)
	for i := range 50 {
		p.Go(func(ctx context.Context) (*moderation.Verdict, error) {
			return engine.Evaluate(ctx, violation(snowflake.ID(i+1)))
		})
	}

	verdicts, err := p.Wait()
	require.NoError(t, err)

	timedOut := 0
	for _, v := range verdicts {
		if v.Outcome == moderation.OutcomeTimedOut {
			timedOut++
		}
	}
	assert.Equal(t, 1, timedOut)

	member, err := db.Model().Member().Get(ctx, guildID, userID)
	require.NoError(t, err)
	assert.Equal(t, 50, member.StrikeCount)
	assert.Equal(t, 50, member.TotalMessages)

	timeouts, err := db.Model().ModAction().ListForTarget(ctx, guildID, userID, types.ActionTimeout)
	require.NoError(t, err)
	assert.Len(t, timeouts, 1)

	fake.Snapshot(func(f *platformtest.Fake) {
		assert.Len(t, f.Timeouts, 1)
	})
}

// unavailableStore fails every strike write.
type unavailableStore struct {
	moderation.Store
}

func (unavailableStore) RecordStrike(context.Context, *service.StrikeRequest) (*types.StrikeResult, error) {
	return nil, fmt.Errorf("%w: connection refused", types.ErrStoreUnavailable)
}

func TestEvaluateStoreUnavailable(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	fake := platformtest.NewFake()
	engine := moderation.NewEngine(unavailableStore{moderation.NewStore(db)}, fake, fake, botID, zap.NewNop())

	_, err := engine.Evaluate(t.Context(), violation(1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrStoreUnavailable))

	// Nothing is announced or punished without a recorded strike
	assert.Empty(t, fake.NoticeTexts())
	fake.Snapshot(func(f *platformtest.Fake) {
		assert.Empty(t, f.Timeouts)
	})
}
