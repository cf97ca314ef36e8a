// Package moderation implements the word filter with its strike ladder and the
// administrator-invoked moderation commands.
package moderation

import (
	"context"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/warden/internal/database/models"
	"github.com/robalyx/warden/internal/database/service"
	"github.com/robalyx/warden/internal/database/types"
	"github.com/robalyx/warden/internal/platform"
	"go.uber.org/zap"
)

// Outcome is the result of evaluating one message.
type Outcome int

const (
	// OutcomeIgnored means the message was not evaluated (bot author or no guild).
	OutcomeIgnored Outcome = iota
	// OutcomeClean means no forbidden word was found.
	OutcomeClean
	// OutcomeWarned means a strike was recorded and a warning was issued.
	OutcomeWarned
	// OutcomeTimedOut means a strike was recorded and the author was timed out.
	OutcomeTimedOut
)

// String returns the name of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeIgnored:
		return "ignored"
	case OutcomeClean:
		return "clean"
	case OutcomeWarned:
		return "warned"
	case OutcomeTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Message is an inbound chat message.
type Message struct {
	GuildID   snowflake.ID // zero for direct messages
	ChannelID snowflake.ID
	MessageID snowflake.ID
	AuthorID  snowflake.ID
	// AuthorName is the display name stored on the member record.
	AuthorName string
	// AuthorJoinedAt is when the author joined the guild, if known.
	AuthorJoinedAt time.Time
	Content        string
	IsBot          bool
}

// Verdict describes what the engine decided for a message.
type Verdict struct {
	Outcome     Outcome
	MatchedWord string
	StrikeCount int
	StrikeLimit int
	// TimeoutFailed is set when a timeout was claimed but the platform refused it.
	TimeoutFailed bool
}

// Engine evaluates messages against the guild's forbidden-word policy and
// escalates repeated violations from warnings to timeouts.
type Engine struct {
	store    Store
	dir      platform.Directory
	notifier platform.Notifier
	botID    snowflake.ID
	logger   *zap.Logger
	now      func() time.Time
}

// NewEngine creates an Engine. botID is recorded as the moderator of automatic strikes.
func NewEngine(
	store Store, dir platform.Directory, notifier platform.Notifier, botID snowflake.ID, logger *zap.Logger,
) *Engine {
	return &Engine{
		store:    store,
		dir:      dir,
		notifier: notifier,
		botID:    botID,
		logger:   logger.Named("moderation_engine"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate processes one message.
//
// Persistence failures abort the evaluation and are returned. Platform failures
// are logged only and the recorded strike stays authoritative. A refused
// timeout is reported to the channel as a plain warning.
func (e *Engine) Evaluate(ctx context.Context, msg *Message) (*Verdict, error) {
	if msg.GuildID == 0 || msg.IsBot {
		return &Verdict{Outcome: OutcomeIgnored}, nil
	}

	now := e.now()

	err := e.store.TouchMember(ctx, models.MemberActivity{
		GuildID:  msg.GuildID,
		UserID:   msg.AuthorID,
		Username: msg.AuthorName,
		JoinedAt: msg.AuthorJoinedAt,
		At:       now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record member activity: %w", err)
	}

	cfg, err := e.store.GetGuildConfig(ctx, msg.GuildID)
	if err != nil {
		return nil, fmt.Errorf("failed to load guild config: %w", err)
	}

	word := MatchForbidden(msg.Content, cfg.ForbiddenWords)
	if word == "" {
		return &Verdict{Outcome: OutcomeClean, StrikeLimit: cfg.StrikeLimit}, nil
	}

	logger := e.logger.With(
		zap.Uint64("guildID", uint64(msg.GuildID)),
		zap.Uint64("userID", uint64(msg.AuthorID)),
		zap.String("word", word))

	if err := e.dir.DeleteMessage(ctx, msg.ChannelID, msg.MessageID); err != nil {
		logger.Warn("Failed to delete offending message", zap.Error(err))
	}

	result, err := e.store.RecordStrike(ctx, &service.StrikeRequest{
		GuildID:            msg.GuildID,
		UserID:             msg.AuthorID,
		Username:           msg.AuthorName,
		ModeratorID:        e.botID,
		Reason:             types.ReasonForbiddenWord,
		At:                 now,
		StrikeLimit:        cfg.StrikeLimit,
		AutoTimeoutEnabled: cfg.AutoTimeoutEnabled,
		TimeoutMinutes:     cfg.TimeoutMinutes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record strike: %w", err)
	}

	verdict := &Verdict{
		Outcome:     OutcomeWarned,
		MatchedWord: word,
		StrikeCount: result.Count,
		StrikeLimit: cfg.StrikeLimit,
	}

	if result.Timeout != nil {
		minutes := cfg.TimeoutMinutes
		if result.Timeout.DurationMinutes != nil {
			minutes = *result.Timeout.DurationMinutes
		}

		err := e.dir.TimeoutMember(ctx, msg.GuildID, msg.AuthorID, minutes, result.Timeout.Reason)
		if err == nil {
			verdict.Outcome = OutcomeTimedOut
			e.notify(ctx, logger, msg.ChannelID, TimeoutNotice(msg.AuthorID, minutes, cfg.StrikeLimit))

			logger.Info("Member timed out", zap.Int("strikes", result.Count))

			return verdict, nil
		}

		// The claim stays recorded so no later strike retries the timeout
		verdict.TimeoutFailed = true
		logger.Warn("Failed to time out member", zap.Int("minutes", minutes), zap.Error(err))
	}

	e.notify(ctx, logger, msg.ChannelID, WarningNotice(msg.AuthorID, result.Count, cfg.StrikeLimit))

	logger.Debug("Member warned", zap.Int("strikes", result.Count))

	return verdict, nil
}

func (e *Engine) notify(ctx context.Context, logger *zap.Logger, channelID snowflake.ID, text string) {
	if err := e.notifier.SendNotice(ctx, channelID, text); err != nil {
		logger.Warn("Failed to send notice", zap.Uint64("channelID", uint64(channelID)), zap.Error(err))
	}
}

// WarningNotice is posted when a strike is recorded without a timeout.
func WarningNotice(userID snowflake.ID, count, limit int) string {
	return fmt.Sprintf("<@%d> Strike (%d/%d)", userID, count, limit)
}

// TimeoutNotice is posted when a strike triggers the automatic timeout.
func TimeoutNotice(userID snowflake.ID, minutes, limit int) string {
	return fmt.Sprintf("<@%d> You have been timed out for %d minutes (%d strikes)", userID, minutes, limit)
}
