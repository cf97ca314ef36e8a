package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/disgoorg/disgo"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/gateway"
	"github.com/robalyx/warden/internal/bot/commands"
	"github.com/robalyx/warden/internal/database"
	"github.com/robalyx/warden/internal/discord/adapter"
	"github.com/robalyx/warden/internal/moderation"
	"github.com/robalyx/warden/internal/setup/config"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// eventTimeout bounds the handling of a single gateway event.
const eventTimeout = 30 * time.Second

// ErrShuttingDown is returned by dispatch once Close has been called.
var ErrShuttingDown = errors.New("bot is shutting down")

// Bot connects the gateway to the moderation engine, the greeter and the slash commands.
// Events are handled concurrently, bounded by a weighted semaphore.
type Bot struct {
	client   bot.Client
	engine   *moderation.Engine
	greeter  *moderation.Greeter
	handler  *commands.Handler
	cfg      *config.BotConfig
	sem      *semaphore.Weighted
	ctx      context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup
	closeMu  sync.RWMutex
	closed   bool
	logger   *zap.Logger
}

// New creates the Discord client and wires every event handler.
func New(token string, cfg *config.BotConfig, db database.Client, logger *zap.Logger) (*Bot, error) {
	maxEvents := cfg.MaxConcurrentEvents
	if maxEvents <= 0 {
		maxEvents = 64
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bot{
		cfg:    cfg,
		sem:    semaphore.NewWeighted(maxEvents),
		ctx:    ctx,
		cancel: cancel,
		logger: logger.Named("bot"),
	}

	client, err := disgo.New(token,
		bot.WithGatewayConfigOpts(
			gateway.WithIntents(
				gateway.IntentGuilds,
				gateway.IntentGuildMessages,
				gateway.IntentMessageContent,
				gateway.IntentGuildMembers,
			),
		),
		bot.WithEventListeners(&events.ListenerAdapter{
			OnGuildReady:                    b.handleGuildReady,
			OnGuildJoin:                     b.handleGuildJoin,
			OnGuildMessageCreate:            b.handleGuildMessageCreate,
			OnGuildMemberJoin:               b.handleGuildMemberJoin,
			OnApplicationCommandInteraction: b.handleApplicationCommandInteraction,
		}),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create discord client: %w", err)
	}

	store := moderation.NewStore(db)
	platformAdapter := adapter.New(client.Rest(), logger)

	b.client = client
	b.engine = moderation.NewEngine(store, platformAdapter, platformAdapter, client.ID(), logger)
	b.greeter = moderation.NewGreeter(store, platformAdapter, platformAdapter, logger)
	b.handler = commands.NewHandler(moderation.NewModerator(store, platformAdapter, logger), logger)

	return b, nil
}

// Start registers the slash commands if configured and opens the gateway connection.
func (b *Bot) Start(ctx context.Context) error {
	if b.cfg.RegisterCommands {
		b.logger.Info("Registering commands")

		_, err := b.client.Rest().SetGlobalCommands(b.client.ApplicationID(), commands.Definitions())
		if err != nil {
			return fmt.Errorf("failed to register commands: %w", err)
		}
	}

	b.logger.Info("Starting bot")

	return b.client.OpenGateway(ctx)
}

// Close stops accepting events, waits for in-flight handlers and closes the gateway.
func (b *Bot) Close(ctx context.Context) {
	b.logger.Info("Closing bot")
	b.drain()
	b.client.Close(ctx)
}

// drain refuses new events and waits for the running handlers.
func (b *Bot) drain() {
	b.cancel()

	b.closeMu.Lock()
	b.closed = true
	b.closeMu.Unlock()

	b.inflight.Wait()
}

// dispatch runs fn on its own goroutine once a semaphore slot is free.
// A panic in fn is logged and does not bring the bot down.
func (b *Bot) dispatch(name string, fn func(ctx context.Context) error) {
	if err := b.sem.Acquire(b.ctx, 1); err != nil {
		b.logger.Debug("Dropping event", zap.String("event", name), zap.Error(ErrShuttingDown))
		return
	}

	b.closeMu.RLock()
	if b.closed {
		b.closeMu.RUnlock()
		b.sem.Release(1)
		b.logger.Debug("Dropping event", zap.String("event", name), zap.Error(ErrShuttingDown))
		return
	}
	b.inflight.Add(1)
	b.closeMu.RUnlock()

	go func() {
		defer b.inflight.Done()
		defer b.sem.Release(1)

		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("Panic in event handler", zap.String("event", name), zap.Any("panic", r))
			}
		}()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(b.ctx), eventTimeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			b.logger.Error("Failed to handle event", zap.String("event", name), zap.Error(err))
			return
		}

		b.logger.Debug("Event handled",
			zap.String("event", name),
			zap.Duration("duration", time.Since(start)))
	}()
}

func (b *Bot) handleGuildReady(event *events.GuildReady) {
	guildID := event.GuildID
	b.dispatch("guild_ready", func(ctx context.Context) error {
		return b.greeter.OnGuildAvailable(ctx, guildID)
	})
}

func (b *Bot) handleGuildJoin(event *events.GuildJoin) {
	guildID := event.GuildID
	b.dispatch("guild_join", func(ctx context.Context) error {
		return b.greeter.OnGuildAvailable(ctx, guildID)
	})
}

func (b *Bot) handleGuildMessageCreate(event *events.GuildMessageCreate) {
	msg := toMessage(event.GuildID, event.ChannelID, event.Message)
	if msg.IsBot {
		return
	}

	b.dispatch("message_create", func(ctx context.Context) error {
		verdict, err := b.engine.Evaluate(ctx, msg)
		if err != nil {
			return err
		}

		if verdict.Outcome == moderation.OutcomeWarned || verdict.Outcome == moderation.OutcomeTimedOut {
			b.logger.Info("Message violated word filter",
				zap.Uint64("guildID", uint64(msg.GuildID)),
				zap.Uint64("userID", uint64(msg.AuthorID)),
				zap.String("outcome", verdict.Outcome.String()),
				zap.Int("strikes", verdict.StrikeCount))
		}

		return nil
	})
}

func (b *Bot) handleGuildMemberJoin(event *events.GuildMemberJoin) {
	join := toJoinEvent(event.GuildID, event.Member)
	b.dispatch("member_join", func(ctx context.Context) error {
		return b.greeter.OnJoin(ctx, join)
	})
}

// handleApplicationCommandInteraction defers an ephemeral response and then
// replaces it with the command's reply.
func (b *Bot) handleApplicationCommandInteraction(event *events.ApplicationCommandInteractionCreate) {
	data, ok := event.Data.(discord.SlashCommandInteractionData)
	if !ok {
		return
	}

	b.dispatch("command_"+data.CommandName(), func(ctx context.Context) error {
		if err := event.DeferCreateMessage(true); err != nil {
			return fmt.Errorf("failed to defer create message: %w", err)
		}

		in := commands.ParseInput(event.GuildID(), event.ChannelID(), event.User().ID, data)

		reply := commands.ReplyGuildOnly
		if in.GuildID != 0 {
			reply = b.handler.Handle(ctx, in)
		}

		_, err := b.client.Rest().UpdateInteractionResponse(
			event.ApplicationID(), event.Token(),
			discord.NewMessageUpdateBuilder().SetContent(reply).Build(),
		)
		if err != nil {
			return fmt.Errorf("failed to update interaction response: %w", err)
		}

		return nil
	})
}
