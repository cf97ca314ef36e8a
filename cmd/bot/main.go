package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robalyx/warden/internal/bot"
	"github.com/robalyx/warden/internal/setup"
	"github.com/robalyx/warden/internal/setup/telemetry"
)

const (
	// BotLogDir specifies where bot log files are stored.
	BotLogDir = "logs/bot_logs"

	shutdownTimeout = 30 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize application with required dependencies
	app, err := setup.InitializeApp(ctx, telemetry.ServiceBot, BotLogDir)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	if err := runBot(ctx, app); err != nil {
		log.Printf("Bot stopped with error: %v", err)
		app.Cleanup(context.Background())
		os.Exit(1)
	}

	app.Cleanup(context.Background())
}

func runBot(ctx context.Context, app *setup.App) error {
	discordBot, err := bot.New(app.Config.Common.Discord.Token, &app.Config.Bot, app.DB, app.Logger)
	if err != nil {
		return err
	}

	// Start the bot and connect to Discord
	if err := discordBot.Start(ctx); err != nil {
		return err
	}

	log.Println("Bot has been started. Waiting for interrupt signal to gracefully shutdown...")

	<-ctx.Done()

	// Let in-flight events finish before the gateway closes
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	discordBot.Close(shutdownCtx)

	return nil
}
