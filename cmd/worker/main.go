package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/disgoorg/disgo/rest"
	"github.com/robalyx/warden/internal/discord/adapter"
	"github.com/robalyx/warden/internal/setup"
	"github.com/robalyx/warden/internal/setup/telemetry"
	"github.com/robalyx/warden/internal/worker/activity"
	"github.com/robalyx/warden/internal/worker/core"
	"github.com/robalyx/warden/internal/worker/quiet"
	"github.com/robalyx/warden/internal/worker/report"
	"github.com/sourcegraph/conc/pool"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

const (
	// WorkerLogDir specifies where worker log files are stored.
	WorkerLogDir = "logs/worker_logs"

	// QuietWorker locks and unlocks the quiet-hours channel.
	QuietWorker = "quiet"
	// ActivityWorker promotes active members.
	ActivityWorker = "activity"
	// ReportWorker posts the weekly moderation report.
	ReportWorker = "report"
	// AllWorkers runs every scheduled worker in one process.
	AllWorkers = "all"
)

var errUnknownWorker = errors.New("unknown worker type")

// scheduledTask is a task with the settings of its loop.
type scheduledTask struct {
	task            core.Task
	interval        time.Duration
	skipInitialTick bool
	logger          *zap.Logger
}

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	onceFlag := &cli.BoolFlag{
		Name:  "once",
		Usage: "Run a single tick and exit",
	}

	command := func(name, usage string) *cli.Command {
		return &cli.Command{
			Name:  name,
			Usage: usage,
			Action: func(ctx context.Context, c *cli.Command) error {
				return runWorkers(ctx, name, c.Bool("once"))
			},
		}
	}

	app := &cli.Command{
		Name:  "worker",
		Usage: "Start the warden scheduled workers",
		Flags: []cli.Flag{onceFlag},
		Commands: []*cli.Command{
			command(QuietWorker, "Start the quiet-hours scheduler"),
			command(ActivityWorker, "Start the activity role promoter"),
			command(ReportWorker, "Start the weekly report worker"),
			command(AllWorkers, "Start every scheduled worker"),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return app.Run(ctx, os.Args)
}

// runWorkers starts the loops selected by workerType and blocks until ctx is cancelled.
func runWorkers(ctx context.Context, workerType string, once bool) error {
	app, err := setup.InitializeApp(ctx, telemetry.ServiceWorker, WorkerLogDir)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Cleanup(context.Background())

	loops, err := buildLoops(app, workerType)
	if err != nil {
		return err
	}

	if once {
		for _, loop := range loops {
			result, err := loop.Tick(ctx)
			if err != nil {
				return err
			}
			log.Printf("Tick finished: %d guilds, %d reconciled, %d skipped, %d failed",
				result.Guilds, result.Reconciled, result.Skipped, result.Failed)
		}
		return nil
	}

	p := pool.New().WithErrors().WithContext(ctx)
	for _, loop := range loops {
		p.Go(loop.Run)
	}

	log.Printf("Started %d %s workers", len(loops), workerType)

	err = p.Wait()

	log.Println("All workers have finished. Exiting.")

	return err
}

// buildLoops wires the tasks selected by workerType.
func buildLoops(app *setup.App, workerType string) ([]*core.Loop, error) {
	cfg := app.Config.Worker
	platformAdapter := adapter.New(rest.New(rest.NewClient(app.Config.Common.Discord.Token)), app.Logger)

	var tasks []scheduledTask

	add := func(task core.Task, seconds int, skipInitialTick bool, logger *zap.Logger) {
		tasks = append(tasks, scheduledTask{
			task:            task,
			interval:        time.Duration(seconds) * time.Second,
			skipInitialTick: skipInitialTick,
			logger:          logger,
		})
	}

	all := workerType == AllWorkers

	if all || workerType == QuietWorker {
		loc, err := app.Location()
		if err != nil {
			return nil, err
		}

		logger := app.LogManager.GetWorkerLogger(quiet.TaskName)
		add(quiet.New(platformAdapter, platformAdapter, loc, logger), cfg.QuietHours.Interval, false, logger)
	}

	if all || workerType == ActivityWorker {
		logger := app.LogManager.GetWorkerLogger(activity.TaskName)
		criteria := activity.Criteria{
			MinAge:      time.Duration(cfg.Activity.MinAgeDays) * 24 * time.Hour,
			MinMessages: cfg.Activity.MinMessages,
			MaxStrikes:  cfg.Activity.MaxStrikes,
		}
		add(activity.New(app.DB.Model().Member(), platformAdapter, criteria, logger), cfg.Activity.Interval, false, logger)
	}

	if all || workerType == ReportWorker {
		logger := app.LogManager.GetWorkerLogger(report.TaskName)
		// A restart must not post a second report for the same week
		add(report.New(app.DB.Service().Stats(), platformAdapter, cfg.Report.WindowDays, logger),
			cfg.Report.Interval, true, logger)
	}

	if len(tasks) == 0 {
		return nil, fmt.Errorf("%w: %s", errUnknownWorker, workerType)
	}

	var locker *core.Locker
	if app.StatusClient != nil {
		locker = core.NewLocker(app.StatusClient, app.LogManager.GetInstanceID(), core.DefaultLockTTL)
	}

	loops := make([]*core.Loop, 0, len(tasks))
	for _, t := range tasks {
		var reporter *core.StatusReporter
		if app.StatusClient != nil {
			reporter = core.NewStatusReporter(app.StatusClient, t.task.Name(), t.logger)
		}

		loops = append(loops, core.NewLoop(t.task, app.DB.Model().GuildConfig(), core.Options{
			Interval:            t.interval,
			MaxConcurrentGuilds: cfg.MaxConcurrentGuilds,
			Locker:              locker,
			Reporter:            reporter,
			SkipInitialTick:     t.skipInitialTick,
		}, t.logger))
	}

	app.Logger.Info("Workers configured", zap.String("type", workerType), zap.Int("loops", len(loops)))

	return loops, nil
}
