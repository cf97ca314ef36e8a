package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robalyx/warden/internal/setup/config"
	"github.com/robalyx/warden/internal/setup/telemetry/logger"
	"github.com/robalyx/warden/internal/setup/telemetry/loki"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ServiceType represents the type of service being initialized.
type ServiceType int

const (
	ServiceBot ServiceType = iota
	ServiceWorker
	ServiceREST
	ServiceDB
)

// String returns the component name used in log file names.
func (s ServiceType) String() string {
	switch s {
	case ServiceBot:
		return "bot"
	case ServiceWorker:
		return "worker"
	case ServiceREST:
		return "rest"
	case ServiceDB:
		return "db"
	default:
		return "unknown"
	}
}

// Manager handles the creation and management of log files and directories.
// Every program run writes into its own timestamped session directory.
type Manager struct {
	instanceID        string
	componentName     string
	currentSessionDir string
	logDir            string
	level             string
	maxLogsToKeep     int
	maxLogLines       int
	console           bool

	lokiPusher *loki.Pusher
	lokiCore   *loki.Core
	spans      bool

	mu        sync.Mutex
	rotators  []*logger.Rotator
	sessionMu sync.Once
}

// NewManager creates a new Manager instance.
func NewManager(serviceType ServiceType, logDir string, debugCfg *config.Debug) *Manager {
	return &Manager{
		instanceID:    uuid.New().String(),
		componentName: serviceType.String(),
		logDir:        logDir,
		level:         debugCfg.LogLevel,
		maxLogsToKeep: debugCfg.MaxLogsToKeep,
		maxLogLines:   debugCfg.MaxLogLines,
		console:       true,
	}
}

// WithTelemetry enables Loki shipping and error spans for every logger created afterwards.
func (lm *Manager) WithTelemetry(cfg *config.Telemetry) *Manager {
	if cfg.Loki.Enabled && cfg.Loki.URL != "" {
		level, err := zapcore.ParseLevel(cfg.Loki.Level)
		if err != nil {
			level = zapcore.InfoLevel
		}

		lm.lokiPusher = loki.NewPusher(&cfg.Loki, map[string]string{
			"component":   lm.componentName,
			"instance_id": lm.instanceID,
		})
		lm.lokiCore = loki.NewCore(level, lm.lokiPusher)
	}

	lm.spans = cfg.UptraceDSN != ""

	return lm
}

// GetLoggers initializes the main and database loggers.
func (lm *Manager) GetLoggers() (*zap.Logger, *zap.Logger, error) {
	if err := lm.setupLogDirectories(); err != nil {
		return nil, nil, err
	}

	mainLogger, err := lm.initLogger(filepath.Join(lm.currentSessionDir, "main.log"), lm.console)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize main logger: %w", err)
	}

	dbLogger, err := lm.initLogger(filepath.Join(lm.currentSessionDir, "database.log"), false)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database logger: %w", err)
	}

	mainLogger = mainLogger.With(
		zap.String("component", lm.componentName),
		zap.String("instanceID", lm.instanceID),
	)

	return mainLogger, dbLogger, nil
}

// GetWorkerLogger creates a logger for a background worker.
// Each worker gets its own log file in the session directory.
func (lm *Manager) GetWorkerLogger(name string) *zap.Logger {
	log, err := lm.initLogger(filepath.Join(lm.getOrCreateSessionDir(), name+".log"), lm.console)
	if err != nil {
		return zap.NewNop()
	}

	return log.With(zap.String("worker", name))
}

// GetInstanceID returns the unique instance identifier for this program run.
func (lm *Manager) GetInstanceID() string {
	return lm.instanceID
}

// Close flushes shipped logs and closes every log file opened by the manager.
func (lm *Manager) Close() {
	if lm.lokiPusher != nil {
		lm.lokiPusher.Stop()
	}

	lm.mu.Lock()
	defer lm.mu.Unlock()

	for _, r := range lm.rotators {
		_ = r.Sync()
		_ = r.Close()
	}

	lm.rotators = nil
}

// setupLogDirectories creates the log directory, rotates old sessions and starts a new one.
func (lm *Manager) setupLogDirectories() error {
	if err := os.MkdirAll(lm.logDir, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	if err := lm.rotateLogSessions(); err != nil {
		return fmt.Errorf("failed to rotate log sessions: %w", err)
	}

	sessionDir := lm.getOrCreateSessionDir()
	if sessionDir == lm.logDir {
		return fmt.Errorf("failed to create session directory in %s", lm.logDir)
	}

	return nil
}

// getOrCreateSessionDir returns the session directory, creating it once.
// Falls back to the base log directory if creation fails.
func (lm *Manager) getOrCreateSessionDir() string {
	lm.sessionMu.Do(func() {
		sessionDir := filepath.Join(lm.logDir, time.Now().Format("2006-01-02_15-04-05"))
		if err := os.MkdirAll(sessionDir, os.ModePerm); err != nil {
			lm.currentSessionDir = lm.logDir
			return
		}

		lm.currentSessionDir = sessionDir
	})

	return lm.currentSessionDir
}

// initLogger creates a zap logger writing to the given file and optionally stderr.
func (lm *Manager) initLogger(path string, console bool) (*zap.Logger, error) {
	zapLevel, err := zapcore.ParseLevel(lm.level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	rotator, err := logger.NewRotator(path, lm.maxLogLines)
	if err != nil {
		return nil, err
	}

	lm.mu.Lock()
	lm.rotators = append(lm.rotators, rotator)
	lm.mu.Unlock()

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(rotator), zapLevel),
	}

	if console {
		consoleConfig := zap.NewProductionEncoderConfig()
		consoleConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(consoleConfig),
			zapcore.Lock(os.Stderr),
			zapcore.WarnLevel,
		))
	}

	if lm.lokiCore != nil {
		cores = append(cores, lm.lokiCore.With([]zapcore.Field{zap.String("file", filepath.Base(path))}))
	}

	if lm.spans {
		cores = append(cores, NewSpanCore(otel.GetTracerProvider()))
	}

	return zap.New(
		zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	), nil
}

// rotateLogSessions removes the oldest session directories beyond maxLogsToKeep.
func (lm *Manager) rotateLogSessions() error {
	sessions, err := filepath.Glob(filepath.Join(lm.logDir, "*"))
	if err != nil {
		return err
	}

	if len(sessions) < lm.maxLogsToKeep {
		return nil
	}

	sort.Slice(sessions, func(i, j int) bool {
		iInfo, iErr := os.Stat(sessions[i])
		jInfo, jErr := os.Stat(sessions[j])
		if iErr != nil || jErr != nil {
			return sessions[i] < sessions[j]
		}

		return iInfo.ModTime().Before(jInfo.ModTime())
	})

	// Leave room for the session about to be created
	toDelete := len(sessions) - lm.maxLogsToKeep + 1
	for i := range toDelete {
		if err := os.RemoveAll(sessions[i]); err != nil {
			return err
		}
	}

	return nil
}
