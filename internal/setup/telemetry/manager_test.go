package telemetry_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/robalyx/warden/internal/setup/config"
	"github.com/robalyx/warden/internal/setup/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerGetLoggers(t *testing.T) {
	t.Parallel()

	logDir := t.TempDir()
	lm := telemetry.NewManager(telemetry.ServiceWorker, logDir, &config.Debug{
		LogLevel:      "debug",
		MaxLogsToKeep: 3,
		MaxLogLines:   100,
	})
	defer lm.Close()

	mainLogger, dbLogger, err := lm.GetLoggers()
	require.NoError(t, err)

	mainLogger.Info("hello")
	dbLogger.Debug("query")
	lm.GetWorkerLogger("quiet_hours").Info("tick")

	sessions, err := filepath.Glob(filepath.Join(logDir, "*"))
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	for _, name := range []string{"main.log", "database.log", "quiet_hours.log"} {
		info, err := os.Stat(filepath.Join(sessions[0], name))
		require.NoError(t, err, name)
		assert.Positive(t, info.Size(), name)
	}
}

func TestManagerRotatesSessions(t *testing.T) {
	t.Parallel()

	logDir := t.TempDir()
	for _, name := range []string{"2020-01-01_00-00-00", "2020-01-02_00-00-00", "2020-01-03_00-00-00"} {
		require.NoError(t, os.MkdirAll(filepath.Join(logDir, name), os.ModePerm))
	}

	lm := telemetry.NewManager(telemetry.ServiceBot, logDir, &config.Debug{
		LogLevel:      "info",
		MaxLogsToKeep: 2,
	})
	defer lm.Close()

	_, _, err := lm.GetLoggers()
	require.NoError(t, err)

	sessions, err := filepath.Glob(filepath.Join(logDir, "*"))
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
}

func TestServiceTypeString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "bot", telemetry.ServiceBot.String())
	assert.Equal(t, "worker", telemetry.ServiceWorker.String())
	assert.Equal(t, "rest", telemetry.ServiceREST.String())
	assert.Equal(t, "db", telemetry.ServiceDB.String())
}
