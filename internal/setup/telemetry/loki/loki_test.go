package loki_test

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/robalyx/warden/internal/setup/config"
	"github.com/robalyx/warden/internal/setup/telemetry/loki"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type pushed struct {
	Streams []struct {
		Stream map[string]string `json:"stream"`
		Values [][2]string       `json:"values"`
	} `json:"streams"`
}

func TestCoreShipsEntries(t *testing.T) {
	t.Parallel()

	var (
		mu       sync.Mutex
		requests []pushed
		authOK   bool
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/loki/api/v1/push", r.URL.Path)
		assert.Equal(t, "gzip", r.Header.Get("Content-Encoding"))

		gz, err := gzip.NewReader(r.Body)
		if !assert.NoError(t, err) {
			return
		}

		body, err := io.ReadAll(gz)
		if !assert.NoError(t, err) {
			return
		}

		var req pushed
		assert.NoError(t, sonic.Unmarshal(body, &req))

		user, pass, ok := r.BasicAuth()

		mu.Lock()
		requests = append(requests, req)
		authOK = ok && user == "loki" && pass == "secret"
		mu.Unlock()

		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	pusher := loki.NewPusher(&config.Loki{
		URL:            server.URL,
		BatchMaxSize:   10,
		BatchMaxWaitMS: 60000,
		Labels:         map[string]string{"app": "warden"},
		Username:       "loki",
		Password:       "secret",
	}, map[string]string{"component": "worker"})

	logger := zap.New(loki.NewCore(zapcore.InfoLevel, pusher)).With(zap.String("worker", "quiet_hours"))
	logger.Debug("dropped")
	logger.Info("tick finished", zap.Int("guilds", 3))
	logger.Error("tick failed")

	pusher.Stop()

	mu.Lock()
	defer mu.Unlock()

	require.Len(t, requests, 1)
	require.Len(t, requests[0].Streams, 1)
	assert.True(t, authOK)

	s := requests[0].Streams[0]
	assert.Equal(t, map[string]string{"app": "warden", "component": "worker"}, s.Stream)
	require.Len(t, s.Values, 2)

	var first map[string]any
	require.NoError(t, sonic.UnmarshalString(s.Values[0][1], &first))
	assert.Equal(t, "tick finished", first["msg"])
	assert.Equal(t, "quiet_hours", first["worker"])
	assert.InDelta(t, 3, first["guilds"], 0)
	assert.Contains(t, s.Values[1][1], "tick failed")
}

func TestStopIsIdempotent(t *testing.T) {
	t.Parallel()

	pusher := loki.NewPusher(&config.Loki{URL: "http://127.0.0.1:0"}, nil)
	pusher.Stop()
	pusher.Stop()
}
