package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/robalyx/warden/internal/database"
	"github.com/robalyx/warden/internal/rest/types"
	"github.com/robalyx/warden/internal/worker/core"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

const pingTimeout = 2 * time.Second

// StatusSource lists the heartbeats of the scheduled workers.
type StatusSource interface {
	GetAllStatuses(ctx context.Context) ([]core.Status, error)
}

// HealthHandler reports whether the service and its workers are alive.
type HealthHandler struct {
	db      database.Client
	workers StatusSource
	logger  *zap.Logger
	now     func() time.Time
}

// NewHealthHandler creates a health handler. workers may be nil when no
// status store is configured.
func NewHealthHandler(db database.Client, workers StatusSource, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:      db,
		workers: workers,
		logger:  logger.Named("health_handler"),
		now:     time.Now,
	}
}

// GetHealth returns 200 when the database answers and 503 otherwise.
// Stale or unhealthy workers degrade the status without failing the check.
func (h *HealthHandler) GetHealth(w http.ResponseWriter, req bunrouter.Request) error {
	resp := types.HealthResponse{
		Status:   types.HealthOK,
		Database: "ok",
		Workers:  []types.WorkerHealth{},
	}
	code := http.StatusOK

	ctx, cancel := context.WithTimeout(req.Context(), pingTimeout)
	defer cancel()

	if err := h.db.DB().PingContext(ctx); err != nil {
		h.logger.Warn("Database ping failed", zap.Error(err))
		resp.Status = types.HealthDegraded
		resp.Database = "unreachable"
		code = http.StatusServiceUnavailable
	}

	if h.workers != nil {
		statuses, err := h.workers.GetAllStatuses(ctx)
		if err != nil {
			h.logger.Warn("Failed to get worker statuses", zap.Error(err))
			resp.Status = types.HealthDegraded
		}

		now := h.now()
		for _, status := range statuses {
			stale := status.IsStale(now)
			healthy := status.IsHealthy()
			if stale || !healthy {
				resp.Status = types.HealthDegraded
			}
			resp.Workers = append(resp.Workers, types.WorkerHealth{Status: status, Healthy: healthy, Stale: stale})
		}
	}

	return writeJSON(w, code, resp)
}
