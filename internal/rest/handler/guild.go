package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/warden/internal/database"
	dbTypes "github.com/robalyx/warden/internal/database/types"
	"github.com/robalyx/warden/internal/rest/types"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

// statsWindowDays is the window covered by the recent counts of the stats endpoint.
const statsWindowDays = 7

// maxSettingsBody caps the size of a settings update.
const maxSettingsBody = 64 << 10

// GuildHandler serves guild policy, statistics and moderation history.
type GuildHandler struct {
	db     database.Client
	logger *zap.Logger
	now    func() time.Time
}

// NewGuildHandler creates a new guild handler.
func NewGuildHandler(db database.Client, logger *zap.Logger) *GuildHandler {
	return &GuildHandler{
		db:     db,
		logger: logger.Named("guild_handler"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ListGuilds returns the policy of every known guild.
func (h *GuildHandler) ListGuilds(w http.ResponseWriter, req bunrouter.Request) error {
	configs, err := h.db.Model().GuildConfig().List(req.Context())
	if err != nil {
		return writeStoreError(w, h.logger, "Failed to list guilds", err)
	}

	return writeJSON(w, http.StatusOK, types.GuildsResponse{Guilds: configs})
}

// GetSettings returns the guild's policy, creating the default one on first access.
func (h *GuildHandler) GetSettings(w http.ResponseWriter, req bunrouter.Request) error {
	id, err := guildID(req)
	if err != nil {
		return writeError(w, http.StatusBadRequest, err.Error())
	}

	cfg, err := h.db.Model().GuildConfig().Get(req.Context(), id)
	if err != nil {
		return writeStoreError(w, h.logger, "Failed to get guild settings", err)
	}

	return writeJSON(w, http.StatusOK, cfg)
}

// UpdateSettings applies a partial JSON update to the guild's policy.
// The merged policy is validated and nothing is written when it is invalid.
func (h *GuildHandler) UpdateSettings(w http.ResponseWriter, req bunrouter.Request) error {
	id, err := guildID(req)
	if err != nil {
		return writeError(w, http.StatusBadRequest, err.Error())
	}

	var update dbTypes.GuildConfigUpdate

	decoder := sonic.ConfigDefault.NewDecoder(http.MaxBytesReader(w, req.Body, maxSettingsBody))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&update); err != nil {
		return writeError(w, http.StatusBadRequest, "Invalid settings body")
	}

	cfg, err := h.db.Model().GuildConfig().Update(req.Context(), id, &update)
	if err != nil {
		if errors.Is(err, dbTypes.ErrInvalidGuildConfig) {
			return writeError(w, http.StatusBadRequest, err.Error())
		}
		return writeStoreError(w, h.logger, "Failed to update guild settings", err)
	}

	h.logger.Info("Updated guild settings", zap.Uint64("guildID", uint64(id)))

	return writeJSON(w, http.StatusOK, cfg)
}

// GetStats summarizes the guild over the last week.
func (h *GuildHandler) GetStats(w http.ResponseWriter, req bunrouter.Request) error {
	id, err := guildID(req)
	if err != nil {
		return writeError(w, http.StatusBadRequest, err.Error())
	}

	now := h.now()
	stats := h.db.Service().Stats()

	summary, err := stats.GetGuildStats(req.Context(), id, now, statsWindowDays*24*time.Hour)
	if err != nil {
		return writeStoreError(w, h.logger, "Failed to get guild stats", err)
	}

	strikes, actions, err := stats.GetDailyActivity(req.Context(), id, now, statsWindowDays)
	if err != nil {
		return writeStoreError(w, h.logger, "Failed to get daily activity", err)
	}

	daily := make([]types.DailyActivity, len(strikes))
	for i := range strikes {
		daily[i] = types.DailyActivity{
			Day:     strikes[i].Day.Format(time.DateOnly),
			Strikes: strikes[i].Count,
			Actions: actions[i].Count,
		}
	}

	return writeJSON(w, http.StatusOK, types.StatsResponse{
		GuildID:    id.String(),
		WindowDays: statsWindowDays,
		Stats:      summary,
		Daily:      daily,
		Timestamp:  now,
	})
}

// ListMembers returns a page of member records.
func (h *GuildHandler) ListMembers(w http.ResponseWriter, req bunrouter.Request) error {
	id, p, ok := h.listParams(w, req)
	if !ok {
		return nil
	}

	members, err := h.db.Model().Member().List(req.Context(), id, p.Skip, p.Limit)
	if err != nil {
		return writeStoreError(w, h.logger, "Failed to list members", err)
	}

	return writeJSON(w, http.StatusOK, types.MembersResponse{Page: p, Members: members})
}

// ListStrikes returns a page of strikes, newest first.
func (h *GuildHandler) ListStrikes(w http.ResponseWriter, req bunrouter.Request) error {
	id, p, ok := h.listParams(w, req)
	if !ok {
		return nil
	}

	strikes, err := h.db.Model().Strike().List(req.Context(), id, p.Skip, p.Limit)
	if err != nil {
		return writeStoreError(w, h.logger, "Failed to list strikes", err)
	}

	return writeJSON(w, http.StatusOK, types.StrikesResponse{Page: p, Strikes: strikes})
}

// ListActions returns a page of moderation actions, newest first.
func (h *GuildHandler) ListActions(w http.ResponseWriter, req bunrouter.Request) error {
	id, p, ok := h.listParams(w, req)
	if !ok {
		return nil
	}

	actions, err := h.db.Model().ModAction().List(req.Context(), id, p.Skip, p.Limit)
	if err != nil {
		return writeStoreError(w, h.logger, "Failed to list moderation actions", err)
	}

	return writeJSON(w, http.StatusOK, types.ActionsResponse{Page: p, Actions: actions})
}

// listParams parses the guild ID and page, writing a 400 response on failure.
func (h *GuildHandler) listParams(w http.ResponseWriter, req bunrouter.Request) (snowflake.ID, types.Page, bool) {
	id, err := guildID(req)
	if err != nil {
		_ = writeError(w, http.StatusBadRequest, err.Error())
		return 0, types.Page{}, false
	}

	p, err := page(req)
	if err != nil {
		_ = writeError(w, http.StatusBadRequest, err.Error())
		return 0, p, false
	}

	return id, p, true
}
