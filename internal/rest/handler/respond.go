package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/disgoorg/snowflake/v2"
	dbTypes "github.com/robalyx/warden/internal/database/types"
	"github.com/robalyx/warden/internal/rest/types"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

var (
	errInvalidGuildID = errors.New("invalid guild id")
	errInvalidPage    = errors.New("skip and limit must be non-negative integers")
)

// writeJSON encodes v as the response body.
func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	return sonic.ConfigDefault.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) error {
	return writeJSON(w, status, types.ErrorResponse{Error: msg})
}

// writeStoreError maps a persistence failure to a response.
func writeStoreError(w http.ResponseWriter, logger *zap.Logger, msg string, err error) error {
	if errors.Is(err, dbTypes.ErrStoreUnavailable) {
		logger.Warn(msg, zap.Error(err))
		return writeError(w, http.StatusServiceUnavailable, "Storage temporarily unavailable")
	}

	logger.Error(msg, zap.Error(err))
	return writeError(w, http.StatusInternalServerError, "Internal server error")
}

func guildID(req bunrouter.Request) (snowflake.ID, error) {
	id, err := snowflake.Parse(req.Param("id"))
	if err != nil || id == 0 {
		return 0, errInvalidGuildID
	}
	return id, nil
}

// page reads skip and limit from the query. A missing or zero limit means
// types.DefaultLimit and larger limits are capped at types.MaxLimit.
func page(req bunrouter.Request) (types.Page, error) {
	p := types.Page{Limit: types.DefaultLimit}
	query := req.URL.Query()

	if raw := query.Get("skip"); raw != "" {
		skip, err := strconv.Atoi(raw)
		if err != nil || skip < 0 {
			return p, errInvalidPage
		}
		p.Skip = skip
	}

	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return p, errInvalidPage
		}
		if limit > 0 {
			p.Limit = min(limit, types.MaxLimit)
		}
	}

	return p, nil
}
