package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/apilog-dashboard/internal/logs"
)

const (
	defaultLogLimit = 10
	maxLogLimit     = 500
	logsTimeout     = 3 * time.Second
)

// LogsHandler exposes the read-only request log endpoint.
type LogsHandler struct {
	store   logs.Store
	timeout time.Duration
	logger  *zap.Logger
}

// NewLogsHandler wires the store and logger.
func NewLogsHandler(store logs.Store, logger *zap.Logger) *LogsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogsHandler{
		store:   store,
		timeout: logsTimeout,
		logger:  logger,
	}
}

// List handles GET /api/logs?page=&limit=&sortBy=&sortOrder= plus the export
// filter keys. It returns {"logs": [...], "total": n}, 400 for invalid
// parameters, 503 when no store is configured, or 500 if the query fails.
func (h *LogsHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "log store unavailable")
		return
	}
	page, limit, err := parsePageLimit(r, defaultLogLimit, maxLogLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q, err := logs.Query{
		Page:      page,
		Limit:     limit,
		SortBy:    r.URL.Query().Get("sortBy"),
		SortOrder: r.URL.Query().Get("sortOrder"),
		Filters:   filtersFromQuery(r),
	}.Normalize()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := logs.ParseCriteria(q.Filters); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	result, err := h.store.Query(ctx, q)
	if err != nil {
		h.logger.Error("query logs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to query logs")
		return
	}
	if result.Logs == nil {
		result.Logs = []logs.Entry{}
	}
	writeJSON(w, http.StatusOK, result)
}

func parsePageLimit(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	page := 1
	if pageStr := q.Get("page"); pageStr != "" {
		val, err := strconv.Atoi(pageStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid page")
		}
		page = val
	}
	return page, limit, nil
}
