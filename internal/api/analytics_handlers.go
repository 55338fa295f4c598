package api

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/apilog-dashboard/internal/logs"
)

const analyticsTimeout = 5 * time.Second

// AnalyticsHandler serves the aggregate views of the request log.
type AnalyticsHandler struct {
	source  logs.Analytics
	timeout time.Duration
	logger  *zap.Logger
}

// NewAnalyticsHandler wires source, which may be nil.
func NewAnalyticsHandler(source logs.Analytics, logger *zap.Logger) *AnalyticsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalyticsHandler{source: source, timeout: analyticsTimeout, logger: logger}
}

// AvgResponseTime handles GET /api/analytics/avg-response-time and returns
// [{"_id": endpoint, "avgTime": ms}].
func (h *AnalyticsHandler) AvgResponseTime(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "avg-response-time", func(ctx context.Context) (any, error) {
		return h.source.AvgResponseTime(ctx)
	})
}

// StatusCodeBreakdown handles GET /api/analytics/status-code-breakdown and
// returns [{"_id": code, "count": n}].
func (h *AnalyticsHandler) StatusCodeBreakdown(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "status-code-breakdown", func(ctx context.Context) (any, error) {
		return h.source.StatusCodeBreakdown(ctx)
	})
}

// RequestsPer handles GET /api/analytics/requests-per-day?type=day|week|month
// and returns [{"_id": bucket, "count": n}]. An unknown type is a 400.
func (h *AnalyticsHandler) RequestsPer(w http.ResponseWriter, r *http.Request) {
	g, err := logs.ParseGranularity(r.URL.Query().Get("type"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.serve(w, r, "requests-per-"+string(g), func(ctx context.Context) (any, error) {
		return h.source.RequestsPer(ctx, g)
	})
}

func (h *AnalyticsHandler) serve(w http.ResponseWriter, r *http.Request, view string, fetch func(context.Context) (any, error)) {
	if h.source == nil {
		writeError(w, http.StatusServiceUnavailable, "analytics unavailable")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	result, err := fetch(ctx)
	if err != nil {
		h.logger.Error("analytics query failed", zap.String("view", view), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to compute analytics")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
