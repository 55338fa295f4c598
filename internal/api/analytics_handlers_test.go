package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/apilog-dashboard/internal/logs"
	"github.com/JakeFAU/apilog-dashboard/internal/telemetry"
)

func TestAnalyticsEndpoints(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/analytics/status-code-breakdown", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var codes []struct {
		ID    int `json:"_id"`
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &codes))
	require.Len(t, codes, 5)
	require.Equal(t, 200, codes[0].ID)
	require.Equal(t, 6, codes[0].Count)

	rec = env.do(t, http.MethodGet, "/api/analytics/avg-response-time", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var latency []struct {
		ID      string  `json:"_id"`
		AvgTime float64 `json:"avgTime"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &latency))
	require.Len(t, latency, 5)
	require.Equal(t, "/api/health", latency[0].ID)
	require.Positive(t, latency[0].AvgTime)

	rec = env.do(t, http.MethodGet, "/api/analytics/requests-per-day?type=month", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[{"_id":"2024-05","count":14}]`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/analytics/requests-per-day", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[{"_id":"2024-05-01","count":14}]`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/analytics/requests-per-day?type=hour", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "unsupported type")
}

type brokenAnalytics struct{ err error }

func (b brokenAnalytics) Query(context.Context, logs.Query) (logs.Page, error) {
	return logs.Page{}, b.err
}
func (b brokenAnalytics) AvgResponseTime(context.Context) ([]logs.EndpointLatency, error) {
	return nil, b.err
}
func (b brokenAnalytics) StatusCodeBreakdown(context.Context) ([]logs.StatusCount, error) {
	return nil, b.err
}
func (b brokenAnalytics) RequestsPer(context.Context, logs.Granularity) ([]logs.PeriodCount, error) {
	return nil, b.err
}

type plainStore struct{}

func (plainStore) Query(context.Context, logs.Query) (logs.Page, error) { return logs.Page{}, nil }

func TestAnalyticsFailures(t *testing.T) {
	t.Parallel()

	broken := NewAnalyticsHandler(brokenAnalytics{err: errors.New("db down")}, zap.NewNop())
	rec := httptest.NewRecorder()
	broken.StatusCodeBreakdown(rec, httptest.NewRequest(http.MethodGet, "/api/analytics/status-code-breakdown", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "db down")

	require.Nil(t, analyticsOf(plainStore{}))
	require.NotNil(t, analyticsOf(brokenAnalytics{}))

	missing := NewAnalyticsHandler(nil, nil)
	rec = httptest.NewRecorder()
	missing.AvgResponseTime(rec, httptest.NewRequest(http.MethodGet, "/api/analytics/avg-response-time", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSubmitExportPropagatesIncomingTrace(t *testing.T) {
	tp, err := telemetry.InitTracerProvider(context.Background(), "apilog-test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodPost, "/api/logs/export/json", http.Header{
		"Traceparent": {"00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	item, err := env.queue.Dequeue(context.Background())
	require.NoError(t, err)
	require.Contains(t, item.Trace["traceparent"], "4bf92f3577b34da6a3ce929d0e0e4736")
	require.NotContains(t, item.Trace["traceparent"], "00f067aa0ba902b7")
}
