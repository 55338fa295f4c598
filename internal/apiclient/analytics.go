package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/JakeFAU/apilog-dashboard/internal/logs"
)

// AnalyticsClient reads the aggregate views under /analytics.
type AnalyticsClient struct {
	c *Client
}

var _ logs.Analytics = (*AnalyticsClient)(nil)

// Analytics returns an AnalyticsClient sharing this request layer.
func (c *Client) Analytics() *AnalyticsClient {
	return &AnalyticsClient{c: c}
}

// AvgResponseTime fetches the mean latency per endpoint.
func (a *AnalyticsClient) AvgResponseTime(ctx context.Context) ([]logs.EndpointLatency, error) {
	var out []logs.EndpointLatency
	if err := a.get(ctx, nil, &out, "avg-response-time"); err != nil {
		return nil, err
	}
	return out, nil
}

// StatusCodeBreakdown fetches the request count per status code.
func (a *AnalyticsClient) StatusCodeBreakdown(ctx context.Context) ([]logs.StatusCount, error) {
	var out []logs.StatusCount
	if err := a.get(ctx, nil, &out, "status-code-breakdown"); err != nil {
		return nil, err
	}
	return out, nil
}

// RequestsPer fetches request counts bucketed by g.
func (a *AnalyticsClient) RequestsPer(ctx context.Context, g logs.Granularity) ([]logs.PeriodCount, error) {
	params := url.Values{}
	if g != "" {
		params.Set("type", string(g))
	}
	var out []logs.PeriodCount
	if err := a.get(ctx, params, &out, "requests-per-day"); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *AnalyticsClient) get(ctx context.Context, params url.Values, out any, view string) error {
	req, err := a.c.newRequest(ctx, http.MethodGet, params, "analytics", view)
	if err != nil {
		return err
	}
	if err := a.c.do(req, out); err != nil {
		return fmt.Errorf("analytics %s: %w", view, err)
	}
	return nil
}
