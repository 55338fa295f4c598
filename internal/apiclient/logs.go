package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/JakeFAU/apilog-dashboard/internal/logs"
)

// LogsClient queries the paginated request log.
type LogsClient struct {
	c *Client
}

var _ logs.Store = (*LogsClient)(nil)

// Logs returns a LogsClient sharing this request layer.
func (c *Client) Logs() *LogsClient {
	return &LogsClient{c: c}
}

// Query fetches one page of log entries.
func (l *LogsClient) Query(ctx context.Context, q logs.Query) (logs.Page, error) {
	q, err := q.Normalize()
	if err != nil {
		return logs.Page{}, err
	}
	params := url.Values{}
	params.Set("page", strconv.Itoa(q.Page))
	params.Set("limit", strconv.Itoa(q.Limit))
	params.Set("sortBy", q.SortBy)
	params.Set("sortOrder", q.SortOrder)
	for k, v := range q.Filters {
		params.Set(k, v)
	}
	req, err := l.c.newRequest(ctx, http.MethodGet, params, "logs")
	if err != nil {
		return logs.Page{}, err
	}
	var page logs.Page
	if err := l.c.do(req, &page); err != nil {
		return logs.Page{}, fmt.Errorf("query logs: %w", err)
	}
	if page.Logs == nil {
		page.Logs = []logs.Entry{}
	}
	return page, nil
}
