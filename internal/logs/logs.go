// Package logs defines the API request log records served by the log query
// endpoint and consumed by exports.
package logs

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/apilog-dashboard/internal/export"
)

// Entry is one recorded API request.
type Entry struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId,omitempty"`
	Endpoint     string    `json:"endpoint"`
	Method       string    `json:"method"`
	StatusCode   int       `json:"statusCode"`
	ResponseTime int64     `json:"responseTime"`
	Timestamp    time.Time `json:"timestamp"`
}

// Sortable columns.
const (
	SortEndpoint     = "endpoint"
	SortMethod       = "method"
	SortStatusCode   = "statusCode"
	SortResponseTime = "responseTime"
	SortTimestamp    = "timestamp"
)

// Query selects one page of log entries.
type Query struct {
	Page      int
	Limit     int
	SortBy    string
	SortOrder string
	Filters   export.FilterSet
}

// Page is one page of results plus the total number of matching entries.
type Page struct {
	Logs  []Entry `json:"logs"`
	Total int     `json:"total"`
}

// Store reads log entries.
type Store interface {
	Query(ctx context.Context, q Query) (Page, error)
}

// Normalize fills defaults and rejects unknown sort columns. Pages are 1-based.
func (q Query) Normalize() (Query, error) {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = 10
	}
	if q.SortBy == "" {
		q.SortBy = SortTimestamp
	}
	switch q.SortBy {
	case SortEndpoint, SortMethod, SortStatusCode, SortResponseTime, SortTimestamp:
	default:
		return Query{}, fmt.Errorf("unsupported sortBy %q", q.SortBy)
	}
	switch strings.ToLower(q.SortOrder) {
	case "":
		q.SortOrder = "desc"
	case "asc", "desc":
		q.SortOrder = strings.ToLower(q.SortOrder)
	default:
		return Query{}, fmt.Errorf("unsupported sortOrder %q", q.SortOrder)
	}
	q.Filters = q.Filters.Clone()
	return q, nil
}

// Offset returns the number of entries preceding the page.
func (q Query) Offset() int {
	if q.Page <= 1 {
		return 0
	}
	return (q.Page - 1) * q.Limit
}

// Criteria is a parsed FilterSet.
type Criteria struct {
	From       *time.Time
	To         *time.Time
	StatusCode *int
	Method     string
	Endpoint   string
}

// ParseCriteria validates the values of a FilterSet. Dates accept RFC 3339 or
// YYYY-MM-DD; a bare toDate covers the whole day.
func ParseCriteria(filters export.FilterSet) (Criteria, error) {
	var c Criteria
	if raw := filters[export.FilterDateFrom]; raw != "" {
		t, _, err := parseDate(raw)
		if err != nil {
			return Criteria{}, fmt.Errorf("%s: %w", export.FilterDateFrom, err)
		}
		c.From = &t
	}
	if raw := filters[export.FilterDateTo]; raw != "" {
		t, dateOnly, err := parseDate(raw)
		if err != nil {
			return Criteria{}, fmt.Errorf("%s: %w", export.FilterDateTo, err)
		}
		if dateOnly {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		c.To = &t
	}
	if raw := filters[export.FilterStatusCode]; raw != "" {
		code, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return Criteria{}, fmt.Errorf("%s: %w", export.FilterStatusCode, err)
		}
		c.StatusCode = &code
	}
	c.Method = strings.ToUpper(strings.TrimSpace(filters[export.FilterMethod]))
	c.Endpoint = strings.TrimSpace(filters[export.FilterEndpoint])
	return c, nil
}

// Match reports whether e satisfies every criterion. Endpoint matching is a
// case-insensitive substring test.
func (c Criteria) Match(e Entry) bool {
	if c.From != nil && e.Timestamp.Before(*c.From) {
		return false
	}
	if c.To != nil && e.Timestamp.After(*c.To) {
		return false
	}
	if c.StatusCode != nil && e.StatusCode != *c.StatusCode {
		return false
	}
	if c.Method != "" && !strings.EqualFold(e.Method, c.Method) {
		return false
	}
	if c.Endpoint != "" && !strings.Contains(strings.ToLower(e.Endpoint), strings.ToLower(c.Endpoint)) {
		return false
	}
	return true
}

func parseDate(raw string) (time.Time, bool, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, false, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid date %q", raw)
	}
	return t, true, nil
}
