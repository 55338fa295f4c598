package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/apilog-dashboard/internal/logs"
)

// LogStore serves request logs from memory.
type LogStore struct {
	mu      sync.RWMutex
	entries []logs.Entry
}

// NewLogStore returns a LogStore holding a copy of entries.
func NewLogStore(entries ...logs.Entry) *LogStore {
	s := &LogStore{}
	s.Append(entries...)
	return s
}

// Append records entries.
func (s *LogStore) Append(entries ...logs.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entries...)
}

// Query filters, sorts and pages the stored entries.
func (s *LogStore) Query(_ context.Context, q logs.Query) (logs.Page, error) {
	q, err := q.Normalize()
	if err != nil {
		return logs.Page{}, err
	}
	criteria, err := logs.ParseCriteria(q.Filters)
	if err != nil {
		return logs.Page{}, fmt.Errorf("parse filters: %w", err)
	}

	s.mu.RLock()
	matched := make([]logs.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if criteria.Match(e) {
			matched = append(matched, e)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		c := compare(matched[i], matched[j], q.SortBy)
		if q.SortOrder == "asc" {
			return c < 0
		}
		return c > 0
	})

	page := logs.Page{Logs: []logs.Entry{}, Total: len(matched)}
	start := q.Offset()
	if start >= len(matched) {
		return page, nil
	}
	end := start + q.Limit
	if end > len(matched) {
		end = len(matched)
	}
	page.Logs = append(page.Logs, matched[start:end]...)
	return page, nil
}

var _ logs.Analytics = (*LogStore)(nil)

// AvgResponseTime averages response times per endpoint.
func (s *LogStore) AvgResponseTime(context.Context) ([]logs.EndpointLatency, error) {
	return logs.AvgResponseTimes(s.snapshot()), nil
}

// StatusCodeBreakdown counts requests per status code.
func (s *LogStore) StatusCodeBreakdown(context.Context) ([]logs.StatusCount, error) {
	return logs.StatusBreakdown(s.snapshot()), nil
}

// RequestsPer counts requests per time bucket.
func (s *LogStore) RequestsPer(_ context.Context, g logs.Granularity) ([]logs.PeriodCount, error) {
	return logs.CountPer(s.snapshot(), g), nil
}

func (s *LogStore) snapshot() []logs.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]logs.Entry(nil), s.entries...)
}

func compare(a, b logs.Entry, field string) int {
	switch field {
	case logs.SortEndpoint:
		return strings.Compare(a.Endpoint, b.Endpoint)
	case logs.SortMethod:
		return strings.Compare(a.Method, b.Method)
	case logs.SortStatusCode:
		return a.StatusCode - b.StatusCode
	case logs.SortResponseTime:
		return int(a.ResponseTime - b.ResponseTime)
	default:
		return a.Timestamp.Compare(b.Timestamp)
	}
}

// SampleEntries returns n deterministic entries spread one minute apart
// ending at end. It seeds the development backend.
func SampleEntries(n int, end time.Time) []logs.Entry {
	endpoints := []string{"/api/users", "/api/orders", "/api/orders/42", "/api/login", "/api/health"}
	methods := []string{"GET", "POST", "GET", "PUT", "DELETE", "GET"}
	codes := []int{200, 201, 200, 404, 500, 200, 401}
	out := make([]logs.Entry, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, logs.Entry{
			ID:           fmt.Sprintf("log-%05d", i+1),
			Endpoint:     endpoints[i%len(endpoints)],
			Method:       methods[i%len(methods)],
			StatusCode:   codes[i%len(codes)],
			ResponseTime: int64(5 + (i*37)%400),
			Timestamp:    end.Add(-time.Duration(n-1-i) * time.Minute).UTC(),
		})
	}
	return out
}
