package logs

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Granularity buckets request counts over time.
type Granularity string

// Supported granularities. Buckets are computed in UTC.
const (
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

// ParseGranularity accepts day, week or month. Empty means day.
func ParseGranularity(raw string) (Granularity, error) {
	switch g := Granularity(strings.ToLower(strings.TrimSpace(raw))); g {
	case "":
		return GranularityDay, nil
	case GranularityDay, GranularityWeek, GranularityMonth:
		return g, nil
	default:
		return "", fmt.Errorf("unsupported type %q", raw)
	}
}

// Label names the bucket holding t: 2024-05-01, 2024-W18 (ISO week) or
// 2024-05. Labels sort chronologically.
func (g Granularity) Label(t time.Time) string {
	t = t.UTC()
	switch g {
	case GranularityWeek:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case GranularityMonth:
		return t.Format("2006-01")
	default:
		return t.Format(time.DateOnly)
	}
}

// EndpointLatency is the mean response time of one endpoint in milliseconds.
type EndpointLatency struct {
	Endpoint string  `json:"_id"`
	AvgTime  float64 `json:"avgTime"`
}

// StatusCount is the number of requests answered with one status code.
type StatusCount struct {
	StatusCode int `json:"_id"`
	Count      int `json:"count"`
}

// PeriodCount is the number of requests in one time bucket.
type PeriodCount struct {
	Period string `json:"_id"`
	Count  int    `json:"count"`
}

// Analytics aggregates the request log for the dashboard charts. Results are
// ordered by their key.
type Analytics interface {
	AvgResponseTime(ctx context.Context) ([]EndpointLatency, error)
	StatusCodeBreakdown(ctx context.Context) ([]StatusCount, error)
	RequestsPer(ctx context.Context, g Granularity) ([]PeriodCount, error)
}

// AvgResponseTimes computes EndpointLatency rows over entries.
func AvgResponseTimes(entries []Entry) []EndpointLatency {
	type acc struct {
		sum int64
		n   int
	}
	byEndpoint := make(map[string]*acc)
	for _, e := range entries {
		a, ok := byEndpoint[e.Endpoint]
		if !ok {
			a = &acc{}
			byEndpoint[e.Endpoint] = a
		}
		a.sum += e.ResponseTime
		a.n++
	}
	out := make([]EndpointLatency, 0, len(byEndpoint))
	for endpoint, a := range byEndpoint {
		out = append(out, EndpointLatency{Endpoint: endpoint, AvgTime: float64(a.sum) / float64(a.n)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint < out[j].Endpoint })
	return out
}

// StatusBreakdown computes StatusCount rows over entries.
func StatusBreakdown(entries []Entry) []StatusCount {
	counts := make(map[int]int)
	for _, e := range entries {
		counts[e.StatusCode]++
	}
	out := make([]StatusCount, 0, len(counts))
	for code, n := range counts {
		out = append(out, StatusCount{StatusCode: code, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StatusCode < out[j].StatusCode })
	return out
}

// CountPer computes PeriodCount rows over entries.
func CountPer(entries []Entry, g Granularity) []PeriodCount {
	counts := make(map[string]int)
	for _, e := range entries {
		counts[g.Label(e.Timestamp)]++
	}
	out := make([]PeriodCount, 0, len(counts))
	for period, n := range counts {
		out = append(out, PeriodCount{Period: period, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period < out[j].Period })
	return out
}
