package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/apilog-dashboard/internal/logs"
)

// periodFormats are to_char patterns matching logs.Granularity labels.
var periodFormats = map[logs.Granularity]string{
	logs.GranularityDay:   "YYYY-MM-DD",
	logs.GranularityWeek:  `IYYY-"W"IW`,
	logs.GranularityMonth: "YYYY-MM",
}

var _ logs.Analytics = (*LogStore)(nil)

// AvgResponseTime averages response_time_ms per endpoint.
func (s *LogStore) AvgResponseTime(ctx context.Context) ([]logs.EndpointLatency, error) {
	sql := fmt.Sprintf(`
SELECT endpoint, avg(response_time_ms)::float8
FROM %s
GROUP BY endpoint
ORDER BY endpoint`, s.table)
	rows, err := s.db.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("query avg response time: %w", err)
	}
	return collect(rows, func(r pgx.Rows) (logs.EndpointLatency, error) {
		var out logs.EndpointLatency
		err := r.Scan(&out.Endpoint, &out.AvgTime)
		return out, err
	})
}

// StatusCodeBreakdown counts rows per status_code.
func (s *LogStore) StatusCodeBreakdown(ctx context.Context) ([]logs.StatusCount, error) {
	sql := fmt.Sprintf(`
SELECT status_code, count(*)
FROM %s
GROUP BY status_code
ORDER BY status_code`, s.table)
	rows, err := s.db.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("query status breakdown: %w", err)
	}
	return collect(rows, func(r pgx.Rows) (logs.StatusCount, error) {
		var (
			out   logs.StatusCount
			count int64
		)
		err := r.Scan(&out.StatusCode, &count)
		out.Count = int(count)
		return out, err
	})
}

// RequestsPer counts rows per UTC time bucket.
func (s *LogStore) RequestsPer(ctx context.Context, g logs.Granularity) ([]logs.PeriodCount, error) {
	format, ok := periodFormats[g]
	if !ok {
		return nil, fmt.Errorf("unsupported granularity %q", g)
	}
	sql := fmt.Sprintf(`
SELECT to_char(logged_at AT TIME ZONE 'UTC', $1) AS period, count(*)
FROM %s
GROUP BY period
ORDER BY period`, s.table)
	rows, err := s.db.Query(ctx, sql, format)
	if err != nil {
		return nil, fmt.Errorf("query requests per %s: %w", g, err)
	}
	return collect(rows, func(r pgx.Rows) (logs.PeriodCount, error) {
		var (
			out   logs.PeriodCount
			count int64
		)
		err := r.Scan(&out.Period, &count)
		out.Count = int(count)
		return out, err
	})
}

func collect[T any](rows pgx.Rows, scan func(pgx.Rows) (T, error)) ([]T, error) {
	defer rows.Close()
	out := []T{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan analytics row: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analytics rows: %w", err)
	}
	return out, nil
}
