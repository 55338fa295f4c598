package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/JakeFAU/apilog-dashboard/internal/logs"
)

var sortColumns = map[string]string{
	logs.SortEndpoint:     "endpoint",
	logs.SortMethod:       "method",
	logs.SortStatusCode:   "status_code",
	logs.SortResponseTime: "response_time_ms",
	logs.SortTimestamp:    "logged_at",
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// LogStore reads API request logs from Postgres.
type LogStore struct {
	db    DB
	table string
}

// NewLogStore wraps db. An empty table defaults to api_logs.
func NewLogStore(db DB, table string) (*LogStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table, "api_logs")
	if err != nil {
		return nil, err
	}
	return &LogStore{db: db, table: name}, nil
}

// Close releases the underlying pool resources.
func (s *LogStore) Close() {
	if s == nil || s.db == nil {
		return
	}
	s.db.Close()
}

// Query returns one page of matching entries plus the total match count.
func (s *LogStore) Query(ctx context.Context, q logs.Query) (logs.Page, error) {
	q, err := q.Normalize()
	if err != nil {
		return logs.Page{}, err
	}
	crit, err := logs.ParseCriteria(q.Filters)
	if err != nil {
		return logs.Page{}, err
	}
	where, args := whereClause(crit)

	var total int64
	countSQL := fmt.Sprintf("SELECT count(*) FROM %s%s", s.table, where)
	if err := s.db.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return logs.Page{}, fmt.Errorf("count logs: %w", err)
	}

	order := "DESC"
	if q.SortOrder == "asc" {
		order = "ASC"
	}
	pageSQL := fmt.Sprintf(`
SELECT id, user_id, endpoint, method, status_code, response_time_ms, logged_at
FROM %s%s
ORDER BY %s %s, id %s
LIMIT $%d OFFSET $%d`, s.table, where, sortColumns[q.SortBy], order, order, len(args)+1, len(args)+2)
	args = append(args, q.Limit, q.Offset())

	rows, err := s.db.Query(ctx, pageSQL, args...)
	if err != nil {
		return logs.Page{}, fmt.Errorf("query logs: %w", err)
	}
	defer rows.Close()

	page := logs.Page{Logs: []logs.Entry{}, Total: int(total)}
	for rows.Next() {
		var e logs.Entry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Endpoint, &e.Method, &e.StatusCode, &e.ResponseTime, &e.Timestamp); err != nil {
			return logs.Page{}, fmt.Errorf("scan log row: %w", err)
		}
		page.Logs = append(page.Logs, e)
	}
	if err := rows.Err(); err != nil {
		return logs.Page{}, fmt.Errorf("iterate logs: %w", err)
	}
	return page, nil
}

func whereClause(c logs.Criteria) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args))))
	}
	if c.From != nil {
		add("logged_at >= ?", *c.From)
	}
	if c.To != nil {
		add("logged_at <= ?", *c.To)
	}
	if c.StatusCode != nil {
		add("status_code = ?", *c.StatusCode)
	}
	if c.Method != "" {
		add("upper(method) = ?", c.Method)
	}
	if c.Endpoint != "" {
		add(`endpoint ILIKE '%' || ? || '%'`, likeEscaper.Replace(c.Endpoint))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
