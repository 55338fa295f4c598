package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
)

//go:embed schema.sql
var schemaSQL string

// EnsureSchema creates the log and job tables when they are missing.
func EnsureSchema(ctx context.Context, db DB, logsTable, jobsTable string) error {
	logsName, err := tableName(logsTable, "api_logs")
	if err != nil {
		return err
	}
	jobsName, err := tableName(jobsTable, "export_jobs")
	if err != nil {
		return err
	}
	ddl := strings.NewReplacer("{{logs}}", logsName, "{{jobs}}", jobsName).Replace(schemaSQL)
	for _, stmt := range strings.Split(ddl, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
