// Package logging includes tests for the zap logger helpers.
package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// TestNewDevelopmentLogger confirms the development logger builds and logs.
func TestNewDevelopmentLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(true)
	require.NoError(t, err)
	require.NotNil(t, logger)
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Info("development logger ready")
}

// TestNewProductionLogger ensures the production logger configuration succeeds.
func TestNewProductionLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(false)
	require.NoError(t, err)
	require.NotNil(t, logger)
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Info("production logger ready")
}

func TestNamedHandlesNil(t *testing.T) {
	t.Parallel()

	require.NotNil(t, Named(nil, "session"))

	core, logs := observer.New(zap.InfoLevel)
	Named(zap.New(core), "poller").Info("tick", JobFields("csv", "job-1")...)

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, "poller", entries[0].LoggerName)
	fields := entries[0].ContextMap()
	require.Equal(t, "csv", fields["kind"])
	require.Equal(t, "job-1", fields["job_id"])
}

func TestJobFieldsOmitsEmptyID(t *testing.T) {
	t.Parallel()

	require.Len(t, JobFields("json", ""), 1)
}
