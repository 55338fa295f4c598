package local_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/apilog-dashboard/internal/storage/local"
)

func TestFileSaverSave(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	saver, err := local.NewFileSaver(dir)
	require.NoError(t, err)

	path, err := saver.Save(context.Background(), "logs_export.json", "application/json", []byte(`[{"id":"1"}]`))
	require.NoError(t, err)
	require.True(t, filepath.IsAbs(path))
	require.Equal(t, "logs_export.json", filepath.Base(path))

	// #nosec G304 -- test reads from the controlled temp directory.
	got, err := os.ReadFile(filepath.Join(dir, "logs_export.json"))
	require.NoError(t, err)
	require.Equal(t, `[{"id":"1"}]`, string(got))

	_, err = saver.Save(context.Background(), "logs_export.json", "application/json", []byte(`[]`))
	require.NoError(t, err)
	// #nosec G304 -- test reads from the controlled temp directory.
	got, err = os.ReadFile(filepath.Join(dir, "logs_export.json"))
	require.NoError(t, err)
	require.Equal(t, `[]`, string(got))
}

func TestFileSaverRejectsPaths(t *testing.T) {
	t.Parallel()

	saver, err := local.NewFileSaver(t.TempDir())
	require.NoError(t, err)
	for _, name := range []string{"", "../x.json", "a/b.json", ".."} {
		_, err := saver.Save(context.Background(), name, "application/json", nil)
		require.Error(t, err, name)
	}
}

func TestFileSaverHonorsCancel(t *testing.T) {
	t.Parallel()

	saver, err := local.NewFileSaver(t.TempDir())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = saver.Save(ctx, "logs_export.csv", "text/csv", []byte("a"))
	require.ErrorIs(t, err, context.Canceled)
}
