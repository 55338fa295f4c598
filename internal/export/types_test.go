package export

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	t.Parallel()

	cases := map[string]Kind{
		"json":  KindJSONFile,
		" CSV ": KindCSVFile,
		"cloud": KindJSONToCloud,
		"s3":    KindJSONToCloud,
	}
	for raw, want := range cases {
		got, err := ParseKind(raw)
		require.NoError(t, err, raw)
		require.Equal(t, want, got)
	}
	_, err := ParseKind("xml")
	require.Error(t, err)
}

func TestKindArtifactNaming(t *testing.T) {
	t.Parallel()

	require.Equal(t, ".json", KindJSONFile.Extension())
	require.Equal(t, "application/json", KindJSONFile.MIMEType())
	require.Equal(t, ".csv", KindCSVFile.Extension())
	require.Equal(t, "text/csv", KindCSVFile.MIMEType())
	require.True(t, KindCSVFile.IsFile())
	require.False(t, KindJSONToCloud.IsFile())
}

func TestFilterSetCloneIsSnapshot(t *testing.T) {
	t.Parallel()

	live := FilterSet{FilterMethod: "GET", FilterEndpoint: ""}
	snap := live.Clone()
	live[FilterMethod] = "POST"

	require.Equal(t, FilterSet{FilterMethod: "GET"}, snap)
	require.True(t, FilterSet{FilterMethod: "GET", FilterStatusCode: " "}.Equal(snap))
	require.False(t, live.Equal(snap))
}

func TestStatusReportState(t *testing.T) {
	t.Parallel()

	st, err := StatusReport{Status: StatusRunning}.State()
	require.NoError(t, err)
	require.Equal(t, StateRunning, st)

	st, err = StatusReport{Status: StatusCompleted}.State()
	require.NoError(t, err)
	require.Equal(t, StateSucceeded, st)

	st, err = StatusReport{Status: StatusError}.State()
	require.NoError(t, err)
	require.Equal(t, StateFailed, st)

	_, err = StatusReport{Status: "queued"}.State()
	require.Error(t, err)
}

func TestClampProgress(t *testing.T) {
	t.Parallel()

	require.Equal(t, 0, ClampProgress(-3))
	require.Equal(t, 55, ClampProgress(55))
	require.Equal(t, 100, ClampProgress(140))
}

func TestErrorClassification(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	err := NewError(ErrPoll, KindCSVFile, "job-1", "", cause)

	require.ErrorIs(t, err, ErrPoll)
	require.ErrorIs(t, err, cause)
	require.NotErrorIs(t, err, ErrStart)
	require.Equal(t, ErrPoll, Classify(err))
	require.Equal(t, "export failed: connection refused", FailureMessage(err))

	failed := NewError(ErrJobFailed, KindJSONFile, "job-2", "disk full", nil)
	require.Equal(t, "export job failed: disk full", failed.Error())
	require.Equal(t, "export failed: disk full", FailureMessage(failed))
	require.Nil(t, Classify(cause))
}
