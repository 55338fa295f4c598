package worker

import (
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/apilog-dashboard/internal/export"
	"github.com/JakeFAU/apilog-dashboard/internal/logs"
)

func TestEncodeJSON(t *testing.T) {
	t.Parallel()

	data, err := Encode(export.KindJSONFile, nil)
	require.NoError(t, err)
	require.JSONEq(t, "[]", string(data))

	entry := logs.Entry{ID: "1", Endpoint: "/a", Method: "GET", StatusCode: 200, ResponseTime: 12, Timestamp: testEnd}
	data, err = Encode(export.KindJSONToCloud, []logs.Entry{entry})
	require.NoError(t, err)
	var decoded []logs.Entry
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, []logs.Entry{entry}, decoded)
}

func TestEncodeCSVQuotesFields(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	data, err := Encode(export.KindCSVFile, []logs.Entry{{
		ID:           "1",
		UserID:       "u-1",
		Endpoint:     `/search?q=a,b "c"`,
		Method:       "GET",
		StatusCode:   404,
		ResponseTime: 7,
		Timestamp:    ts,
	}})
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	require.NoError(t, err)
	require.Equal(t, [][]string{
		CSVHeader,
		{"1", "u-1", `/search?q=a,b "c"`, "GET", "404", "7", "2024-01-02T03:04:05Z"},
	}, records)
}

func TestEncodeRejectsUnknownKind(t *testing.T) {
	t.Parallel()

	_, err := Encode(export.Kind("xml"), nil)
	require.Error(t, err)
}
