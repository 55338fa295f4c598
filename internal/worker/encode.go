package worker

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/JakeFAU/apilog-dashboard/internal/export"
	"github.com/JakeFAU/apilog-dashboard/internal/logs"
)

// CSVHeader is the first row of every CSV export.
var CSVHeader = []string{"id", "userId", "endpoint", "method", "statusCode", "responseTime", "timestamp"}

// Encode renders entries in the artifact format of kind. Cloud exports are
// JSON.
func Encode(kind export.Kind, entries []logs.Entry) ([]byte, error) {
	if entries == nil {
		entries = []logs.Entry{}
	}
	switch kind {
	case export.KindCSVFile:
		return encodeCSV(entries)
	case export.KindJSONFile, export.KindJSONToCloud:
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode json: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("encode: unsupported kind %q", kind)
	}
}

func encodeCSV(entries []logs.Entry) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(CSVHeader); err != nil {
		return nil, fmt.Errorf("encode csv: %w", err)
	}
	for _, e := range entries {
		record := []string{
			e.ID,
			e.UserID,
			e.Endpoint,
			e.Method,
			strconv.Itoa(e.StatusCode),
			strconv.FormatInt(e.ResponseTime, 10),
			e.Timestamp.UTC().Format(time.RFC3339Nano),
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("encode csv: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("encode csv: %w", err)
	}
	return buf.Bytes(), nil
}
