// Package export defines the core types shared by the export-job orchestrator.
package export

import (
	"fmt"
	"strings"
	"time"
)

// Kind selects the export variant and with it the backend endpoints and the
// completion action.
type Kind string

// Supported export kinds.
const (
	KindJSONFile    Kind = "json"
	KindCSVFile     Kind = "csv"
	KindJSONToCloud Kind = "cloud"
)

// Kinds lists every supported export kind.
func Kinds() []Kind {
	return []Kind{KindJSONFile, KindCSVFile, KindJSONToCloud}
}

// ParseKind maps a user supplied name onto a Kind.
func ParseKind(raw string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "json", "json-file":
		return KindJSONFile, nil
	case "csv", "csv-file":
		return KindCSVFile, nil
	case "cloud", "json-cloud", "s3", "gcs":
		return KindJSONToCloud, nil
	default:
		return "", fmt.Errorf("unknown export kind %q", raw)
	}
}

// Valid reports whether k is one of the supported kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindJSONFile, KindCSVFile, KindJSONToCloud:
		return true
	default:
		return false
	}
}

// IsFile reports whether the kind produces bytes that are saved locally.
func (k Kind) IsFile() bool {
	return k == KindJSONFile || k == KindCSVFile
}

// MIMEType returns the content type of the saved artifact.
func (k Kind) MIMEType() string {
	if k == KindCSVFile {
		return "text/csv"
	}
	return "application/json"
}

// Extension returns the filename suffix of the saved artifact, dot included.
func (k Kind) Extension() string {
	if k == KindCSVFile {
		return ".csv"
	}
	return ".json"
}

// Filter keys understood by the log API. The wire names match the dashboard's
// query parameters.
const (
	FilterDateFrom   = "fromDate"
	FilterDateTo     = "toDate"
	FilterStatusCode = "statusCode"
	FilterMethod     = "method"
	FilterEndpoint   = "endpoint"
)

// FilterKeys lists the recognized filter keys in display order.
func FilterKeys() []string {
	return []string{FilterDateFrom, FilterDateTo, FilterStatusCode, FilterMethod, FilterEndpoint}
}

// FilterSet maps filter keys to values. Every key is optional; empty values
// are treated as absent.
type FilterSet map[string]string

// Clone returns an independent snapshot with empty values removed.
func (f FilterSet) Clone() FilterSet {
	out := make(FilterSet, len(f))
	for k, v := range f {
		if strings.TrimSpace(v) == "" {
			continue
		}
		out[k] = v
	}
	return out
}

// Equal reports whether both sets carry the same non-empty values.
func (f FilterSet) Equal(other FilterSet) bool {
	a, b := f.Clone(), other.Clone()
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

// State is the lifecycle state of a Job.
type State string

// Job states. Starting and Running are live; the rest are terminal.
const (
	StateStarting  State = "starting"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Live reports whether the state still occupies the session's job slot.
func (s State) Live() bool {
	return s == StateStarting || s == StateRunning
}

// Terminal reports whether no further progress can occur.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// Artifact is the product of a successful export: either bytes to save
// locally or a retrieval URL.
type Artifact struct {
	Data     []byte
	URL      string
	Filename string
	MIMEType string
}

// Job identifies one in-flight or completed export.
type Job struct {
	ID        string
	Kind      Kind
	State     State
	Progress  int
	Filters   FilterSet
	Artifact  *Artifact
	Err       error
	StartedAt time.Time
}

// Status values reported by the backend polling endpoint.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusError     = "error"
)

// StatusReport is one decoded response from the status endpoint.
type StatusReport struct {
	Progress    int    `json:"progress"`
	Status      string `json:"status"`
	DownloadURL string `json:"downloadUrl,omitempty"`
	Error       string `json:"error,omitempty"`
}

// State maps the backend status string onto a Job state.
func (r StatusReport) State() (State, error) {
	switch r.Status {
	case StatusRunning:
		return StateRunning, nil
	case StatusCompleted:
		return StateSucceeded, nil
	case StatusError:
		return StateFailed, nil
	default:
		return "", fmt.Errorf("unexpected job status %q", r.Status)
	}
}

// Result is the terminal outcome delivered by a poll loop.
type Result struct {
	JobID       string
	State       State
	Progress    int
	DownloadURL string
	Err         error
}

// ClampProgress bounds a backend reported percentage to [0,100].
func ClampProgress(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
