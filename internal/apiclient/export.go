package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/JakeFAU/apilog-dashboard/internal/export"
)

var _ export.JobClient = (*ExportClient)(nil)

// ExportClient issues the start/status/download calls for one export kind.
type ExportClient struct {
	c    *Client
	kind export.Kind
}

// Export returns the job client for kind.
func (c *Client) Export(kind export.Kind) (*ExportClient, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown export kind %q", kind)
	}
	return &ExportClient{c: c, kind: kind}, nil
}

// Kind returns the export kind this client targets.
func (e *ExportClient) Kind() export.Kind {
	return e.kind
}

type startResponse struct {
	JobID string `json:"jobId"`
}

// Start enqueues an export. Filters travel as query parameters.
func (e *ExportClient) Start(ctx context.Context, filters export.FilterSet) (string, error) {
	query := url.Values{}
	for k, v := range filters.Clone() {
		query.Set(k, v)
	}
	req, err := e.c.newRequest(ctx, http.MethodPost, query, "logs", "export", string(e.kind))
	if err != nil {
		return "", export.NewError(export.ErrStart, e.kind, "", "", err)
	}
	var resp startResponse
	if err := e.c.do(req, &resp); err != nil {
		return "", export.NewError(export.ErrStart, e.kind, "", "", err)
	}
	if resp.JobID == "" {
		return "", export.NewError(export.ErrStart, e.kind, "", "backend returned no job id", nil)
	}
	return resp.JobID, nil
}

// Status fetches the current status of jobID. It never retries.
func (e *ExportClient) Status(ctx context.Context, jobID string) (export.StatusReport, error) {
	req, err := e.c.newRequest(ctx, http.MethodGet, nil, "logs", "export", string(e.kind), "status", jobID)
	if err != nil {
		return export.StatusReport{}, export.NewError(export.ErrPoll, e.kind, jobID, "", err)
	}
	var report export.StatusReport
	if err := e.c.do(req, &report); err != nil {
		return export.StatusReport{}, export.NewError(export.ErrPoll, e.kind, jobID, "", err)
	}
	return report, nil
}

// Download fetches the artifact bytes. Cloud exports have no download
// endpoint.
func (e *ExportClient) Download(ctx context.Context, jobID string) ([]byte, error) {
	if !e.kind.IsFile() {
		return nil, export.NewError(export.ErrDownload, e.kind, jobID, "", export.ErrDownloadUnsupported)
	}
	req, err := e.c.newRequest(ctx, http.MethodGet, nil, "logs", "export", string(e.kind), "download", jobID)
	if err != nil {
		return nil, export.NewError(export.ErrDownload, e.kind, jobID, "", err)
	}
	req.Header.Set("Accept", e.kind.MIMEType())
	data, err := e.c.doRaw(req)
	if err != nil {
		return nil, export.NewError(export.ErrDownload, e.kind, jobID, "", err)
	}
	return data, nil
}

// Cancel asks the backend to abandon jobID. A job the backend no longer knows
// about counts as cancelled.
func (e *ExportClient) Cancel(ctx context.Context, jobID string) error {
	req, err := e.c.newRequest(ctx, http.MethodDelete, nil, "logs", "export", string(e.kind), jobID)
	if err != nil {
		return err
	}
	if err := e.c.do(req, nil); err != nil {
		if IsStatus(err, http.StatusNotFound) {
			return nil
		}
		return fmt.Errorf("cancel export %s: %w", jobID, err)
	}
	return nil
}

// Set resolves a JobClient per kind from one shared request layer.
type Set struct {
	clients map[export.Kind]*ExportClient
}

var _ export.ClientSet = (*Set)(nil)

// NewSet builds job clients for every supported kind.
func NewSet(c *Client) *Set {
	s := &Set{clients: make(map[export.Kind]*ExportClient, len(export.Kinds()))}
	for _, kind := range export.Kinds() {
		s.clients[kind] = &ExportClient{c: c, kind: kind}
	}
	return s
}

// ErrUnknownKind is returned by Set.For for unsupported kinds.
var ErrUnknownKind = errors.New("unknown export kind")

// For returns the job client for kind.
func (s *Set) For(kind export.Kind) (export.JobClient, error) {
	ec, ok := s.clients[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return ec, nil
}
