package outcome

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/apilog-dashboard/internal/export"
)

type fakeClient struct {
	data      []byte
	err       error
	downloads int
}

func (c *fakeClient) Start(context.Context, export.FilterSet) (string, error) { return "", nil }
func (c *fakeClient) Status(context.Context, string) (export.StatusReport, error) {
	return export.StatusReport{}, nil
}
func (c *fakeClient) Cancel(context.Context, string) error { return nil }
func (c *fakeClient) Download(context.Context, string) ([]byte, error) {
	c.downloads++
	return c.data, c.err
}

type savedFile struct {
	name, mime string
	data       []byte
}

type fakeSaver struct {
	saved []savedFile
	err   error
}

func (s *fakeSaver) Save(_ context.Context, name, mime string, data []byte) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.saved = append(s.saved, savedFile{name: name, mime: mime, data: data})
	return "/out/" + name, nil
}

type fakePresenter struct {
	saved  []string
	links  []string
	failed []error
}

func (p *fakePresenter) Progress(export.Job, int)           {}
func (p *fakePresenter) Saved(_ export.Job, loc string)     { p.saved = append(p.saved, loc) }
func (p *fakePresenter) LinkReady(_ export.Job, url string) { p.links = append(p.links, url) }
func (p *fakePresenter) LinkCleared()                       {}
func (p *fakePresenter) Failed(_ export.Job, err error)     { p.failed = append(p.failed, err) }

func succeeded(url string) export.Result {
	return export.Result{JobID: "job-1", State: export.StateSucceeded, Progress: 100, DownloadURL: url}
}

func TestFileExportSavesWithKindNaming(t *testing.T) {
	t.Parallel()

	for _, kind := range []export.Kind{export.KindJSONFile, export.KindCSVFile} {
		kind := kind
		t.Run(string(kind), func(t *testing.T) {
			t.Parallel()
			client := &fakeClient{data: []byte("payload")}
			saver := &fakeSaver{}
			presenter := &fakePresenter{}
			h := New(saver, presenter)
			job := export.Job{ID: "job-1", Kind: kind, State: export.StateRunning}

			artifact, err := h.Fetch(context.Background(), client, job, succeeded(""))
			require.NoError(t, err)
			res := h.Deliver(context.Background(), job, artifact, nil)

			require.Equal(t, 1, client.downloads)
			require.Len(t, saver.saved, 1)
			require.Equal(t, "logs_export"+kind.Extension(), saver.saved[0].name)
			require.Equal(t, kind.MIMEType(), saver.saved[0].mime)
			require.Equal(t, "payload", string(saver.saved[0].data))
			require.Equal(t, []string{"/out/logs_export" + kind.Extension()}, presenter.saved)
			require.Equal(t, export.StateSucceeded, res.Job.State)
			require.Empty(t, res.Link)
		})
	}
}

func TestCloudExportExposesLinkWithoutDownload(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	presenter := &fakePresenter{}
	h := New(&fakeSaver{}, presenter)
	job := export.Job{ID: "job-1", Kind: export.KindJSONToCloud}

	artifact, err := h.Fetch(context.Background(), client, job, succeeded("https://storage/x"))
	require.NoError(t, err)
	res := h.Deliver(context.Background(), job, artifact, nil)

	require.Zero(t, client.downloads)
	require.Equal(t, "https://storage/x", res.Link)
	require.Equal(t, []string{"https://storage/x"}, presenter.links)
}

func TestCloudExportWithoutURLFails(t *testing.T) {
	t.Parallel()

	h := New(&fakeSaver{}, &fakePresenter{})
	_, err := h.Fetch(context.Background(), &fakeClient{}, export.Job{Kind: export.KindJSONToCloud}, succeeded(""))
	require.ErrorIs(t, err, export.ErrJobFailed)
}

func TestDownloadFailureIsPresented(t *testing.T) {
	t.Parallel()

	client := &fakeClient{err: errors.New("connection reset")}
	saver := &fakeSaver{}
	presenter := &fakePresenter{}
	h := New(saver, presenter)
	job := export.Job{ID: "job-1", Kind: export.KindCSVFile}

	artifact, err := h.Fetch(context.Background(), client, job, succeeded(""))
	require.ErrorIs(t, err, export.ErrDownload)
	res := h.Deliver(context.Background(), job, artifact, err)

	require.Empty(t, saver.saved)
	require.Len(t, presenter.failed, 1)
	require.Equal(t, export.StateFailed, res.Job.State)
	require.Equal(t, "export failed: connection reset", export.FailureMessage(res.Job.Err))
}

func TestSaveFailureIsDownloadError(t *testing.T) {
	t.Parallel()

	presenter := &fakePresenter{}
	h := New(&fakeSaver{err: errors.New("read-only file system")}, presenter, WithFileBase("dump"))
	job := export.Job{ID: "job-1", Kind: export.KindJSONFile}
	require.Equal(t, "dump.json", h.Filename(job.Kind))

	res := h.Deliver(context.Background(), job, export.Artifact{Data: []byte("{}"), Filename: "dump.json"}, nil)
	require.ErrorIs(t, res.Job.Err, export.ErrDownload)
	require.Len(t, presenter.failed, 1)
	require.Empty(t, presenter.saved)
}

func TestFailedResultSkipsDownload(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	presenter := &fakePresenter{}
	h := New(&fakeSaver{}, presenter)
	job := export.Job{ID: "job-1", Kind: export.KindJSONFile}
	failure := export.NewError(export.ErrJobFailed, job.Kind, job.ID, "boom", nil)

	_, err := h.Fetch(context.Background(), client, job, export.Result{State: export.StateFailed, Err: failure})
	require.ErrorIs(t, err, export.ErrJobFailed)
	h.Deliver(context.Background(), job, export.Artifact{}, err)

	require.Zero(t, client.downloads)
	require.Len(t, presenter.failed, 1)
}
