package export

import "context"

// JobClient issues the backend calls for one export kind.
type JobClient interface {
	Start(ctx context.Context, filters FilterSet) (string, error)
	Status(ctx context.Context, jobID string) (StatusReport, error)
	Download(ctx context.Context, jobID string) ([]byte, error)
	Cancel(ctx context.Context, jobID string) error
}

// ClientSet resolves the JobClient for a kind.
type ClientSet interface {
	For(kind Kind) (JobClient, error)
}

// Executor runs closures on a single logical thread of control. Post reports
// whether fn was accepted; Done is closed once the executor stops running
// closures, including any it accepted but never ran.
type Executor interface {
	Post(fn func()) bool
	Done() <-chan struct{}
}

// FileSaver performs the local save-as-file action and returns where the file
// ended up.
type FileSaver interface {
	Save(ctx context.Context, filename string, mimeType string, data []byte) (string, error)
}

// Presenter receives user-visible updates. Calls arrive on the session's
// thread of control and must not block on the session.
type Presenter interface {
	Progress(job Job, percent int)
	Saved(job Job, location string)
	LinkReady(job Job, url string)
	LinkCleared()
	Failed(job Job, err error)
}
