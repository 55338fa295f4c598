package export

import (
	"errors"
	"fmt"
)

// Error classes. Every export failure wraps exactly one of these.
var (
	ErrStart     = errors.New("export could not be started")
	ErrPoll      = errors.New("lost contact with export job")
	ErrJobFailed = errors.New("export job failed")
	ErrDownload  = errors.New("export artifact could not be retrieved")
)

// ErrDownloadUnsupported is returned by Download for kinds that surface a
// retrieval URL instead of bytes.
var ErrDownloadUnsupported = errors.New("download is not supported for this export kind")

// Error describes a terminal export failure.
type Error struct {
	Class error
	Kind  Kind
	JobID string
	Msg   string
	Err   error
}

// NewError builds an Error of the given class.
func NewError(class error, kind Kind, jobID, msg string, cause error) *Error {
	return &Error{Class: class, Kind: kind, JobID: jobID, Msg: msg, Err: cause}
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		return e.Class.Error()
	}
	return fmt.Sprintf("%s: %s", e.Class, msg)
}

// Unwrap exposes both the class sentinel and the underlying cause.
func (e *Error) Unwrap() []error {
	out := []error{e.Class}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// Classify returns the error class of err, or nil if it carries none.
func Classify(err error) error {
	for _, class := range []error{ErrStart, ErrPoll, ErrJobFailed, ErrDownload} {
		if errors.Is(err, class) {
			return class
		}
	}
	return nil
}

// FailureMessage renders the single user-visible failure presentation. The
// underlying message is kept for display.
func FailureMessage(err error) string {
	if err == nil {
		return "export failed"
	}
	var exportErr *Error
	if errors.As(err, &exportErr) {
		switch {
		case exportErr.Msg != "":
			return "export failed: " + exportErr.Msg
		case exportErr.Err != nil:
			return "export failed: " + exportErr.Err.Error()
		}
	}
	return "export failed: " + err.Error()
}
