package orchestrator

import (
	"errors"
	"fmt"
)

var (
	ErrBadRequest       = errors.New("bad request")
	ErrExtractionFailed = errors.New("extraction failed")
	// ErrExtractionTimeout matches ErrExtractionFailed too.
	ErrExtractionTimeout = fmt.Errorf("%w: timed out", ErrExtractionFailed)
	ErrDownloadFailed    = errors.New("download failed")
	ErrArtifactMissing   = errors.New("artifact missing")
	ErrProcessError      = errors.New("process error")
)

// Error is a job failure: a user-facing message plus the failure kind, which
// errors.Is matches.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string { return e.Message }
func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Messages shown to the user for failures that carry no engine text.
const (
	MsgNoFile      = "No file was downloaded - the video may not be available or the format is not supported"
	MsgFileMissing = "Download completed but file not found after completion"
	MsgTimeout     = "Request timeout - the video URL may be invalid or unavailable"
)
