// Package engine drives the external extraction engine (yt-dlp) as a subprocess.
package engine

import (
	"context"
	"errors"

	"go-media-fetch/internal/models"
	"go-media-fetch/internal/planner"
)

var (
	// ErrStart means the engine process could not be launched at all.
	ErrStart = errors.New("engine could not be started")
	// ErrExit means the engine ran and exited unsuccessfully.
	ErrExit = errors.New("engine exited with an error")
	// ErrBadOutput means the engine's metadata output could not be decoded.
	ErrBadOutput = errors.New("engine returned unusable output")
	// ErrTickHandler means the caller's tick handler panicked; the attempt is aborted.
	ErrTickHandler = errors.New("progress handler failed")
)

// ExitError carries the engine's own error text. It matches ErrExit.
type ExitError struct {
	Message string
}

func (e *ExitError) Error() string {
	return ErrExit.Error() + ": " + e.Message
}

func (e *ExitError) Unwrap() error {
	return ErrExit
}

// Tick statuses.
const (
	StatusDownloading = "downloading"
	StatusFinished    = "finished"
	StatusError       = "error"
)

// Tick is one structured event read from the engine's output.
type Tick struct {
	Status string
	// Percent is only meaningful when HasPercent is set.
	Percent    float64
	HasPercent bool
	ETA        *int64
	Speed      *float64
	// Filename is the file the event refers to; for finished ticks it is a
	// candidate output path.
	Filename string
}

// Invocation is everything needed for one download attempt.
type Invocation struct {
	URL            string
	Plan           planner.Plan
	OutputTemplate string
	TempDir        string
}

// Engine is the external extraction/download collaborator.
type Engine interface {
	Extract(ctx context.Context, url string) (models.RawInfo, error)
	Download(ctx context.Context, inv Invocation, onTick func(Tick)) error
}
