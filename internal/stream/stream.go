// Package stream implements the server-sent-events progress channel and its
// client-side consumer.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	log "github.com/sirupsen/logrus"

	"go-media-fetch/internal/models"
)

var (
	// ErrClosed is returned for writes after the terminal event.
	ErrClosed = errors.New("stream already closed")
	// ErrNoTerminalEvent means the stream ended without done or error.
	ErrNoTerminalEvent = errors.New("stream ended without a terminal event")
)

// Event types.
const (
	TypeProgress = "progress"
	TypeDone     = "done"
	TypeError    = "error"
)

// Event is one SSE frame payload.
type Event struct {
	Type        string   `json:"type"`
	Percent     *float64 `json:"percent,omitempty"`
	ETA         *int64   `json:"eta,omitempty"`
	Speed       *float64 `json:"speed,omitempty"`
	Success     *bool    `json:"success,omitempty"`
	Filename    string   `json:"filename,omitempty"`
	FileSize    *int64   `json:"filesize,omitempty"`
	DownloadURL string   `json:"downloadUrl,omitempty"`
	Message     string   `json:"message,omitempty"`
}

// SetHeaders prepares a response for event streaming.
func SetHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// Channel writes progress frames followed by exactly one terminal frame.
// It is safe for concurrent use.
type Channel struct {
	mu       sync.Mutex
	w        io.Writer
	flusher  http.Flusher
	closed   bool
	detached bool
}

func NewChannel(w io.Writer) *Channel {
	c := &Channel{w: w}
	if f, ok := w.(http.Flusher); ok {
		c.flusher = f
	}
	return c
}

// Progress forwards one progress event. After a write failure it silently
// drops events.
func (c *Channel) Progress(ev models.ProgressEvent) error {
	pct := ev.Percent
	return c.write(Event{Type: TypeProgress, Percent: &pct, ETA: ev.ETASeconds, Speed: ev.BytesPerSecond}, false)
}

// Finish writes the terminal frame for res.
func (c *Channel) Finish(res models.JobResult) error {
	if !res.Success {
		return c.Fail(res.Error)
	}
	ok := true
	size := res.FileSize
	return c.write(Event{
		Type:        TypeDone,
		Success:     &ok,
		Filename:    res.Filename,
		FileSize:    &size,
		DownloadURL: res.DownloadURL,
	}, true)
}

// Fail writes a terminal error frame.
func (c *Channel) Fail(message string) error {
	return c.write(Event{Type: TypeError, Message: message}, true)
}

// Closed reports whether the terminal frame has been written.
func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Detached reports whether the peer has gone away.
func (c *Channel) Detached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.detached
}

func (c *Channel) write(ev Event, terminal bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if terminal {
		c.closed = true
	}
	if c.detached {
		return nil
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", ev.Type, err)
	}
	if _, err := fmt.Fprintf(c.w, "data: %s\n\n", payload); err != nil {
		log.WithError(err).Debug("Client went away, no longer forwarding events")
		c.detached = true
		return nil
	}
	if c.flusher != nil {
		c.flusher.Flush()
	}
	return nil
}
