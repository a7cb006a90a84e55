package server

import (
	"bufio"
	"fmt"
	"net/http/httputil"
	"os"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// RequestDumper appends raw incoming requests (headers and small bodies) to
// a file.
type RequestDumper struct {
	mu      sync.Mutex
	logFile *os.File
	writer  *bufio.Writer
}

// NewRequestDumper opens path for appending.
func NewRequestDumper(path string) (*RequestDumper, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open request log file %s: %w", path, err)
	}
	return &RequestDumper{logFile: f, writer: bufio.NewWriter(f)}, nil
}

// Middleware dumps each request before it is handled and its status after.
func (d *RequestDumper) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		// JSON bodies here are a URL and two ids; DumpRequest restores the body.
		dump, err := httputil.DumpRequest(c.Request, c.Request.Method == "POST")
		if err != nil {
			log.WithError(err).Error("Failed to dump request for logging")
		}

		c.Next()

		d.mu.Lock()
		defer d.mu.Unlock()
		if dump != nil {
			d.writeLog(fmt.Sprintf("--- Request %s (%s) ---\n%s", c.GetString(requestIDKey), start.Format(time.RFC3339), dump))
		}
		d.writeLog(fmt.Sprintf("--- Response %s (Duration: %v) ---\nStatus: %d, Type: %s, Bytes: %d",
			c.GetString(requestIDKey), time.Since(start), c.Writer.Status(), c.Writer.Header().Get("Content-Type"), c.Writer.Size()))
		if err := d.writer.Flush(); err != nil {
			log.WithError(err).Warn("Failed to flush request log")
		}
	}
}

func (d *RequestDumper) writeLog(s string) {
	if _, err := d.writer.WriteString(s + "\n\n"); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing to request log file: %v\nLog message: %s\n", err, s)
	}
}

// Close flushes and closes the log file.
func (d *RequestDumper) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	errFlush := d.writer.Flush()
	errClose := d.logFile.Close()
	if errFlush != nil {
		return fmt.Errorf("failed to flush request log buffer: %w", errFlush)
	}
	return errClose
}
