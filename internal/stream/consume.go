package stream

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	log "github.com/sirupsen/logrus"

	"go-media-fetch/internal/models"
)

// Consume reads an event stream until its terminal frame. Progress frames go
// to onProgress. An error frame is returned as a failed result, not an error.
func Consume(r io.Reader, onProgress func(models.ProgressEvent)) (models.JobResult, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		if line != "" {
			if v, ok := strings.CutPrefix(line, "data:"); ok {
				if data.Len() > 0 {
					data.WriteByte('\n')
				}
				data.WriteString(strings.TrimPrefix(v, " "))
			}
			// comments, event names and ids are not used
			continue
		}
		if data.Len() == 0 {
			continue
		}
		frame := data.String()
		data.Reset()

		var ev Event
		if err := json.Unmarshal([]byte(frame), &ev); err != nil {
			log.WithError(err).Debug("Skipping malformed event")
			continue
		}
		switch ev.Type {
		case TypeProgress:
			if onProgress != nil && ev.Percent != nil {
				onProgress(models.ProgressEvent{Percent: *ev.Percent, ETASeconds: ev.ETA, BytesPerSecond: ev.Speed})
			}
		case TypeDone:
			res := models.JobResult{Success: true, Filename: ev.Filename, DownloadURL: ev.DownloadURL}
			if ev.FileSize != nil {
				res.FileSize = *ev.FileSize
			}
			return res, nil
		case TypeError:
			return models.Failed(ev.Message), nil
		}
	}
	if err := scanner.Err(); err != nil {
		return models.JobResult{}, fmt.Errorf("%w: %v", ErrNoTerminalEvent, err)
	}
	return models.JobResult{}, ErrNoTerminalEvent
}
