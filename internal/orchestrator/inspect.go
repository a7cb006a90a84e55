package orchestrator

import (
	"context"
	"errors"
	"strings"
	"time"

	"go-media-fetch/internal/catalog"
	"go-media-fetch/internal/engine"
	"go-media-fetch/internal/models"
)

// Inspect resolves and normalizes metadata under a bounded wait.
func (o *Orchestrator) Inspect(ctx context.Context, sourceURL string, timeout time.Duration) (models.VideoMetadata, error) {
	sourceURL = strings.TrimSpace(sourceURL)
	if sourceURL == "" {
		return models.VideoMetadata{}, newError(ErrBadRequest, "URL is required")
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	info, err := o.engine.Extract(ctx, sourceURL)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.VideoMetadata{}, newError(ErrExtractionTimeout, MsgTimeout)
	case errors.Is(err, engine.ErrStart):
		return models.VideoMetadata{}, newError(ErrProcessError, "Failed to start extraction: %v", err)
	case err != nil:
		return models.VideoMetadata{}, newError(ErrExtractionFailed, "Failed to get video information: %s", engineMessage(err))
	}
	return catalog.NormalizeInfo(info), nil
}
