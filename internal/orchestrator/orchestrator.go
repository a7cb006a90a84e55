// Package orchestrator runs one download job end to end: metadata, primary
// and fallback engine attempts, artifact location and the terminal result.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"go-media-fetch/internal/engine"
	"go-media-fetch/internal/helpers"
	"go-media-fetch/internal/models"
	"go-media-fetch/internal/planner"
)

// TempDirPrefix names per-job scratch directories under Config.TempRoot.
const TempDirPrefix = "media-fetch-job-"

const maxSlugLen = 80

// Config holds the orchestrator's settings.
type Config struct {
	OutputDir   string
	TempRoot    string // defaults to os.TempDir()
	ServePrefix string // e.g. "/api/serve-file/"
	// DetachOnDisconnect lets a job finish after the caller's context is gone.
	DetachOnDisconnect bool
}

// ProgressFunc receives normalized progress events.
type ProgressFunc func(models.ProgressEvent)

// CompleteFunc is called once per successful job with the final artifact.
type CompleteFunc func(art models.Artifact, path string) error

type Orchestrator struct {
	engine  engine.Engine
	planner *planner.Planner
	ids     *IDSource
	cfg     Config
	now     func() time.Time

	// stopCtx is cancelled by Stop and reaches every running job, detached or not.
	stopCtx context.Context
	stop    context.CancelFunc

	OnComplete CompleteFunc
}

func New(eng engine.Engine, p *planner.Planner, ids *IDSource, cfg Config) *Orchestrator {
	if ids == nil {
		ids = NewIDSource(nil)
	}
	if cfg.TempRoot == "" {
		cfg.TempRoot = os.TempDir()
	}
	stopCtx, stop := context.WithCancel(context.Background())
	return &Orchestrator{engine: eng, planner: p, ids: ids, cfg: cfg, now: time.Now, stopCtx: stopCtx, stop: stop}
}

// Stop cancels every running job, killing its engine process, and makes later
// runs fail as cancelled. Used on server shutdown.
func (o *Orchestrator) Stop() {
	o.stop()
}

// NewJob validates a request and assigns the job id. Nothing is started.
func (o *Orchestrator) NewJob(sourceURL, formatID, container string) (*models.DownloadJob, error) {
	sourceURL = strings.TrimSpace(sourceURL)
	if sourceURL == "" {
		return nil, newError(ErrBadRequest, "URL is required")
	}
	if formatID == "" || container == "" {
		return nil, newError(ErrBadRequest, "Format and container are required")
	}
	if err := o.planner.Validate(planner.Request{Container: container, FormatID: formatID}); err != nil {
		return nil, newError(ErrBadRequest, "Invalid format selection: %v", err)
	}
	return &models.DownloadJob{
		ID:        o.ids.Next(),
		SourceURL: sourceURL,
		Container: container,
		FormatID:  formatID,
		State:     models.StatePlanned,
	}, nil
}

// attempt tracks what one engine run reported.
type attempt struct {
	observed  bool
	percent   float64
	candidate string
}

// Run drives the job to a terminal state and returns exactly one result. The
// error carries the failure kind for callers that need errors.Is.
func (o *Orchestrator) Run(ctx context.Context, job *models.DownloadJob, progress ProgressFunc) (res models.JobResult, err error) {
	logger := log.WithFields(log.Fields{"job": job.ID, "url": job.SourceURL})
	if o.cfg.DetachOnDisconnect {
		ctx = context.WithoutCancel(ctx)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer context.AfterFunc(o.stopCtx, cancel)()
	if progress == nil {
		progress = func(models.ProgressEvent) {}
	}

	tempDir, err := os.MkdirTemp(o.cfg.TempRoot, fmt.Sprintf("%s%d-", TempDirPrefix, job.ID))
	if err != nil {
		return o.fail(job, ErrProcessError, fmt.Sprintf("Failed to prepare download: %v", err))
	}
	defer func() {
		if rmErr := os.RemoveAll(tempDir); rmErr != nil {
			logger.WithError(rmErr).Warn("Failed to remove job temp directory")
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Recovered from panic: %v", r)
			res, err = o.fail(job, ErrProcessError, fmt.Sprintf("Internal error: %v", r))
		}
	}()

	// Extracting
	job.State = models.StateExtracting
	info, err := o.engine.Extract(ctx, job.SourceURL)
	switch {
	case errors.Is(err, engine.ErrStart):
		return o.fail(job, ErrProcessError, "Failed to start extraction: "+err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return o.fail(job, ErrExtractionTimeout, MsgTimeout)
	case err != nil:
		return o.fail(job, ErrExtractionFailed, "Failed to get video information: "+engineMessage(err))
	}
	job.Title = info.Title
	job.OutputTemplate = filepath.Join(o.cfg.OutputDir, fmt.Sprintf("%s%s.%%(ext)s", JobPrefix(job.ID), titleSlug(info)))

	req := planner.Request{Container: job.Container, FormatID: job.FormatID}
	primary, err := o.planner.Primary(req)
	if err != nil {
		return o.fail(job, ErrBadRequest, err.Error())
	}

	// Downloading
	job.State = models.StateDownloading
	at, runErr := o.download(ctx, job, primary, tempDir, progress)
	if runErr != nil && shouldFallback(ctx, at, runErr) {
		logger.WithError(runErr).Warn("Primary plan failed before any progress, trying fallback")
		fallback, fbErr := o.planner.Fallback(req)
		if fbErr != nil {
			return o.fail(job, ErrBadRequest, fbErr.Error())
		}
		at, runErr = o.download(ctx, job, fallback, tempDir, progress)
	}
	if runErr != nil {
		return o.downloadFailure(ctx, job, at, runErr)
	}

	// Locating
	job.State = models.StateLocating
	audioExt := ""
	if o.planner.IsAudio(job.Container) {
		audioExt = o.planner.AudioTarget
	}
	path, found := locate(o.cfg.OutputDir, job.ID, at.candidate, audioExt)
	if !found {
		if at.candidate != "" {
			return o.fail(job, ErrArtifactMissing, MsgFileMissing)
		}
		return o.fail(job, ErrDownloadFailed, MsgNoFile)
	}
	fi, err := os.Stat(path)
	if err != nil {
		return o.fail(job, ErrArtifactMissing, MsgFileMissing)
	}

	job.State = models.StateCompleted
	name := filepath.Base(path)
	res = models.JobResult{
		Success:     true,
		Filename:    name,
		FileSize:    fi.Size(),
		DownloadURL: o.cfg.ServePrefix + url.PathEscape(name),
	}
	logger.WithFields(log.Fields{
		"file": name,
		"size": helpers.BytesToSize(uint64(fi.Size())),
	}).Info("Download complete")

	if o.OnComplete != nil {
		art := models.Artifact{
			Filename:  name,
			Title:     job.Title,
			SourceURL: job.SourceURL,
			Container: job.Container,
			FormatID:  job.FormatID,
			Size:      fi.Size(),
			CreatedAt: o.now(),
		}
		if hookErr := o.OnComplete(art, path); hookErr != nil {
			logger.WithError(hookErr).Warn("Failed to record artifact")
		}
	}
	return res, nil
}

func (o *Orchestrator) download(ctx context.Context, job *models.DownloadJob, plan planner.Plan, tempDir string, progress ProgressFunc) (*attempt, error) {
	at := &attempt{}
	inv := engine.Invocation{
		URL:            job.SourceURL,
		Plan:           plan,
		OutputTemplate: job.OutputTemplate,
		TempDir:        tempDir,
	}
	err := o.engine.Download(ctx, inv, func(t engine.Tick) {
		switch t.Status {
		case engine.StatusDownloading:
			at.observed = true
			if !t.HasPercent {
				log.WithField("job", job.ID).Debug("Progress tick without a usable percent")
				return
			}
			at.percent = t.Percent
			progress(models.ProgressEvent{Percent: t.Percent, ETASeconds: t.ETA, BytesPerSecond: t.Speed})
		case engine.StatusFinished:
			if t.Filename != "" {
				at.candidate = t.Filename
			}
			job.State = models.StatePostProcessing
		}
	})
	return at, err
}

// shouldFallback is true only when the engine ran, was not cancelled and
// never reported a downloading tick.
func shouldFallback(ctx context.Context, at *attempt, runErr error) bool {
	return !errors.Is(runErr, engine.ErrStart) && ctx.Err() == nil && !at.observed
}

func (o *Orchestrator) downloadFailure(ctx context.Context, job *models.DownloadJob, at *attempt, runErr error) (models.JobResult, error) {
	switch {
	case errors.Is(runErr, engine.ErrStart):
		return o.fail(job, ErrProcessError, "Failed to start download process: "+runErr.Error())
	case ctx.Err() != nil:
		return o.fail(job, ErrDownloadFailed, "Download cancelled")
	case at.observed:
		return o.fail(job, ErrDownloadFailed, fmt.Sprintf("Download failed at %.1f%%: %s", at.percent, engineMessage(runErr)))
	}
	msg := engineMessage(runErr)
	if msg == "" {
		msg = MsgNoFile
	}
	return o.fail(job, ErrDownloadFailed, msg)
}

func (o *Orchestrator) fail(job *models.DownloadJob, kind error, msg string) (models.JobResult, error) {
	job.State = models.StateFailed
	log.WithFields(log.Fields{"job": job.ID, "kind": kind}).Warn(msg)
	if job.OutputTemplate != "" {
		if n := removeJobFiles(o.cfg.OutputDir, job.ID); n > 0 {
			log.WithField("job", job.ID).Debugf("Removed %d file(s) left by the failed job", n)
		}
	}
	return models.Failed(msg), &Error{Kind: kind, Message: msg}
}

func engineMessage(err error) string {
	var exitErr *engine.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Message
	}
	return err.Error()
}

func titleSlug(info models.RawInfo) string {
	if s := helpers.TruncateSlug(helpers.ConvertToSlug(info.Title), maxSlugLen); s != "" {
		return s
	}
	if s := helpers.TruncateSlug(helpers.ConvertToSlug(info.ID), maxSlugLen); s != "" {
		return s
	}
	return "download"
}
