package cmd

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/blevesearch/bleve/v2"
	log "github.com/sirupsen/logrus"

	"go-media-fetch/index"
	"go-media-fetch/internal/database"
	"go-media-fetch/internal/engine"
	"go-media-fetch/internal/helpers"
	"go-media-fetch/internal/library"
	"go-media-fetch/internal/models"
	"go-media-fetch/internal/orchestrator"
	"go-media-fetch/internal/planner"
	"go-media-fetch/internal/retention"
)

// openLibrary opens the ledger and, when withIndex is set, the search index.
// The returned func closes both.
func openLibrary(cfg models.Config, withIndex bool) (*library.Library, func(), error) {
	if !helpers.CheckAndMakeDir(cfg.OutputDir) {
		return nil, nil, fmt.Errorf("cannot create output directory %s", cfg.OutputDir)
	}
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return nil, nil, fmt.Errorf("error opening database at %s: %w", cfg.DatabasePath, err)
	}
	lib := &library.Library{DB: db, OutputDir: cfg.OutputDir, AudioTarget: cfg.AudioContainer}

	var idx bleve.Index
	if withIndex {
		idx, err = index.OpenOrCreateIndex(cfg.BleveIndexPath)
		if err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("error opening search index at %s: %w", cfg.BleveIndexPath, err)
		}
		lib.Index = idx
	}

	closeFn := func() {
		if idx != nil {
			if err := idx.Close(); err != nil {
				log.WithError(err).Error("Error closing search index")
			}
		}
		if err := db.Close(); err != nil {
			log.WithError(err).Error("Error closing database")
		}
	}
	return lib, closeFn, nil
}

// newOrchestrator wires the yt-dlp engine and, when lib is non-nil, records
// completed artifacts in it.
func newOrchestrator(cfg models.Config, lib *library.Library) *orchestrator.Orchestrator {
	eng := engine.NewYtDlp(cfg.YtDlpPath, cfg.FfmpegLocation, cfg.Retries)
	orch := orchestrator.New(eng, planner.New(cfg.AudioContainer, cfg.MuxContainer), nil, orchestrator.Config{
		OutputDir:          cfg.OutputDir,
		ServePrefix:        cfg.ServePrefix,
		DetachOnDisconnect: cfg.DetachOnDisconnect,
	})
	if lib != nil {
		orch.OnComplete = lib.Record
	}
	return orch
}

func newSweeper(cfg models.Config, lib *library.Library, dryRun bool) (*retention.Sweeper, error) {
	if cfg.RetentionHours < 0 {
		return nil, errRetentionDisabled
	}
	return &retention.Sweeper{
		OutputDir: cfg.OutputDir,
		TempRoot:  os.TempDir(),
		Library:   lib,
		TTL:       time.Duration(cfg.RetentionHours) * time.Hour,
		DryRun:    dryRun,
	}, nil
}

var errRetentionDisabled = errors.New("retention is disabled (RetentionHours < 0)")

// remoteHTTPClient uses the global transport so --log-api applies.
func remoteHTTPClient() *http.Client {
	return &http.Client{Transport: globalHttpTransport}
}
