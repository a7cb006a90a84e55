// Package retention expires old artifacts from the output directory.
package retention

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"go-media-fetch/internal/library"
	"go-media-fetch/internal/orchestrator"
)

// Sweeper removes files older than TTL. Age comes from the ledger when the
// file is recorded there. The output directory is flat, so subdirectories are
// never touched.
type Sweeper struct {
	OutputDir string
	TempRoot  string           // scanned for abandoned job temp dirs; optional
	Library   *library.Library // optional
	TTL       time.Duration
	DryRun    bool

	now func() time.Time
}

// Report summarizes one sweep.
type Report struct {
	FilesRemoved    int
	BytesFreed      int64
	TempDirsRemoved int
	LedgerPruned    int
	Failed          int
}

func (r Report) String() string {
	return fmt.Sprintf("removed %d file(s), %d temp dir(s), pruned %d ledger entr(ies), %d failure(s)",
		r.FilesRemoved, r.TempDirsRemoved, r.LedgerPruned, r.Failed)
}

func (s *Sweeper) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// Sweep runs one pass.
func (s *Sweeper) Sweep() (Report, error) {
	var rep Report
	if s.TTL <= 0 {
		return rep, fmt.Errorf("retention TTL must be positive, got %s", s.TTL)
	}
	cutoff := s.clock().Add(-s.TTL)

	entries, err := os.ReadDir(s.OutputDir)
	if err != nil {
		return rep, fmt.Errorf("reading output directory %s: %w", s.OutputDir, err)
	}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil || !s.createdAt(e.Name(), info).Before(cutoff) {
			continue
		}
		path := filepath.Join(s.OutputDir, e.Name())
		if s.DryRun {
			log.Infof("Would remove expired file: %s", path)
			rep.FilesRemoved++
			rep.BytesFreed += info.Size()
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.WithError(err).Errorf("Failed to remove expired file %s", path)
			rep.Failed++
			continue
		}
		log.Infof("Removed expired file: %s", path)
		rep.FilesRemoved++
		rep.BytesFreed += info.Size()
		if s.Library != nil {
			if err := s.Library.Forget(e.Name()); err != nil {
				log.WithError(err).Warnf("Failed to forget %s", e.Name())
			}
		}
	}

	s.sweepTempDirs(cutoff, &rep)
	s.pruneLedger(&rep)
	return rep, nil
}

// createdAt is the ledger's creation time when the file is recorded, else its
// modification time.
func (s *Sweeper) createdAt(name string, info os.FileInfo) time.Time {
	if s.Library != nil {
		if art, ok := s.Library.Lookup(name); ok && !art.CreatedAt.IsZero() {
			return art.CreatedAt
		}
	}
	return info.ModTime()
}

func (s *Sweeper) sweepTempDirs(cutoff time.Time, rep *Report) {
	if s.TempRoot == "" {
		return
	}
	entries, err := os.ReadDir(s.TempRoot)
	if err != nil {
		log.WithError(err).Debugf("Cannot scan temp root %s", s.TempRoot)
		return
	}
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), orchestrator.TempDirPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(s.TempRoot, e.Name())
		if s.DryRun {
			log.Infof("Would remove stale temp dir: %s", path)
			rep.TempDirsRemoved++
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			log.WithError(err).Errorf("Failed to remove stale temp dir %s", path)
			rep.Failed++
			continue
		}
		rep.TempDirsRemoved++
	}
}

// pruneLedger drops entries whose file is gone.
func (s *Sweeper) pruneLedger(rep *Report) {
	if s.Library == nil || s.DryRun {
		return
	}
	arts, err := s.Library.DB.ListArtifacts()
	if err != nil {
		log.WithError(err).Warn("Failed to list ledger for pruning")
		return
	}
	for _, art := range arts {
		if _, err := os.Stat(s.Library.Path(art.Filename)); !os.IsNotExist(err) {
			continue
		}
		if err := s.Library.Forget(art.Filename); err != nil {
			log.WithError(err).Warnf("Failed to prune ledger entry %s", art.Filename)
			rep.Failed++
			continue
		}
		rep.LedgerPruned++
	}
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rep, err := s.Sweep()
			if err != nil {
				log.WithError(err).Warn("Retention sweep failed")
				continue
			}
			log.Debugf("Retention sweep: %s", rep)
		}
	}
}
