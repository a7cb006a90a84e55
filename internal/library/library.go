// Package library keeps the ledger and the search index in step for the
// artifacts in the output directory.
package library

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/blevesearch/bleve/v2"
	log "github.com/sirupsen/logrus"

	"go-media-fetch/index"
	"go-media-fetch/internal/database"
	"go-media-fetch/internal/helpers"
	"go-media-fetch/internal/models"
)

type Library struct {
	DB          *database.DB
	Index       bleve.Index // optional
	OutputDir   string
	AudioTarget string
}

// Record hashes the file at path and stores its ledger entry and index document.
// It has the orchestrator's completion-hook signature.
func (l *Library) Record(art models.Artifact, path string) error {
	sum, err := helpers.FileBLAKE3(path)
	if err != nil {
		return err
	}
	art.BLAKE3 = sum
	return l.Save(art)
}

// Save writes art to the ledger and the index as is.
func (l *Library) Save(art models.Artifact) error {
	if err := l.DB.PutArtifact(art); err != nil {
		return fmt.Errorf("recording %s in ledger: %w", art.Filename, err)
	}
	if l.Index != nil {
		if err := index.IndexItem(l.Index, index.ItemFromArtifact(art, l.AudioTarget)); err != nil {
			return fmt.Errorf("indexing %s: %w", art.Filename, err)
		}
	}
	log.WithFields(log.Fields{"file": art.Filename, "blake3": art.BLAKE3}).Debug("Artifact recorded")
	return nil
}

// Lookup returns the ledger entry for filename.
func (l *Library) Lookup(filename string) (models.Artifact, bool) {
	art, err := l.DB.GetArtifact(filename)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			log.WithError(err).Warnf("Ledger lookup failed for %s", filename)
		}
		return models.Artifact{}, false
	}
	return art, true
}

// Forget drops filename from the ledger and the index. The file itself is
// left alone.
func (l *Library) Forget(filename string) error {
	if err := l.DB.DeleteArtifact(filename); err != nil && !errors.Is(err, database.ErrNotFound) {
		return err
	}
	if l.Index != nil {
		if err := index.DeleteItem(l.Index, filename); err != nil {
			return fmt.Errorf("removing %s from index: %w", filename, err)
		}
	}
	return nil
}

// Path returns the on-disk location of an artifact.
func (l *Library) Path(filename string) string {
	return filepath.Join(l.OutputDir, filepath.Base(filename))
}
