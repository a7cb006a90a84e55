package database

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"go-media-fetch/internal/models"
)

const artifactPrefix = "artifact:"

func artifactKey(filename string) []byte {
	return []byte(artifactPrefix + filename)
}

// PutArtifact records (or replaces) the ledger entry for art.Filename.
func (d *DB) PutArtifact(art models.Artifact) error {
	if art.Filename == "" {
		return errors.New("cannot store artifact: filename is empty")
	}
	data, err := json.Marshal(art)
	if err != nil {
		return fmt.Errorf("error marshalling artifact %s: %w", art.Filename, err)
	}
	return d.Put(artifactKey(art.Filename), data)
}

// GetArtifact returns the entry for filename or ErrNotFound.
func (d *DB) GetArtifact(filename string) (models.Artifact, error) {
	var art models.Artifact
	data, err := d.Get(artifactKey(filename))
	if err != nil {
		return art, err
	}
	if err := json.Unmarshal(data, &art); err != nil {
		return art, fmt.Errorf("error unmarshalling artifact %s: %w", filename, err)
	}
	return art, nil
}

func (d *DB) DeleteArtifact(filename string) error {
	return d.Delete(artifactKey(filename))
}

// ListArtifacts returns every ledger entry, oldest first.
func (d *DB) ListArtifacts() ([]models.Artifact, error) {
	var out []models.Artifact
	err := d.Fold(func(key, value []byte) error {
		if !bytes.HasPrefix(key, []byte(artifactPrefix)) {
			return nil
		}
		var art models.Artifact
		if err := json.Unmarshal(value, &art); err != nil {
			return nil
		}
		out = append(out, art)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Filename < out[j].Filename
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
