package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

var leftoverSuffixes = []string{".part", ".ytdl", ".temp"}

// JobPrefix is the filename prefix shared by every file a job writes.
func JobPrefix(jobID int64) string {
	return fmt.Sprintf("%d_", jobID)
}

// IsLeftover reports whether name is an engine intermediate file.
func IsLeftover(name string) bool {
	for _, s := range leftoverSuffixes {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}

func isRegular(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}

// locate resolves the final artifact. Candidates are re-rooted in outputDir so
// only files the serve endpoint can reach are accepted.
func locate(outputDir string, jobID int64, candidate, audioExt string) (string, bool) {
	if candidate != "" {
		path := filepath.Join(outputDir, filepath.Base(candidate))
		if isRegular(path) && !IsLeftover(path) {
			return path, true
		}
		if audioExt != "" {
			swapped := strings.TrimSuffix(path, filepath.Ext(path)) + "." + audioExt
			if isRegular(swapped) {
				return swapped, true
			}
		}
	}
	return newestWithPrefix(outputDir, JobPrefix(jobID))
}

func newestWithPrefix(dir, prefix string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	var (
		best    string
		bestMod time.Time
	)
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, prefix) || IsLeftover(name) || !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if best == "" || info.ModTime().After(bestMod) {
			best, bestMod = name, info.ModTime()
		}
	}
	if best == "" {
		return "", false
	}
	return filepath.Join(dir, best), true
}

// removeJobFiles deletes every regular file in outputDir carrying the job's
// prefix and returns how many were removed.
func removeJobFiles(outputDir string, jobID int64) int {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return 0
	}
	prefix := JobPrefix(jobID)
	removed := 0
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), prefix) || !e.Type().IsRegular() {
			continue
		}
		path := filepath.Join(outputDir, e.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.WithError(err).Warnf("Failed to remove %s", path)
			continue
		}
		removed++
	}
	return removed
}
