// Package downloader fetches finished artifacts from a media-fetch server to
// a local directory.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"go-media-fetch/internal/helpers"
)

var (
	ErrHashMismatch = errors.New("downloaded file hash mismatch")
	ErrHttpStatus   = errors.New("unexpected HTTP status code")
	ErrFileSystem   = errors.New("filesystem error")
	ErrHttpRequest  = errors.New("HTTP request creation/execution error")
)

// ProgressFunc reports bytes written so far and the expected total (0 when unknown).
type ProgressFunc func(written, total uint64)

type Downloader struct {
	client *http.Client
}

func NewDownloader(client *http.Client) *Downloader {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Minute}
	}
	return &Downloader{client: client}
}

// progressWriter reports through fn after every write.
type progressWriter struct {
	helpers.CounterWriter
	total uint64
	fn    ProgressFunc
}

func (w *progressWriter) Write(p []byte) (int, error) {
	n, err := w.CounterWriter.Write(p)
	if w.fn != nil {
		w.fn(w.Total, w.total)
	}
	return n, err
}

// etagDigest extracts a BLAKE3 digest from a strong ETag, or "" when the
// value does not look like one.
func etagDigest(etag string) string {
	etag = strings.TrimPrefix(strings.TrimSpace(etag), "W/")
	v, err := strconv.Unquote(etag)
	if err != nil || len(v) != 64 {
		return ""
	}
	for _, r := range v {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return ""
		}
	}
	return v
}

// FetchFile downloads url into destDir. The file name comes from the
// Content-Disposition header, falling back to fallbackName. When the response
// carries a BLAKE3 ETag, an existing file with that digest is kept and a
// fresh download is verified against it.
func (d *Downloader) FetchFile(ctx context.Context, url, destDir, fallbackName string, progress ProgressFunc) (string, error) {
	if !helpers.CheckAndMakeDir(destDir) {
		return "", fmt.Errorf("%w: failed to create target directory %s", ErrFileSystem, destDir)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: creating download request for %s: %w", ErrHttpRequest, url, err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: performing request for %s: %v", ErrHttpRequest, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Errorf("Error downloading file: Received status code %d from %s", resp.StatusCode, url)
		return "", fmt.Errorf("%w: received status %d from %s", ErrHttpStatus, resp.StatusCode, url)
	}

	name := filepath.Base(fallbackName)
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		_, params, err := mime.ParseMediaType(cd)
		if err == nil && params["filename"] != "" {
			name = filepath.Base(params["filename"])
		} else {
			log.WithError(err).Warnf("Could not parse Content-Disposition header: %s", cd)
		}
	}
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "", fmt.Errorf("%w: no usable file name for %s", ErrFileSystem, url)
	}
	finalPath := filepath.Join(destDir, name)
	digest := etagDigest(resp.Header.Get("ETag"))

	if digest != "" && helpers.CheckBLAKE3(finalPath, digest) {
		log.Infof("Found valid existing file %s, skipping download.", finalPath)
		return finalPath, nil
	}

	tempFile, err := os.CreateTemp(destDir, name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("%w: creating temporary file for %s: %w", ErrFileSystem, finalPath, err)
	}
	shouldCleanupTemp := true
	defer func() {
		if shouldCleanupTemp {
			_ = tempFile.Close()
			if removeErr := os.Remove(tempFile.Name()); removeErr != nil {
				log.WithError(removeErr).Warnf("Failed to remove temporary file %s", tempFile.Name())
			}
		}
	}()

	size, _ := strconv.ParseUint(resp.Header.Get("Content-Length"), 10, 64)
	writer := &progressWriter{CounterWriter: helpers.CounterWriter{Writer: tempFile}, total: size, fn: progress}

	log.Debugf("Downloading to %s (Target: %s, Size: %s)...", tempFile.Name(), finalPath, helpers.BytesToSize(size))
	if _, err := io.Copy(writer, resp.Body); err != nil {
		return "", fmt.Errorf("%w: writing temporary file %s: %v", ErrFileSystem, tempFile.Name(), err)
	}
	if err := tempFile.Close(); err != nil {
		return "", fmt.Errorf("%w: closing temp file %s: %w", ErrFileSystem, tempFile.Name(), err)
	}

	if digest != "" {
		if !helpers.CheckBLAKE3(tempFile.Name(), digest) {
			log.Errorf("Hash mismatch for downloaded file: %s", tempFile.Name())
			return "", ErrHashMismatch
		}
		log.Debugf("Hash verified for %s.", tempFile.Name())
	}

	if err := os.Rename(tempFile.Name(), finalPath); err != nil {
		return "", fmt.Errorf("%w: renaming temporary file %s to %s: %v", ErrFileSystem, tempFile.Name(), finalPath, err)
	}
	shouldCleanupTemp = false
	log.Infof("Saved %s (%s)", finalPath, helpers.BytesToSize(writer.Total))
	return finalPath, nil
}
