// Package api is a client for a remote media-fetch server.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"go-media-fetch/internal/models"
	"go-media-fetch/internal/stream"
)

var (
	ErrBadRequest  = errors.New("request rejected by server")
	ErrNotFound    = errors.New("resource not found")
	ErrServerError = errors.New("server error")
)

// Client talks to the HTTP endpoints of a media-fetch server.
type Client struct {
	BaseURL    string
	HttpClient *http.Client
}

// NewClient creates a client for baseURL. The default http.Client has no
// overall timeout because downloads stream for as long as the job runs.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), HttpClient: httpClient}
}

// VideoInfoResponse is the payload of POST /api/video-info.
type VideoInfoResponse struct {
	Success bool                 `json:"success"`
	Data    models.VideoMetadata `json:"data"`
	Menu    models.Menu          `json:"menu"`
	Error   string               `json:"error"`
}

// FileHit is one result of GET /api/files.
type FileHit struct {
	models.Artifact
	Score       float64 `json:"score"`
	DownloadURL string  `json:"downloadUrl"`
}

type filesResponse struct {
	Success bool      `json:"success"`
	Total   uint64    `json:"total"`
	Files   []FileHit `json:"files"`
	Error   string    `json:"error"`
}

// Resolve turns a server-relative path such as a downloadUrl into an absolute URL.
func (c *Client) Resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.BaseURL + "/" + strings.TrimLeft(path, "/")
}

func (c *Client) postJSON(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Resolve(path), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.HttpClient.Do(req)
}

// statusError maps a non-200 response to a sentinel, keeping the server's
// error message when the body carries one.
func statusError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	msg := strings.TrimSpace(string(data))
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		msg = payload.Error
	}

	var kind error
	switch {
	case resp.StatusCode == http.StatusNotFound:
		kind = ErrNotFound
	case resp.StatusCode >= 500:
		kind = ErrServerError
	default:
		kind = ErrBadRequest
	}
	if msg == "" {
		return fmt.Errorf("%w (status code %d)", kind, resp.StatusCode)
	}
	return fmt.Errorf("%w (status code %d): %s", kind, resp.StatusCode, msg)
}

// VideoInfo asks the server to extract metadata and build the selection menu.
func (c *Client) VideoInfo(ctx context.Context, sourceURL string) (VideoInfoResponse, error) {
	start := time.Now()
	resp, err := c.postJSON(ctx, "/api/video-info", map[string]string{"url": sourceURL})
	if err != nil {
		return VideoInfoResponse{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()
	log.WithFields(log.Fields{"status": resp.StatusCode, "duration": time.Since(start)}).Debug("video-info response")

	if resp.StatusCode != http.StatusOK {
		return VideoInfoResponse{}, statusError(resp)
	}
	var out VideoInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return VideoInfoResponse{}, fmt.Errorf("error decoding video-info response: %w", err)
	}
	if !out.Success {
		return out, fmt.Errorf("%w: %s", ErrServerError, out.Error)
	}
	return out, nil
}

// Download starts a job on the server and follows its event stream until the
// terminal event. A failed job is returned as a result with Success false.
func (c *Client) Download(ctx context.Context, sourceURL, formatID, container string, onProgress func(models.ProgressEvent)) (models.JobResult, error) {
	resp, err := c.postJSON(ctx, "/api/download", map[string]string{
		"url":      sourceURL,
		"formatId": formatID,
		"ext":      container,
	})
	if err != nil {
		return models.JobResult{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.JobResult{}, statusError(resp)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		return models.JobResult{}, fmt.Errorf("%w: unexpected content type %q", ErrServerError, ct)
	}
	return stream.Consume(resp.Body, onProgress)
}

// Files searches the server's completed artifacts. An empty query lists them.
func (c *Client) Files(ctx context.Context, query string, limit int) ([]FileHit, uint64, error) {
	values := url.Values{}
	if query != "" {
		values.Set("q", query)
	}
	if limit > 0 {
		values.Set("limit", strconv.Itoa(limit))
	}
	reqURL := c.Resolve("/api/files")
	if len(values) > 0 {
		reqURL += "?" + values.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("error creating request: %w", err)
	}
	resp, err := c.HttpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, 0, statusError(resp)
	}

	var out filesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, 0, fmt.Errorf("error decoding files response: %w", err)
	}
	return out.Files, out.Total, nil
}
