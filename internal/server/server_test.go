package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-media-fetch/index"
	"go-media-fetch/internal/database"
	"go-media-fetch/internal/engine"
	"go-media-fetch/internal/library"
	"go-media-fetch/internal/models"
	"go-media-fetch/internal/orchestrator"
	"go-media-fetch/internal/planner"
	"go-media-fetch/internal/stream"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeEngine struct {
	info       models.RawInfo
	extractErr error
	download   func(inv engine.Invocation, onTick func(engine.Tick)) error
	downloadCx func(ctx context.Context, inv engine.Invocation, onTick func(engine.Tick)) error
}

func (f *fakeEngine) Extract(ctx context.Context, url string) (models.RawInfo, error) {
	return f.info, f.extractErr
}

func (f *fakeEngine) Download(ctx context.Context, inv engine.Invocation, onTick func(engine.Tick)) error {
	if f.downloadCx != nil {
		return f.downloadCx(ctx, inv, onTick)
	}
	return f.download(inv, onTick)
}

func strp(s string) *string { return &s }
func intp(i int) *int { return &i }
func f64p(f float64) *float64 { return &f }

func sampleInfo() models.RawInfo {
	return models.RawInfo{
		ID:       "abc",
		Title:    "Test Clip",
		Duration: f64p(60),
		Formats: []models.RawFormat{
			{FormatID: "22", Ext: "mp4", URL: "https://cdn.example/22", VideoCodec: strp("avc1"), AudioCodec: strp("mp4a"), Width: intp(1280), Height: intp(720), TBR: f64p(1500)},
			{FormatID: "140", Ext: "m4a", URL: "https://cdn.example/140", VideoCodec: strp("none"), AudioCodec: strp("mp4a"), ABR: f64p(128)},
		},
	}
}

type testServer struct {
	srv    *Server
	eng    *fakeEngine
	lib    *library.Library
	outDir string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(outDir, 0755))

	db, err := database.Open(filepath.Join(dir, "ledger"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	idx, err := index.OpenOrCreateIndex(filepath.Join(dir, "idx.bleve"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	lib := &library.Library{DB: db, Index: idx, OutputDir: outDir, AudioTarget: "mp3"}

	eng := &fakeEngine{
		info: sampleInfo(),
		download: func(inv engine.Invocation, onTick func(engine.Tick)) error {
			onTick(engine.Tick{Status: engine.StatusDownloading, Percent: 50, HasPercent: true})
			path := strings.Replace(inv.OutputTemplate, "%(ext)s", "mp4", 1)
			if err := os.WriteFile(path, []byte("video bytes"), 0644); err != nil {
				return err
			}
			onTick(engine.Tick{Status: engine.StatusFinished, Percent: 100, HasPercent: true, Filename: path})
			return nil
		},
	}
	orch := orchestrator.New(eng, planner.New("mp3", "mp4"), nil, orchestrator.Config{
		OutputDir:   outDir,
		TempRoot:    t.TempDir(),
		ServePrefix: "/api/serve-file/",
	})
	orch.OnComplete = lib.Record

	cfg := models.Config{
		OutputDir:         outDir,
		AudioContainer:    "mp3",
		MuxContainer:      "mp4",
		ExtractTimeoutSec: 5,
		ServePrefix:       "/api/serve-file/",
	}
	return &testServer{srv: New(orch, lib, cfg, nil), eng: eng, lib: lib, outDir: outDir}
}

func (ts *testServer) do(t *testing.T, method, target, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	ts.srv.Router().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
}

func TestVideoInfo(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/video-info", `{"url":"https://example.com/watch?v=abc"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Success bool                 `json:"success"`
		Data    models.VideoMetadata `json:"data"`
		Menu    models.Menu          `json:"menu"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, "Test Clip", body.Data.Title)
	require.Len(t, body.Data.Formats, 2)
	assert.Equal(t, "22", body.Data.Formats[0].FormatID)
	assert.ElementsMatch(t, []string{"mp3", "mp4"}, body.Menu.Containers)
	require.NotEmpty(t, body.Menu.Qualities["mp4"])
	assert.Equal(t, "best", body.Menu.Qualities["mp4"][0].FormatID)
}

func TestVideoInfoErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		setup      func(*fakeEngine)
		wantStatus int
		wantError  string
	}{
		{
			name:       "missing url",
			body:       `{}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "URL is required",
		},
		{
			name:       "malformed body",
			body:       `{"url":`,
			wantStatus: http.StatusBadRequest,
			wantError:  "Invalid request body",
		},
		{
			name:       "extraction failed",
			body:       `{"url":"https://example.com/x"}`,
			setup:      func(f *fakeEngine) { f.extractErr = &engine.ExitError{Message: "ERROR: Unsupported URL"} },
			wantStatus: http.StatusInternalServerError,
			wantError:  "Failed to get video information: ERROR: Unsupported URL",
		},
		{
			name:       "no usable formats",
			body:       `{"url":"https://example.com/x"}`,
			setup:      func(f *fakeEngine) { f.info.Formats = nil },
			wantStatus: http.StatusUnprocessableEntity,
			wantError:  "No formats available for this video",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			if tt.setup != nil {
				tt.setup(ts.eng)
			}
			rec := ts.do(t, http.MethodPost, "/api/video-info", tt.body, nil)
			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.wantError, body["error"])
		})
	}
}

func TestDownloadBadRequest(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/download", `{"url":"https://example.com/x","ext":"mp4"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
	assert.Equal(t, false, decode(t, rec)["success"])
}

func TestDownloadStreamsThenServes(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/download", `{"url":"https://example.com/x","formatId":"best","ext":"mp4"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	var percents []float64
	res, err := stream.Consume(rec.Body, func(ev models.ProgressEvent) { percents = append(percents, ev.Percent) })
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, []float64{50}, percents)
	assert.True(t, strings.HasSuffix(res.Filename, "_test_clip.mp4"), res.Filename)
	assert.Equal(t, int64(len("video bytes")), res.FileSize)
	assert.Equal(t, "/api/serve-file/"+res.Filename, res.DownloadURL)

	art, ok := ts.lib.Lookup(res.Filename)
	require.True(t, ok)
	require.NotEmpty(t, art.BLAKE3)

	served := ts.do(t, http.MethodGet, res.DownloadURL, "", nil)
	require.Equal(t, http.StatusOK, served.Code)
	assert.Equal(t, "video bytes", served.Body.String())
	assert.Equal(t, "video/mp4", served.Header().Get("Content-Type"))
	assert.Equal(t, "11", served.Header().Get("Content-Length"))
	assert.Equal(t, `attachment; filename=`+res.Filename, served.Header().Get("Content-Disposition"))
	etag := served.Header().Get("ETag")
	assert.Equal(t, `"`+art.BLAKE3+`"`, etag)

	cached := ts.do(t, http.MethodGet, res.DownloadURL, "", http.Header{"If-None-Match": {etag}})
	assert.Equal(t, http.StatusNotModified, cached.Code)

	found := ts.do(t, http.MethodGet, "/api/files?q=clip", "", nil)
	require.Equal(t, http.StatusOK, found.Code)
	var search struct {
		Success bool      `json:"success"`
		Files   []fileHit `json:"files"`
	}
	require.NoError(t, json.Unmarshal(found.Body.Bytes(), &search))
	require.Len(t, search.Files, 1)
	assert.Equal(t, res.Filename, search.Files[0].Filename)
	assert.Equal(t, res.DownloadURL, search.Files[0].DownloadURL)
}

func TestDownloadFailureEvent(t *testing.T) {
	ts := newTestServer(t)
	ts.eng.download = func(inv engine.Invocation, onTick func(engine.Tick)) error {
		onTick(engine.Tick{Status: engine.StatusDownloading, Percent: 12.5, HasPercent: true})
		return &engine.ExitError{Message: "ERROR: HTTP Error 403: Forbidden"}
	}
	rec := ts.do(t, http.MethodPost, "/api/download", `{"url":"https://example.com/x","formatId":"22","ext":"mp4"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	res, err := stream.Consume(rec.Body, nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "Download failed at 12.5%: ERROR: HTTP Error 403: Forbidden", res.Error)
}

func TestServeFileRejects(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(ts.outDir), "secret.txt"), []byte("x"), 0644))

	tests := []struct {
		name   string
		target string
		want   int
	}{
		{"missing file", "/api/serve-file/nope.mp4", http.StatusNotFound},
		{"dot dot", "/api/serve-file/..", http.StatusBadRequest},
		{"backslash", "/api/serve-file/..%5Csecret.txt", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodGet, tt.target, "", nil)
			assert.Equal(t, tt.want, rec.Code)
			assert.NotEqual(t, "x", rec.Body.String())
		})
	}
}

func TestServeFileUnknownExtension(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, os.WriteFile(filepath.Join(ts.outDir, "1_blob.zzunknown"), []byte("data"), 0644))
	rec := ts.do(t, http.MethodGet, "/api/serve-file/1_blob.zzunknown", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
	assert.Empty(t, rec.Header().Get("ETag"))
}

func TestFilesWithoutIndex(t *testing.T) {
	ts := newTestServer(t)
	ts.srv.lib = nil
	rec := ts.do(t, http.MethodGet, "/api/files", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRequestID(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/health", "", nil)
	_, err := uuid.Parse(rec.Header().Get(RequestIDHeader))
	assert.NoError(t, err)

	id := uuid.NewString()
	rec = ts.do(t, http.MethodGet, "/health", "", http.Header{RequestIDHeader: {id}})
	assert.Equal(t, id, rec.Header().Get(RequestIDHeader))

	rec = ts.do(t, http.MethodGet, "/health", "", http.Header{RequestIDHeader: {"not-a-uuid"}})
	assert.NotEqual(t, "not-a-uuid", rec.Header().Get(RequestIDHeader))
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodOptions, "/api/download", "", http.Header{
		"Origin":                        {"http://localhost:3000"},
		"Access-Control-Request-Method": {"POST"},
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoveryReturnsJSON(t *testing.T) {
	r := gin.New()
	r.Use(recovery(), requestID())
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Internal server error")
}

func TestRequestDumper(t *testing.T) {
	ts := newTestServer(t)
	logPath := filepath.Join(t.TempDir(), "requests.log")
	d, err := NewRequestDumper(logPath)
	require.NoError(t, err)
	ts.srv.dumper = d

	rec := ts.do(t, http.MethodPost, "/api/video-info", `{"url":"https://example.com/watch?v=abc"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, d.Close())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "POST /api/video-info")
	assert.Contains(t, string(data), `{"url":"https://example.com/watch?v=abc"}`)
	assert.Contains(t, string(data), "Status: 200")
}

func TestContentTypeFor(t *testing.T) {
	tests := map[string]string{
		"1_a.mp4":  "video/mp4",
		"1_a.MP3":  "audio/mpeg",
		"1_a.webm": "video/webm",
		"1_a.m4a":  "audio/mp4",
		"1_a":      "application/octet-stream",
	}
	for name, want := range tests {
		assert.Equal(t, want, contentTypeFor(name), name)
	}
}
