package server

import (
	"errors"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"go-media-fetch/index"
	"go-media-fetch/internal/catalog"
	"go-media-fetch/internal/models"
	"go-media-fetch/internal/orchestrator"
	"go-media-fetch/internal/stream"
)

const defaultSearchLimit = 50

// mediaTypes covers the containers the engine produces; system tables often
// lack them.
var mediaTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".mov":  "video/quicktime",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".opus": "audio/ogg",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
	".wav":  "audio/wav",
}

func contentTypeFor(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ct, ok := mediaTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

type videoInfoRequest struct {
	URL string `json:"url"`
}

type downloadRequest struct {
	URL      string `json:"url"`
	FormatID string `json:"formatId"`
	Ext      string `json:"ext"`
}

func (s *Server) videoInfo(c *gin.Context) {
	var req videoInfoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request body"})
		return
	}

	timeout := time.Duration(s.cfg.ExtractTimeoutSec) * time.Second
	meta, err := s.orch.Inspect(c.Request.Context(), req.URL, timeout)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, orchestrator.ErrBadRequest) {
			status = http.StatusBadRequest
		}
		log.WithError(err).WithField("url", req.URL).Warn("Metadata request failed")
		c.JSON(status, gin.H{"success": false, "error": err.Error()})
		return
	}
	if len(meta.Formats) == 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "error": "No formats available for this video"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    meta,
		"menu":    catalog.BuildMenu(meta.Formats, s.cfg.AudioContainer),
	})
}

func (s *Server) download(c *gin.Context) {
	var req downloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request body"})
		return
	}
	job, err := s.orch.NewJob(req.URL, req.FormatID, req.Ext)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	stream.SetHeaders(c.Writer.Header())
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ch := stream.NewChannel(c.Writer)
	res, _ := s.orch.Run(c.Request.Context(), job, func(ev models.ProgressEvent) {
		if err := ch.Progress(ev); err != nil {
			log.WithError(err).WithField("job", job.ID).Debug("Dropped progress event")
		}
	})
	if err := ch.Finish(res); err != nil {
		log.WithError(err).WithField("job", job.ID).Warn("Could not write terminal event")
	}
	if ch.Detached() {
		log.WithField("job", job.ID).Info("Client disconnected before the job finished")
	}
}

func (s *Server) serveFile(c *gin.Context) {
	name := c.Param("filename")
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid filename"})
		return
	}

	path := filepath.Join(s.cfg.OutputDir, name)
	f, err := os.Open(path)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found or inaccessible."})
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found or inaccessible."})
		return
	}

	h := c.Writer.Header()
	h.Set("Content-Type", contentTypeFor(name))
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	if s.lib != nil {
		if art, ok := s.lib.Lookup(name); ok && art.BLAKE3 != "" {
			h.Set("ETag", strconv.Quote(art.BLAKE3))
		}
	}
	// ServeContent sets Content-Length and handles Range and If-None-Match.
	http.ServeContent(c.Writer, c.Request, name, info.ModTime(), f)
}

type fileHit struct {
	models.Artifact
	Score       float64 `json:"score"`
	DownloadURL string  `json:"downloadUrl"`
}

func (s *Server) files(c *gin.Context) {
	if s.lib == nil || s.lib.Index == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "Search index is not enabled"})
		return
	}
	limit := defaultSearchLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid limit"})
			return
		}
		limit = n
	}

	result, err := index.SearchIndex(s.lib.Index, c.Query("q"), limit)
	if err != nil {
		log.WithError(err).Error("Search failed")
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}

	hits := make([]fileHit, 0, len(result.Hits))
	for _, hit := range result.Hits {
		art, ok := s.lib.Lookup(hit.ID)
		if !ok {
			continue
		}
		hits = append(hits, fileHit{Artifact: art, Score: hit.Score, DownloadURL: s.cfg.ServePrefix + url.PathEscape(art.Filename)})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "total": result.Total, "files": hits})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}
