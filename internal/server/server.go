// Package server exposes the metadata, download, serve-file and search
// endpoints over gin.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"go-media-fetch/internal/library"
	"go-media-fetch/internal/models"
	"go-media-fetch/internal/orchestrator"
)

// Server wires the HTTP surface to an orchestrator and a library.
type Server struct {
	orch    *orchestrator.Orchestrator
	lib     *library.Library // optional
	cfg     models.Config
	dumper  *RequestDumper // optional
	started time.Time
}

// New builds a server. lib and dumper may be nil.
func New(orch *orchestrator.Orchestrator, lib *library.Library, cfg models.Config, dumper *RequestDumper) *Server {
	return &Server{orch: orch, lib: lib, cfg: cfg, dumper: dumper, started: time.Now()}
}

// Router returns the configured gin engine.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(recovery(), requestID(), accessLog())
	if s.dumper != nil {
		r.Use(s.dumper.Middleware())
	}
	r.Use(cors.New(corsConfig(s.cfg.AllowedOrigins)))

	api := r.Group("/api")
	{
		api.POST("/video-info", s.videoInfo)
		api.POST("/download", s.download)
		api.GET("/serve-file/:filename", s.serveFile)
		api.HEAD("/serve-file/:filename", s.serveFile)
		api.GET("/files", s.files)
	}
	r.GET("/health", s.health)
	return r
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "HEAD", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "X-Request-ID"},
		ExposeHeaders: []string{"Content-Length", "Content-Disposition", "ETag", "X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
		c.AllowCredentials = true
	}
	return c
}

// ListenAndServe listens on cfg.Listen and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts on ln until ctx is cancelled, then shuts down gracefully.
// Request contexts derive from ctx and running jobs are stopped first, so no
// engine process outlives the server.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Listening on %s", ln.Addr())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		s.orch.Stop()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")
	s.orch.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
