// Package status serves liveness, readiness, Prometheus metrics and a JSON
// snapshot of every domain record.
package status

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bkero/dyndns-updater/pkg/record"
)

// Engine is the part of the update engine the status server reads.
type Engine interface {
	Ready() bool
	PendingRetries() int
	Store() *record.Store
}

// Response is the body of GET /status.
type Response struct {
	Ready          bool                  `json:"ready"`
	Provider       string                `json:"provider"`
	PendingRetries int                   `json:"pending_retries"`
	Domains        []record.DomainRecord `json:"domains"`
}

// Server is the HTTP status server.
type Server struct {
	engine   Engine
	provider string
	log      *slog.Logger
	router   *gin.Engine
}

// New returns a Server reporting on eng. providerName is echoed in /status.
// When corsOrigins is non-empty, browsers on those origins may read the
// endpoints.
func New(eng Engine, providerName string, log *slog.Logger, corsOrigins ...string) *Server {
	if log == nil {
		log = slog.Default()
	}
	gin.SetMode(gin.ReleaseMode)
	s := &Server{engine: eng, provider: providerName, log: log, router: gin.New()}
	s.router.Use(gin.Recovery(), s.logRequests)
	if len(corsOrigins) > 0 {
		s.router.Use(cors.New(cors.Config{
			AllowOrigins: corsOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodOptions},
			AllowHeaders: []string{"Origin", "Accept"},
			MaxAge:       12 * time.Hour,
		}))
	}
	s.router.GET("/healthz", s.healthz)
	s.router.GET("/readyz", s.readyz)
	s.router.GET("/status", s.status)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return s
}

// Handler returns the router, for tests and custom listeners.
func (s *Server) Handler() http.Handler { return s.router }

// healthz reports liveness.
// GET /healthz
func (s *Server) healthz(c *gin.Context) {
	c.String(http.StatusOK, "ok\n")
}

// readyz reports 200 once a sweep has completed with a resolved address.
// GET /readyz
func (s *Server) readyz(c *gin.Context) {
	if s.engine.Ready() {
		c.String(http.StatusOK, "ok\n")
		return
	}
	c.String(http.StatusServiceUnavailable, "not ready\n")
}

// status returns the current record of every domain.
// GET /status
func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Ready:          s.engine.Ready(),
		Provider:       s.provider,
		PendingRetries: s.engine.PendingRetries(),
		Domains:        s.engine.Store().Snapshot(),
	})
}

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.log.Debug("status request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"duration", time.Since(start).String(),
	)
}

// Start listens on port and serves until ctx is cancelled, then shuts down
// gracefully. A port of 0 disables the server. Listen errors are returned
// immediately; serve errors are logged.
func (s *Server) Start(ctx context.Context, port int) error {
	if port == 0 {
		return nil
	}
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("status server listen: %w", err)
	}
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			s.log.Warn("status server shutdown error", "err", err)
		}
	}()
	go func() {
		s.log.Info("status server listening", "port", port)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("status server error", "err", err)
		}
	}()
	return nil
}
