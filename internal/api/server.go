// Package api serves relocation and registration over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/datagrid/phymv/internal/metrics"
	"github.com/datagrid/phymv/internal/phymv"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// UserHeader carries the caller identity. Authenticating it is the job of
// whatever sits in front of the server.
const UserHeader = "X-Phymv-User"

// Config contains configuration for the API server.
type Config struct {
	Service *phymv.Service
	Metrics http.Handler // defaults to metrics.Handler()
	Logger  zerolog.Logger
}

// Server is the phymv HTTP API.
type Server struct {
	svc      *phymv.Service
	engine   *gin.Engine
	server   *http.Server
	listener net.Listener
	logger   zerolog.Logger
}

// NewServer creates the API server and registers its routes.
func NewServer(cfg Config) *Server {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Handler()
	}
	s := &Server{
		svc:    cfg.Service,
		engine: gin.New(),
		logger: cfg.Logger.With().Str("component", "api").Logger(),
	}
	s.engine.Use(gin.Recovery(), requestID(), s.accessLog())

	s.engine.GET("/healthz", s.health)
	s.engine.GET("/metrics", gin.WrapH(cfg.Metrics))

	v1 := s.engine.Group("/v1")
	v1.POST("/relocate", s.relocate)
	v1.POST("/register", s.register)
	v1.POST("/unregister", s.unregister)
	v1.GET("/replicas", s.replicas)
	v1.GET("/resolve", s.resolve)
	v1.GET("/objects", s.objects)
	return s
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start listens on addr and serves in the background. Listen errors are
// returned; serve errors after a successful listen are logged.
func (s *Server) Start(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.listener = l
	s.server = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		if err := s.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("API server stopped")
		}
	}()
	s.logger.Info().Str("addr", l.Addr().String()).Msg("API server listening")
	return nil
}

// Addr returns the address the server listens on, once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop gracefully stops the server, waiting for in-flight requests until
// ctx is done. Relocations interrupted by the deadline roll back.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
