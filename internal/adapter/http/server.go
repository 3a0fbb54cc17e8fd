// Package http exposes the clean dataset to presentation consumers. All
// dataset endpoints are read-only views; the only mutation is the explicit
// refresh signal.
package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voltmap/irve-etl/internal/domain"
	"github.com/voltmap/irve-etl/internal/loader"
)

// DatasetProvider is the cache surface the API reads from.
// Satisfied by *cache.Cache.
type DatasetProvider interface {
	GetOrBuild(ctx context.Context, src loader.Source) (*domain.CleanDataset, error)
	Refresh(ctx context.Context, src loader.Source) (*domain.CleanDataset, error)
	Current(src loader.Source) *domain.CleanDataset
	Invalidate(src loader.Source)
	LastError(src loader.Source) (time.Time, error)
}

// Server bundles router and dependencies for the REST API.
type Server struct {
	addr     string
	src      loader.Source
	provider DatasetProvider
	logger   *slog.Logger
	engine   *gin.Engine
}

// NewServer constructs the API server with routes and middleware.
func NewServer(addr string, src loader.Source, provider DatasetProvider, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		addr:     addr,
		src:      src,
		provider: provider,
		logger:   logger,
		engine:   engine,
	}
	s.registerRoutes()
	return s
}

// Engine exposes the underlying gin engine (for tests).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/readyz", s.handleReady)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.engine.Group("/api/v1")
	{
		v1.GET("/records", s.handleRecords)
		v1.GET("/stats", s.handleStats)
		v1.GET("/operators", s.handleOperators)
		v1.GET("/tiers", s.handleTiers)
		v1.GET("/years", s.handleYears)
		v1.POST("/refresh", s.handleRefresh)
	}
}

// Run starts the HTTP server and blocks until the context is cancelled,
// then drains connections within the given shutdown timeout.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.engine,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server starting", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
