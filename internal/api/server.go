package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/amaumene/gomovarr/internal/api/handlers"
	"github.com/amaumene/gomovarr/internal/api/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Renamer is what the server needs from the renamer
type Renamer interface {
	handlers.Scanner
	handlers.Job
}

// Tracker is what the server needs from the release status tracker
type Tracker interface {
	handlers.SnatchedChecker
	handlers.Job
}

// Deps are the collaborators served over HTTP
type Deps struct {
	Store    handlers.ReleaseCounter
	Renamer  Renamer
	Tracker  Tracker
	Gatherer prometheus.Gatherer
}

// Server represents the HTTP server
type Server struct {
	server *http.Server
	logger *logrus.Logger
}

// NewServer creates a new HTTP server listening on port
func NewServer(port string, deps Deps, logger *logrus.Logger) *Server {
	s := &Server{logger: logger}

	s.server = &http.Server{
		Addr:         ":" + port,
		Handler:      middleware.Logging(NewRouter(deps, logger), logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// NewRouter configures all HTTP routes
func NewRouter(deps Deps, logger *logrus.Logger) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("/health", handlers.NewHealthHandler(logger))
	mux.Handle("/status", handlers.NewStatusHandler(deps.Store, deps.Renamer, deps.Tracker, logger))
	mux.Handle("/scan", handlers.NewScanHandler(deps.Renamer, logger))
	mux.Handle("/check_snatched", handlers.NewCheckSnatchedHandler(deps.Tracker, logger))
	mux.Handle("/api/webhook/torbox", handlers.NewWebhookHandler(deps.Tracker, logger))

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return mux
}

// Start starts the HTTP server and blocks until ctx is done
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithField("port", s.server.Addr).Info("Starting HTTP server")

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}
