// If you are AI: This file implements the HTTP status server lifecycle and routing.

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"portbridge/internal/config"
	"portbridge/internal/svc/api"
	"portbridge/internal/svc/health"
)

// Server wraps the health and API HTTP servers.
type Server struct {
	healthServer *http.Server
	apiServer    *http.Server
	log          zerolog.Logger
}

// New creates a new server instance with the given configuration.
// The server is not started until Start is called.
func New(cfg *config.Config, healthSvc *health.Service, apiSvc *api.Service, logger zerolog.Logger) *Server {
	healthMux := http.NewServeMux()
	healthSvc.RegisterRoutes(healthMux)

	apiMux := http.NewServeMux()
	apiSvc.RegisterRoutes(apiMux)

	return &Server{
		healthServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.HealthPort),
			Handler:           healthMux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		apiServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
			Handler:           apiMux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: logger.With().Str("component", "server").Logger(),
	}
}

// Start begins serving HTTP requests on both listeners.
// This method blocks until the servers are stopped or one fails; a clean
// shutdown returns http.ErrServerClosed.
func (s *Server) Start() error {
	errc := make(chan error, 2)
	for _, srv := range []*http.Server{s.healthServer, s.apiServer} {
		go func(srv *http.Server) {
			s.log.Info().Str("addr", srv.Addr).Msg("listening")
			errc <- srv.ListenAndServe()
		}(srv)
	}

	first := <-errc
	if !errors.Is(first, http.ErrServerClosed) {
		return first
	}
	second := <-errc
	if !errors.Is(second, http.ErrServerClosed) {
		return second
	}
	return http.ErrServerClosed
}

// Shutdown gracefully stops both servers.
// Returns an error if shutdown fails or times out.
func (s *Server) Shutdown(ctx context.Context) error {
	return errors.Join(
		s.healthServer.Shutdown(ctx),
		s.apiServer.Shutdown(ctx),
	)
}

// ShutdownWithTimeout stops the server with a fixed 5-second timeout.
// This is a convenience wrapper around Shutdown.
func (s *Server) ShutdownWithTimeout() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}
