// Package api exposes the HTTP surface: registration, login, the protected
// markets proxy, quota introspection, liveness, and Prometheus metrics.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/marketdash/marketd/pkg/auth"
	"github.com/marketdash/marketd/pkg/market"
	"github.com/marketdash/marketd/pkg/store"
)

// Server wires the HTTP handlers to their dependencies.
type Server struct {
	listen string
	users  *store.Users
	tokens *auth.TokenManager
	market *market.Service
	logger zerolog.Logger
	mux    *http.ServeMux
}

// New creates a Server and registers all routes.
func New(listen string, users *store.Users, tokens *auth.TokenManager, marketSvc *market.Service) *Server {
	s := &Server{
		listen: listen,
		users:  users,
		tokens: tokens,
		market: marketSvc,
		logger: log.With().Str("component", "api").Logger(),
		mux:    http.NewServeMux(),
	}

	s.mux.HandleFunc("/register", s.handleRegister)
	s.mux.HandleFunc("/login", s.handleLogin)
	s.mux.HandleFunc("/api/coins/markets", s.requireUser(s.handleMarkets))
	s.mux.HandleFunc("/me", s.requireUser(s.handleMe))
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.Handle("/metrics", promhttp.Handler())

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe runs the server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.listen,
		Handler: s,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("listen", s.listen).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}
