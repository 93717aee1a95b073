package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rumor-ml/commons.systems/budgetter/internal/handlers"
	"github.com/rumor-ml/commons.systems/budgetter/internal/middleware"
	"github.com/rumor-ml/commons.systems/budgetter/internal/streaming"
)

// Options configures the HTTP surface.
type Options struct {
	APIPrefix       string
	CORSOrigins     []string
	ShutdownTimeout time.Duration
	// Verifier enables bearer-token auth on the API routes when set.
	Verifier middleware.TokenVerifier
}

// Server represents the budget API server
type Server struct {
	api  *handlers.APIHandler
	hub  *streaming.StreamHub
	opts Options
	log  zerolog.Logger
	mux  *http.ServeMux
}

// New creates a new server instance
func New(api *handlers.APIHandler, hub *streaming.StreamHub, opts Options, log zerolog.Logger) *Server {
	if opts.APIPrefix == "" {
		opts.APIPrefix = "/api/v1"
	}
	opts.APIPrefix = "/" + strings.Trim(opts.APIPrefix, "/")
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{
		api:  api,
		hub:  hub,
		opts: opts,
		log:  log,
		mux:  http.NewServeMux(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health check (no auth required)
	s.mux.HandleFunc("GET /{$}", s.api.Root)
	s.mux.HandleFunc("GET /health", s.api.Health)

	protect := func(h http.HandlerFunc) http.Handler { return h }
	if s.opts.Verifier != nil {
		auth := middleware.NewAuthMiddleware(s.opts.Verifier)
		protect = func(h http.HandlerFunc) http.Handler { return auth.RequireAuth(h) }
	}

	routes := []struct {
		pattern string
		handler http.HandlerFunc
	}{
		{"GET /accounts", s.api.ListAccounts},
		{"POST /accounts", s.api.CreateAccount},
		{"GET /accounts/{id}", s.api.GetAccount},
		{"PUT /accounts/{id}", s.api.UpdateAccount},
		{"DELETE /accounts/{id}", s.api.DeleteAccount},

		{"GET /transactions", s.api.ListTransactions},
		{"POST /transactions", s.api.CreateTransaction},
		{"GET /transactions/{id}", s.api.GetTransaction},
		{"PUT /transactions/{id}", s.api.UpdateTransaction},
		{"DELETE /transactions/{id}", s.api.DeleteTransaction},

		{"GET /banks", s.api.ListBanks},
		{"POST /banks", s.api.CreateBank},
		{"GET /banks/{id}", s.api.GetBank},
		{"DELETE /banks/{id}", s.api.DeleteBank},

		{"GET /categories", s.api.ListCategories},
		{"POST /categories", s.api.CreateCategory},
		{"GET /categories/{id}", s.api.GetCategory},
		{"DELETE /categories/{id}", s.api.DeleteCategory},

		{"GET /rules", s.api.ListRules},
		{"POST /rules", s.api.CreateRule},
		{"GET /rules/{id}", s.api.GetRule},
		{"DELETE /rules/{id}", s.api.DeleteRule},

		{"POST /import/ofx", s.api.ImportOFX},
		{"POST /import/preview", s.api.PreviewOFX},

		{"GET /dashboard", s.api.Dashboard},
		{"POST /dashboard/recompute", s.api.RecomputeSavings},
	}
	for _, rt := range routes {
		method, path, _ := strings.Cut(rt.pattern, " ")
		s.mux.Handle(method+" "+s.opts.APIPrefix+path, protect(rt.handler))
	}

	// Dashboard subscriptions
	origins := s.opts.CORSOrigins
	ws := streaming.NewWebsocketHandler(s.hub, func(origin string) bool {
		return middleware.AllowOrigin(origins, origin)
	}, s.log)
	s.mux.Handle("GET /ws/dashboard/{room}", ws)
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return middleware.Chain(s.mux,
		middleware.RequestID,
		middleware.Logger(s.log),
		middleware.Recovery(s.log),
		middleware.CORS(s.opts.CORSOrigins),
	)
}

// ListenAndServe serves on addr until ctx is cancelled, then drains
// in-flight requests for up to the shutdown timeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Str("api_prefix", s.opts.APIPrefix).Msg("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	s.log.Info().Msg("shutting down server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
