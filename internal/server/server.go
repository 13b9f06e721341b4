package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/watzon/markguard/internal/config"
	"github.com/watzon/markguard/internal/database"
	"github.com/watzon/markguard/internal/publish"
	"github.com/watzon/markguard/internal/ratelimit"
	"github.com/watzon/markguard/internal/sanitize"
	"github.com/watzon/markguard/internal/server/requestlog"
	"github.com/watzon/markguard/internal/storage"
)

type Server struct {
	cfg         *config.Config
	db          *database.DB
	backend     storage.Backend
	service     *publish.Service
	limiter     *ratelimit.Limiter
	requestLogs *requestlog.Store
	version     string
	httpServer  *http.Server
	router      *Router
}

const defaultRequestLogCapacity = 1000

type Option func(*Server)

// WithRateLimiter throttles the /api routes.
func WithRateLimiter(l *ratelimit.Limiter) Option {
	return func(s *Server) {
		s.limiter = l
	}
}

func WithVersion(version string) Option {
	return func(s *Server) {
		s.version = version
	}
}

// New wires the HTTP API. When service has no store the publication routes
// are not registered; db and backend may then be nil.
func New(cfg *config.Config, db *database.DB, backend storage.Backend, service *publish.Service, opts ...Option) (*Server, error) {
	srv := &Server{
		cfg:         cfg,
		db:          db,
		backend:     backend,
		service:     service,
		requestLogs: requestlog.NewStore(defaultRequestLogCapacity),
		version:     "dev",
	}

	for _, opt := range opts {
		opt(srv)
	}

	strategy, err := sanitize.ParseStrategy(cfg.Sanitizer.Strategy)
	if err != nil {
		return nil, fmt.Errorf("configuring sanitizer: %w", err)
	}

	router, err := NewRouter(srv, strategy)
	if err != nil {
		return nil, err
	}
	srv.router = router

	srv.httpServer = &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      srv.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return srv, nil
}

// Start listens on the configured address and blocks until the server is
// shut down.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until the server is shut down. Request
// contexts carry ctx's values but not its cancellation; Shutdown drains them.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	base := context.WithoutCancel(ctx)
	s.httpServer.BaseContext = func(net.Listener) context.Context { return base }

	tls := s.cfg.Server.TLS
	log.Info().
		Str("addr", ln.Addr().String()).
		Bool("tls", tls != nil && tls.Enabled).
		Msg("Starting server")

	var err error
	if tls != nil && tls.Enabled {
		err = s.httpServer.ServeTLS(ln, tls.CertFile, tls.KeyFile)
	} else {
		err = s.httpServer.Serve(ln)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Config() *config.Config {
	return s.cfg
}

func (s *Server) RequestLogs() *requestlog.Store {
	return s.requestLogs
}
