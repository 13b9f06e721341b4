package server

import (
	"net/http"

	"github.com/watzon/markguard/internal/metrics"
	"github.com/watzon/markguard/internal/sanitize"
	"github.com/watzon/markguard/internal/server/handlers"
	"github.com/watzon/markguard/internal/server/requestlog"
)

type Router struct {
	server      *Server
	mux         *http.ServeMux
	middlewares []Middleware
}

type Middleware func(http.Handler) http.Handler

func NewRouter(srv *Server, strategy sanitize.Strategy) (*Router, error) {
	r := &Router{
		server: srv,
		mux:    http.NewServeMux(),
	}

	if err := r.setupMiddleware(); err != nil {
		return nil, err
	}
	r.setupRoutes(strategy)

	return r, nil
}

func (r *Router) setupMiddleware() error {
	cfg := r.server.cfg.Server

	r.Use(RecoveryMiddleware)
	r.Use(RequestIDMiddleware)
	r.Use(ClientIPMiddleware(r.server.cfg.RateLimit.TrustProxyHeaders))
	r.Use(LoggingMiddleware)

	if cfg.CORS.Enabled {
		r.Use(CORSMiddleware(cfg.CORS))
	}

	r.Use(MetricsMiddleware)
	r.Use(requestlog.Middleware(r.server.requestLogs))

	if cfg.MaxBodySize > 0 {
		r.Use(MaxBodySizeMiddleware(cfg.MaxBodySize))
	}

	if cfg.Compression {
		compress, err := CompressionMiddleware()
		if err != nil {
			return err
		}
		r.Use(compress)
	}

	return nil
}

func (r *Router) Use(mw Middleware) {
	r.middlewares = append(r.middlewares, mw)
}

func (r *Router) setupRoutes(strategy sanitize.Strategy) {
	srv := r.server

	health := handlers.NewHealthHandlers(srv.db, srv.backend, srv.cfg.Publish.Bucket, srv.version)
	r.mux.HandleFunc("GET /health", health.Health)
	r.mux.HandleFunc("GET /health/live", health.Liveness)
	r.mux.HandleFunc("GET /health/ready", health.Readiness)
	r.mux.HandleFunc("GET /health/stats", health.Stats)
	r.mux.Handle("GET /metrics", metrics.Handler())

	h := handlers.New(srv.service, strategy, int64(srv.cfg.Markdown.MaxDocumentSize))
	r.api("POST /api/sanitize", h.Sanitize)
	r.api("POST /api/preview", h.Preview)
	r.api("GET /api/preview/live", h.LivePreview)

	if srv.service.Store() != nil {
		r.api("POST /api/publish", h.Publish)
		r.api("GET /api/publications", h.ListPublications)
		r.api("GET /api/publications/{id}", h.GetPublication)
		r.api("GET /api/publications/{id}/content", h.PublicationContent)
		r.api("DELETE /api/publications/{id}", h.DeletePublication)
	}

	activity := handlers.NewActivityHandler(srv.requestLogs)
	r.api("GET /api/activity", activity.List)
}

// api registers an /api route behind the rate limiter, when one is set.
func (r *Router) api(pattern string, fn http.HandlerFunc) {
	var handler http.Handler = fn
	if r.server.limiter != nil {
		handler = r.server.limiter.Middleware(handler)
	}
	r.mux.Handle(pattern, handler)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	handler := http.Handler(r.mux)

	for i := len(r.middlewares) - 1; i >= 0; i-- {
		handler = r.middlewares[i](handler)
	}

	handler.ServeHTTP(w, req)
}
