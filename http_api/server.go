// Package http_api exposes the scan engine over HTTP: scans, cancellation,
// live progress (polling and WebSocket), the project picker and metrics.
package http_api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"

	"github.com/morler/repomuse/code_analyzer/contracts"
	"github.com/morler/repomuse/config"
	"github.com/morler/repomuse/logger"
	"github.com/morler/repomuse/metrics"
	"github.com/morler/repomuse/project_picker"
)

// ProjectLister is the picker as seen by the API
type ProjectLister interface {
	List(ctx context.Context, root string) ([]project_picker.Project, error)
}

// Server is a thin wrapper over chi and http.Server
type Server struct {
	addr     string
	analyzer contracts.ICodeAnalyzer
	picker   ProjectLister
	hub      *Hub
	metrics  *metrics.Metrics
	validate *validator.Validate
	mux      *chi.Mux
	srv      *http.Server
	log      *logger.Logger
}

// NewServer wires the routes. hub should be the progress sink of analyzer.
func NewServer(cfg config.ServerConfig, analyzer contracts.ICodeAnalyzer, picker ProjectLister, hub *Hub, m *metrics.Metrics) *Server {
	s := &Server{
		addr:     cfg.Addr,
		analyzer: analyzer,
		picker:   picker,
		hub:      hub,
		metrics:  m,
		validate: validator.New(),
		mux:      chi.NewRouter(),
		log:      logger.Named("http"),
	}
	s.routes(cfg.AllowedOrigins)
	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes(origins []string) {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(s.log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(middleware.Heartbeat("/healthz"))

	r.Route("/api", func(r chi.Router) {
		r.Post("/scans", s.handleScan)
		r.Post("/scans/batch", s.handleBatch)
		r.Delete("/scans", s.handleCancel)
		r.Get("/progress", s.handleProgress)
		r.Get("/projects", s.handleProjects)
		r.Get("/cache/stats", s.handleCacheStats)
		r.Delete("/cache", s.handleClearCache)
		if s.hub != nil {
			r.Get("/ws", s.hub.ServeHTTP)
		}
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
}

// Handler returns the root handler, used by tests
func (s *Server) Handler() http.Handler { return s.mux }

// Addr returns the listening address
func (s *Server) Addr() string { return s.addr }

// Run serves until ctx ends, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.addr).Msg("http listening")
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}

// OriginChecker matches a request origin against patterns that may hold one '*'
func OriginChecker(patterns []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, p := range patterns {
			if p == "*" || p == origin {
				return true
			}
			if prefix, suffix, ok := strings.Cut(p, "*"); ok &&
				strings.HasPrefix(origin, prefix) && strings.HasSuffix(origin[len(prefix):], suffix) {
				return true
			}
		}
		return false
	}
}

// accessLog logs one line per request
func accessLog(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("took", time.Since(start)).
				Msg("request")
		})
	}
}
