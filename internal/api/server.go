package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"mediarelay/internal/engine"
	"mediarelay/internal/logging"
	"mediarelay/internal/services"
)

// Server serves the HTTP API for one engine.
type Server struct {
	engine         *engine.Engine
	logger         *slog.Logger
	router         *chi.Mux
	maxUploadBytes int64

	bind     string
	listener net.Listener
	server   *http.Server
}

// NewServer builds the router. bind may be empty when the caller only needs
// Handler.
func NewServer(e *engine.Engine, logger *slog.Logger) (*Server, error) {
	if e == nil {
		return nil, errors.New("api server requires an engine")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	cfg := e.Config()
	s := &Server{
		engine:         e,
		logger:         logging.NewComponentLogger(logger, "api-server"),
		router:         chi.NewRouter(),
		maxUploadBytes: int64(cfg.API.MaxUploadMiB) << 20,
		bind:           strings.TrimSpace(cfg.API.Bind),
	}
	s.registerRoutes()
	return s, nil
}

// Handler exposes the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.correlate)

	s.router.Get("/healthz", s.health)
	if m := s.engine.Metrics(); m != nil {
		s.router.Handle("/metrics", m.Handler())
	}

	s.router.Route("/v1", func(r chi.Router) {
		r.Route("/conversions", func(r chi.Router) {
			r.Post("/", s.submit)
			r.Get("/", s.listJobs)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.jobStatus)
				r.Post("/subtitles", s.requestSubtitles)
				r.Get("/subtitles", s.subtitleStatus)
				r.Post("/subtitles/{lang}/retry", s.retrySubtitle)
			})
		})
		r.Post("/runs/{kind}", s.triggerRun)
	})
}

// correlate copies the chi request id into the services context so log
// lines carry it.
func (s *Server) correlate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			r = r.WithContext(services.WithRequestID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// Start listens on the configured bind address and serves until ctx ends.
func (s *Server) Start(ctx context.Context) error {
	if s.bind == "" {
		return errors.New("api bind address not configured")
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(s.logger, "api server error", "api_server_failed", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("api server listening",
		logging.String(logging.FieldEventType, "api_listening"),
		logging.String("address", listener.Addr().String()),
	)
	return nil
}

// Addr returns the bound address once Start succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down.
func (s *Server) Stop() {
	if s.server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
}
