package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/snarg/cel-logd/internal/config"
	"github.com/snarg/cel-logd/internal/database"
	"github.com/snarg/cel-logd/internal/metrics"
)

// BusChecker reports bus connectivity for the health endpoint.
type BusChecker interface {
	IsConnected() bool
}

// Server is the HTTP surface: health, metrics, and call log queries.
type Server struct {
	cfg       *config.Config
	db        *database.DB
	bus       BusChecker
	version   string
	startTime time.Time
	log       zerolog.Logger
	srv       *http.Server
}

func NewServer(cfg *config.Config, db *database.DB, bus BusChecker, version string, log zerolog.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		db:        db,
		bus:       bus,
		version:   version,
		startTime: time.Now(),
		log:       log.With().Str("component", "api").Logger(),
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(s.log))
	r.Use(Recoverer)
	r.Use(metrics.Middleware)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(BearerAuth(cfg.AuthToken))
		r.Get("/call_logs", s.handleListCallLogs)
		r.Get("/call_logs/export", s.handleExportCallLogs)
	})

	s.srv = &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Start blocks until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.cfg.HTTPAddr).Msg("http server listening")
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.srv.Shutdown(ctx)
}
