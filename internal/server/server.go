// Package server provides the HTTP server and routing for subwatch.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/aristath/subwatch/internal/database"
	"github.com/aristath/subwatch/internal/modules/billing"
	billinghandlers "github.com/aristath/subwatch/internal/modules/billing/handlers"
	"github.com/aristath/subwatch/internal/modules/currency"
	currencyhandlers "github.com/aristath/subwatch/internal/modules/currency/handlers"
	renewalshandlers "github.com/aristath/subwatch/internal/modules/renewals/handlers"
	"github.com/aristath/subwatch/internal/scheduler"
)

// Config holds server configuration
type Config struct {
	Log             zerolog.Logger
	Converter       *currency.Converter
	Engine          *billing.Engine
	Providers       []string
	Gatherer        prometheus.Gatherer // Defaults to prometheus.DefaultGatherer
	DB              *database.DB        // Optional, pinged by /health
	Scheduler       *scheduler.Scheduler
	DefaultCurrency string
	Port            int
	DevMode         bool
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	cfg    Config
	log    zerolog.Logger
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		router: chi.NewRouter(),
		cfg:    cfg,
		log:    cfg.Log.With().Str("component", "server").Logger(),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{}))

	currencyHandler := currencyhandlers.NewHandler(s.cfg.Converter, s.log)
	billingHandler := billinghandlers.NewHandler(s.cfg.Engine, s.cfg.DefaultCurrency, s.log)
	renewalsHandler := renewalshandlers.NewHandler(s.log)

	s.router.Route("/api", func(r chi.Router) {
		currencyHandler.RegisterRoutes(r)
		billingHandler.RegisterRoutes(r)
		renewalsHandler.RegisterRoutes(r)
	})
}

// handleHealth reports process, cache, database and job status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK

	data := map[string]interface{}{
		"providers": s.cfg.Providers,
	}
	if s.cfg.Converter != nil {
		data["cached_rates"] = s.cfg.Converter.Cache().Len()
	}
	if s.cfg.Scheduler != nil {
		data["jobs"] = s.cfg.Scheduler.Jobs()
	}
	if s.cfg.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.cfg.DB.Conn().PingContext(ctx); err != nil {
			status = "unhealthy"
			code = http.StatusServiceUnavailable
			data["database_error"] = err.Error()
		}
	}
	data["status"] = status

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode health response")
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
