// Package server provides the HTTP API: universe management, collection
// triggers, gate approvals, scores, and the SSE event stream.
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
	"github.com/rs/zerolog"

	"github.com/aristath/equityscope/internal/config"
	"github.com/aristath/equityscope/internal/database"
	"github.com/aristath/equityscope/internal/events"
	"github.com/aristath/equityscope/internal/modules/collection"
	"github.com/aristath/equityscope/internal/modules/gating"
	"github.com/aristath/equityscope/internal/modules/scoring"
	"github.com/aristath/equityscope/internal/modules/universe"
)

// Config holds server dependencies.
type Config struct {
	Log       zerolog.Logger
	Config    *config.Config
	DB        *database.DB
	Universe  *universe.Manager
	Collector *collection.Orchestrator
	Gates     *gating.Service
	Scorer    *scoring.Engine
	Metrics   *scoring.MetricsRepository
	Bus       *events.Bus
	Statuses  *config.StatusRegistry
}

// Server is the HTTP server.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	log       zerolog.Logger
	cfg       *config.Config
	db        *database.DB
	universe  *universe.Manager
	collector *collection.Orchestrator
	gates     *gating.Service
	scorer    *scoring.Engine
	metrics   *scoring.MetricsRepository
	bus       *events.Bus
	statuses  *config.StatusRegistry

	runs *runGuard
}

// New creates the HTTP server.
func New(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		cfg:       cfg.Config,
		db:        cfg.DB,
		universe:  cfg.Universe,
		collector: cfg.Collector,
		gates:     cfg.Gates,
		scorer:    cfg.Scorer,
		metrics:   cfg.Metrics,
		bus:       cfg.Bus,
		statuses:  cfg.Statuses,
		runs:      &runGuard{},
	}

	s.setupMiddleware(cfg.Config.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		// SSE stream. Registered outside the timeout middleware: the
		// connection is long-lived by design.
		eventsHandler := NewEventsStreamHandler(s.bus, s.log)
		r.Get("/events/stream", eventsHandler.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Route("/universes", func(r chi.Router) {
				r.Get("/", s.handleListUniverses)
				r.Post("/", s.handleCreateUniverse)
				r.Get("/{id}", s.handleGetUniverse)
				r.Delete("/{id}", s.handleDeleteUniverse)
				r.Get("/{id}/members", s.handleUniverseMembers)
				r.Post("/{id}/symbols", s.handleAddSymbols)
				r.Delete("/{id}/symbols", s.handleRemoveSymbols)
				r.Post("/sp500/refresh", s.handleRefreshIndex)
			})

			r.Route("/collection", func(r chi.Router) {
				r.Post("/run", s.handleCollectionRun)
				r.Get("/estimate", s.handleCollectionEstimate)
				r.Get("/report", s.handleCollectionReport)
			})

			r.Route("/gates", func(r chi.Router) {
				r.Post("/expire", s.handleGateExpire)
				r.Get("/{symbol}", s.handleGateEvaluateAll)
				r.Route("/{symbol}/{component}", func(r chi.Router) {
					r.Get("/", s.handleGateEvaluate)
					r.Post("/approve", s.handleGateApprove)
					r.Post("/reject", s.handleGateReject)
					r.Get("/history", s.handleGateHistory)
					r.Get("/versions", s.handleVersionHistory)
					r.Get("/active", s.handleActiveVersion)
				})
			})

			r.Get("/admission/{symbol}", s.handleAdmission)

			r.Route("/scores", func(r chi.Router) {
				r.Post("/run", s.handleScoreRun)
				r.Get("/top", s.handleTopScores)
				r.Get("/{symbol}", s.handleGetScore)
			})

			r.Route("/system", func(r chi.Router) {
				r.Get("/status", s.handleSystemStatus)
				r.Get("/sources", s.handleSourceStatuses)
				r.Get("/methodology", s.handleMethodology)
				r.Get("/rules", s.handleRules)
				r.Get("/database/stats", s.handleDatabaseStats)
			})
		})
	})
}

// Start starts the HTTP server. Blocks until shutdown or failure.
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"service": "equityscope",
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("failed to encode JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
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
