package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bbarnes4318/compliance/internal/domain"
	"github.com/bbarnes4318/compliance/internal/engine"
	"github.com/bbarnes4318/compliance/internal/extract"
	"github.com/bbarnes4318/compliance/internal/lifecycle"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, eng *engine.Service, lc *lifecycle.Service, classifier *extract.CELClassifier, version string) *Server {
	handler := NewHandler(repo, cache, bus, eng, lc, classifier, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints (no tenant required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// API routes (tenant required)
	router.Route("/", func(r chi.Router) {
		r.Use(TenantMiddleware)

		// Evidence analysis
		r.Post("/analyze", handler.Analyze)
		r.Get("/analyses/{id}", handler.GetAnalysis)

		// Incident lifecycle
		r.Post("/incidents", handler.CreateIncident)
		r.Get("/incidents", handler.ListIncidents)
		r.Get("/incidents/{id}", handler.GetIncident)
		r.Get("/incidents/{id}/timeline", handler.GetTimeline)
		r.Get("/incidents/number/{number}", handler.GetIncidentByNumber)
		r.Post("/incidents/{id}/investigate", handler.BeginInvestigation)
		r.Post("/incidents/{id}/escalate", handler.Escalate)
		r.Post("/incidents/{id}/determination", handler.Determine)
		r.Post("/incidents/{id}/refer/oig", handler.ReferToOIG)
		r.Post("/incidents/{id}/refer/cms", handler.ReferToCMS)
		r.Post("/incidents/{id}/resolve", handler.Resolve)
		r.Post("/incidents/{id}/close", handler.CloseIncident)

		// Classifier rule management
		r.Get("/classifier/rules", handler.ListClassifierRules)
		r.Post("/classifier/rules", handler.CreateClassifierRule)
		r.Post("/classifier/rules/reload", handler.ReloadClassifierRules)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
