package api

import (
	"encoding/json"
	"net/http"

	"github.com/mindmesh/mindmesh/internal/api/handlers"
	"github.com/mindmesh/mindmesh/internal/api/middleware"
	"github.com/mindmesh/mindmesh/internal/config"
	"github.com/mindmesh/mindmesh/internal/engine"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates the HTTP router with all API routes.
func NewRouter(cfg *config.Config, en *engine.Engine) http.Handler {
	h := handlers.New(en)

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "X-Trace-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health & info
	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler(cfg))

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// Cognition
		r.Route("/cognitive", func(r chi.Router) {
			r.Post("/process", h.ProcessStimulus)
			r.Route("/mind/{agentID}", func(r chi.Router) {
				r.Get("/", h.GetMindState)
				r.Post("/invalidate", h.InvalidateThoughts)
				r.Get("/contribution", h.GetContribution)
				r.Post("/externalize", h.MarkExternalized)
			})
		})

		// Model Router
		r.Route("/models", func(r chi.Router) {
			r.Get("/status", h.GetModelStatus)
			r.Get("/budget", h.GetBudgetStatus)
		})
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "mindmesh",
	})
}

func versionHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"version": cfg.Version,
			"service": "mindmesh",
		})
	}
}
