// Package server provides the public entry point for initializing the
// MindMesh cognitive engine server.
//
// This package exists in pkg/ (not internal/) so embedders can compose
// the engine with their own transport or middleware:
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(":8080", srv.Handler)
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mindmesh/mindmesh/internal/api"
	"github.com/mindmesh/mindmesh/internal/backend"
	"github.com/mindmesh/mindmesh/internal/budget"
	"github.com/mindmesh/mindmesh/internal/classify"
	"github.com/mindmesh/mindmesh/internal/config"
	"github.com/mindmesh/mindmesh/internal/engine"
	"github.com/mindmesh/mindmesh/internal/executor"
	"github.com/mindmesh/mindmesh/internal/planner"
	"github.com/mindmesh/mindmesh/internal/prompt"
	"github.com/mindmesh/mindmesh/internal/router"
	"github.com/mindmesh/mindmesh/internal/telemetry"
	"github.com/mindmesh/mindmesh/pkg/models"

	"github.com/rs/zerolog/log"
)

// Server holds the initialized MindMesh engine and its HTTP surface.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Engine is the cognitive engine. Exposed so embedders can call
	// Process directly instead of going over HTTP.
	Engine *engine.Engine

	// Config is the resolved server configuration.
	Config *config.Config

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc should be called on graceful shutdown to flush telemetry.
	ShutdownFunc func(context.Context) error
}

// New initializes all engine components from the environment and
// returns a ready Server. Background loops are started on ctx; cancel
// it or call Close to stop them.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load())
}

// NewWithConfig initializes the engine with an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	shutdown, err := telemetry.Init(cfg.Telemetry, cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	clients := buildClients(cfg)
	tracker := budget.New(cfg.Budget.HourlyUSD)
	tr := router.New(clients, tracker, models.DefaultTierConfigs())
	log.Info().Float64("hourly_budget_usd", cfg.Budget.HourlyUSD).Msg("✅ Tier router initialized")

	exec := executor.New(tr, prompt.NewBuilder(prompt.StaticProfiles{}, prompt.NoMemory{}), classify.New(), models.DefaultTierConfigs())
	pl := planner.New(planner.DefaultThresholds())

	en := engine.New(pl, exec, tr, engine.Options{
		SynthesisInterval: cfg.Scheduler.SynthesisInterval,
		CleanupInterval:   cfg.Scheduler.CleanupInterval,
	})
	en.Start(ctx)
	log.Info().Msg("✅ Cognitive engine initialized")

	return &Server{
		Handler:      api.NewRouter(cfg, en),
		Engine:       en,
		Config:       cfg,
		Port:         cfg.Port,
		ShutdownFunc: shutdown,
	}, nil
}

// buildClients wires one inference client per backend tier. Tiers with
// a configured URL get the real vLLM client; the rest run on the mock
// so the engine works without GPUs.
func buildClients(cfg *config.Config) map[models.BackendTier]backend.Client {
	urls := map[models.BackendTier]string{
		models.BackendSmall:  cfg.Backends.SmallURL,
		models.BackendMedium: cfg.Backends.MediumURL,
		models.BackendLarge:  cfg.Backends.LargeURL,
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.Backends.HTTPClient.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.Backends.HTTPClient.MaxIdleConnsPerHost,
	}
	httpClient := &http.Client{Transport: transport}

	clients := make(map[models.BackendTier]backend.Client, len(urls))
	for tier, ep := range backend.DefaultEndpointConfigs() {
		if url := urls[tier]; url != "" {
			ep.URL = url
			clients[tier] = backend.NewHTTPClient(ep, httpClient)
			log.Info().Str("tier", string(tier)).Str("url", url).Str("model", ep.ModelName).Msg("backend configured")
		} else {
			clients[tier] = backend.NewMockClient(tier, backend.DefaultMockConfig())
			log.Info().Str("tier", string(tier)).Msg("backend configured (mock)")
		}
	}
	return clients
}
