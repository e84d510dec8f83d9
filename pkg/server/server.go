// Package server provides the public entry point for initializing the
// candlelens server.
//
// Usage:
//
//	srv, err := server.New(ctx)
//	srv.Monitor.Start(ctx)
//	http.ListenAndServe(":3000", srv.Handler)
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/candlelens/candlelens/internal/analysis"
	"github.com/candlelens/candlelens/internal/api"
	"github.com/candlelens/candlelens/internal/api/handlers"
	"github.com/candlelens/candlelens/internal/api/middleware"
	"github.com/candlelens/candlelens/internal/config"
	"github.com/candlelens/candlelens/internal/cost"
	"github.com/candlelens/candlelens/internal/prediction"
	"github.com/candlelens/candlelens/internal/reasoning"
	"github.com/candlelens/candlelens/internal/taxonomy"
	"github.com/candlelens/candlelens/internal/telemetry"
	"github.com/candlelens/candlelens/internal/vision"
	"github.com/candlelens/candlelens/internal/warmup"
)

// Server holds the initialized candlelens components.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Config is the server configuration.
	Config *config.Config

	// Port is the port the server should listen on.
	Port int

	// Monitor drives the one-shot vision model warmup. It is not started
	// by New; callers decide whether to run it in the background.
	Monitor *warmup.Monitor

	// Service runs analyses outside of HTTP (used by the analyze command).
	Service *analysis.Service

	// Ledger accumulates spend since start.
	Ledger *cost.Ledger

	// ShutdownFunc should be called on graceful shutdown to flush telemetry.
	ShutdownFunc func(context.Context) error
}

// New loads configuration from the environment and builds a Server.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load())
}

// NewWithConfig builds a Server from an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	patterns, err := taxonomy.Load(cfg.TaxonomyPath)
	if err != nil {
		return nil, fmt.Errorf("load taxonomy: %w", err)
	}
	log.Info().Int("patterns", len(patterns)).Str("path", cfg.TaxonomyPath).Msg("✅ Pattern taxonomy loaded")

	shutdown, err := telemetry.Init(ctx, cfg.Telemetry, cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	hc := &http.Client{Timeout: cfg.HTTPTimeout}

	replicate := prediction.NewClient(cfg.Replicate.APIToken,
		prediction.WithBaseURL(cfg.Replicate.BaseURL),
		prediction.WithHTTPClient(hc),
	)
	poller := prediction.NewPoller(replicate, prediction.WithInterval(cfg.Replicate.PollInterval))

	describer := vision.NewDescriber(replicate, poller,
		vision.WithVersion(cfg.Replicate.VisionVersion),
		vision.WithPollAttempts(cfg.Replicate.VisionMaxAttempts),
	)
	monitor := warmup.NewMonitor(warmup.NewCell(), poller,
		warmup.WithVersion(cfg.Replicate.VisionVersion),
		warmup.WithImageURL(cfg.Replicate.WarmupImageURL),
		warmup.WithMaxAttempts(cfg.Replicate.WarmupMaxAttempts),
	)
	log.Info().Str("version", cfg.Replicate.VisionVersion).Msg("✅ Vision client initialized")

	reasoner := reasoning.NewClient(cfg.DeepSeek.APIKey,
		reasoning.WithBaseURL(cfg.DeepSeek.BaseURL),
		reasoning.WithModel(cfg.DeepSeek.Model),
		reasoning.WithHTTPClient(hc),
	)
	log.Info().Str("model", cfg.DeepSeek.Model).Msg("✅ Reasoning client initialized")

	ledger := cost.NewLedger()
	svc := analysis.NewService(monitor, describer, reasoner, patterns, analysis.WithLedger(ledger))

	auth := middleware.NewAPIKeyAuth(cfg.Auth.APIKeys)
	if auth.Enabled() {
		log.Info().Msg("🔐 API key auth enabled for /analyze and /api/costs")
	}

	h := handlers.New(svc, monitor, ledger)
	router := api.NewRouter(cfg, h, auth)

	return &Server{
		Handler:      router,
		Config:       cfg,
		Port:         cfg.Port,
		Monitor:      monitor,
		Service:      svc,
		Ledger:       ledger,
		ShutdownFunc: shutdown,
	}, nil
}
