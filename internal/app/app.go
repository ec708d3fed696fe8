// Package app wires the orchestrator components from a loaded configuration.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/guan4tou2/Lnadlse/internal/adapters/beatconfig"
	"github.com/guan4tou2/Lnadlse/internal/adapters/builder"
	"github.com/guan4tou2/Lnadlse/internal/adapters/docker"
	"github.com/guan4tou2/Lnadlse/internal/config"
	"github.com/guan4tou2/Lnadlse/internal/core/domain"
	"github.com/guan4tou2/Lnadlse/internal/core/inventory"
	"github.com/guan4tou2/Lnadlse/internal/core/lifecycle"
	"github.com/guan4tou2/Lnadlse/internal/core/ports"
	"github.com/guan4tou2/Lnadlse/internal/core/readiness"
	"github.com/guan4tou2/Lnadlse/internal/metrics"
)

// Engine is what the entry points need from the container engine.
type Engine interface {
	ports.EngineGateway
	ports.LogReader
}

// App holds the wired components. Every component shares one engine.
type App struct {
	Config     *config.Config
	Lab        *domain.Lab
	Engine     Engine
	Metrics    *metrics.Metrics
	Builder    ports.ImageBuilder
	Gate       *readiness.Gate
	Inventory  *inventory.Classifier
	Controller *lifecycle.Controller

	closer func() error
}

// New connects to the engine, pings it once and wires the lab loaded from cfg.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	engine, err := docker.NewAdapter(cfg.Engine.Host)
	if err != nil {
		return nil, err
	}
	if err := engine.Ping(ctx); err != nil {
		_ = engine.Close()
		return nil, err
	}

	lab, err := config.LoadLab(ctx, cfg)
	if err != nil {
		_ = engine.Close()
		return nil, fmt.Errorf("failed to load lab: %w", err)
	}

	a := Wire(cfg, lab, engine, builder.NewBuilderAdapter(engine))
	a.closer = engine.Close
	log.Info().Str("network", lab.Network).Strs("groups", lab.GroupNames()).Msg("orchestrator ready")
	return a, nil
}

// Wire builds the component graph over an already connected engine.
func Wire(cfg *config.Config, lab *domain.Lab, engine Engine, images ports.ImageBuilder) *App {
	m := metrics.New()

	prober := readiness.NewProber(beatconfig.NewWriter(cfg.Lab.Root), readiness.WithMetrics(m))
	gate := readiness.NewGate(prober, engine, lab, readiness.GateConfig{
		Budget:      readiness.Budget{MaxAttempts: cfg.Readiness.Attempts, Delay: cfg.Readiness.Delay},
		Network:     lab.Network,
		Client:      readiness.NewHTTPClient(cfg.Readiness.Timeout, cfg.Readiness.InsecureTLS),
		Credentials: probeCredentials(lab, cfg.Credentials),
		Metrics:     m,
	})

	attacker := domain.Credentials{Username: cfg.Credentials.AttackerUser, Password: cfg.Credentials.AttackerPassword}
	inv := inventory.NewClassifier(engine, lab.Network, inventory.DefaultTemplates(cfg.Credentials.ElasticPassword, attacker))

	ctrl := lifecycle.NewController(engine, images, gate, lab, lifecycle.Options{Metrics: m})

	return &App{
		Config:     cfg,
		Lab:        lab,
		Engine:     engine,
		Metrics:    m,
		Builder:    images,
		Gate:       gate,
		Inventory:  inv,
		Controller: ctrl,
	}
}

// probeCredentials gives every service whose check authenticates the
// search engine credentials.
func probeCredentials(lab *domain.Lab, c config.CredentialsConfig) map[string]domain.Credentials {
	creds := map[string]domain.Credentials{}
	for _, g := range lab.Groups {
		for _, s := range g.Services {
			if s.Readiness != nil && s.Readiness.UseCredentials {
				creds[s.Name] = domain.Credentials{Username: c.ElasticUser, Password: c.ElasticPassword}
			}
		}
	}
	return creds
}

// Close releases the engine connection.
func (a *App) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer()
}
