package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/guan4tou2/Lnadlse/internal/adapters/http"
	"github.com/guan4tou2/Lnadlse/internal/app"
	"github.com/guan4tou2/Lnadlse/internal/config"
	"github.com/guan4tou2/Lnadlse/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to rangectl.yml")
	flag.Parse()

	// 1. Configuration and logging
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logging.Configure(cfg.Logging.Level, "json", os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Adapters and core services, sharing one engine connection
	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	a, err := app.New(startCtx, cfg)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize orchestrator")
	}
	defer a.Close()

	// 3. HTTP handlers and routes
	handler := http.NewHandler(a.Inventory, a.Controller, a.Gate, a.Engine, a.Lab)
	proxy := http.NewProxyHandler(a.Inventory, cfg.Server.ProxyDomain)
	server := http.NewApp(handler, proxy, a.Metrics.Handler())

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		_ = server.ShutdownWithTimeout(10 * time.Second)
	}()

	// 4. Start server
	log.Info().Str("addr", cfg.Server.BindAddr).Msg("server starting")
	if err := server.Listen(cfg.Server.BindAddr); err != nil {
		log.Error().Err(err).Msg("server failed")
	}
}
