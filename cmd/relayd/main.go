package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/qrlink/relay/internal/api"
	"github.com/qrlink/relay/internal/cleanup"
	"github.com/qrlink/relay/internal/config"
	"github.com/qrlink/relay/internal/health"
	"github.com/qrlink/relay/internal/metrics"
	"github.com/qrlink/relay/internal/presence"
	"github.com/qrlink/relay/internal/relay"
	"github.com/qrlink/relay/internal/store"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	if os.Getenv("ENVIRONMENT") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	log.Logger = logger

	// Load config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err == nil {
		zerolog.SetGlobalLevel(level)
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Str("listen_addr", cfg.ListenAddr).
		Str("db_path", cfg.DBPath).
		Str("auth_mode", cfg.AuthMode).
		Msg("starting relay")

	// Context with graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Storage
	st, err := store.New(cfg.DBPath, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("db_path", cfg.DBPath).Msg("failed to open store")
	}
	defer st.Close()

	// Health checker
	checker := health.NewChecker(logger)
	checker.Register("store", func(ctx context.Context) health.Status {
		if err := st.Ping(); err != nil {
			return health.StatusDown
		}
		return health.StatusOK
	})

	// Metrics
	m := metrics.New()

	// Core services
	relaySvc := relay.NewService(st, relay.Config{
		DefaultTTL: cfg.SendTTLDefault,
		MinTTL:     cfg.SendTTLMin,
		MaxTTL:     cfg.SendTTLMax,
	}, m, logger)

	registry := presence.NewRegistry(st, cfg.ViewerHeartbeat, logger)

	// Background retention sweeper
	sweeper := cleanup.NewSweeper(cleanup.Config{
		Interval:        cfg.SweepInterval,
		SessionMaxAge:   cfg.SessionMaxAge,
		ViewerHeartbeat: cfg.ViewerHeartbeat,
	}, st, m, logger)

	// HTTP API
	authCfg := api.AuthConfig{
		Mode:     cfg.AuthMode,
		Secret:   cfg.AuthSecret,
		TokenTTL: cfg.TokenTTL,
	}

	rtCfg := &api.RuntimeConfig{
		Environment:     cfg.Environment,
		LogLevel:        cfg.LogLevel,
		ListenAddr:      cfg.ListenAddr,
		SendTTLDefault:  cfg.SendTTLDefault,
		SendTTLMin:      cfg.SendTTLMin,
		SendTTLMax:      cfg.SendTTLMax,
		ViewerHeartbeat: cfg.ViewerHeartbeat,
		SessionMaxAge:   cfg.SessionMaxAge,
		SweepInterval:   cfg.SweepInterval,
		AuthMode:        cfg.AuthMode,
	}

	handlers := api.NewHandlers(relaySvc, registry, checker, authCfg, rtCfg, logger)
	server := api.NewServer(api.ServerConfig{
		ListenAddr:  cfg.ListenAddr,
		CORSOrigins: cfg.CORSOrigins,
		RateLimit: api.RateLimitConfig{
			RPS:   cfg.RateLimitRPS,
			Burst: cfg.RateLimitBurst,
		},
		Auth: authCfg,
	}, handlers, m, logger)

	// WaitGroup for in-flight work
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info().Str("addr", cfg.ListenAddr).Msg("HTTP server starting")
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	// Wait for shutdown signal
	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("shutting down gracefully")

	// Cancel context to stop the sweeper
	cancel()

	if err := server.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// Wait for in-flight work to complete
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("all goroutines stopped")
	case <-time.After(10 * time.Second):
		logger.Warn().Msg("forced shutdown after timeout")
	}

	logger.Info().Msg("relay stopped")
}
