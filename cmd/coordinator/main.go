package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"fleetdeploy/internal/coordinator"
	"fleetdeploy/internal/database"
	"fleetdeploy/internal/deployment"
	"fleetdeploy/internal/fleet"
	"fleetdeploy/internal/github"
	"fleetdeploy/internal/liveness"
	"fleetdeploy/internal/metrics"
	"fleetdeploy/pkg/config"
)

func init() {
	// Configure zerolog for human-friendly console output
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func main() {
	// Load configuration
	configFile := config.FindConfigFile("coordinator")
	envFile := config.FindEnvironmentFile("coordinator")

	cfg, err := config.LoadCoordinator(configFile, envFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Configure logging based on config
	cfg.Log.ConfigureZerolog()

	log.Info().
		Str("config_file", configFile).
		Str("env_file", envFile).
		Str("listen_address", cfg.GetListenAddress()).
		Str("database", cfg.Database.DSN).
		Dur("heartbeat_timeout", cfg.Fleet.HeartbeatTimeout).
		Msg("Starting Fleet Coordinator")

	db, err := database.New(cfg.Database.DSN,
		database.WithDebug(cfg.Database.Debug),
		database.WithMaxOpenConns(cfg.Database.MaxOpenConns),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close database")
		}
	}()

	evaluator := liveness.NewEvaluator(db.Agents, liveness.WithTimeout(cfg.Fleet.HeartbeatTimeout))
	agents := fleet.NewAgentService(db.Agents, evaluator, time.Now)
	settings := fleet.NewSettingsService(db.Settings, cfg.GitHub.Token)
	githubClient := github.NewClient(
		github.WithBaseURL(cfg.GitHub.APIBaseURL),
		github.WithTimeout(cfg.GitHub.Timeout),
	)
	releases := fleet.NewReleaseService(db.Releases, settings, githubClient)
	deployments := deployment.NewService(db, deployment.WithHistoryLimit(cfg.Fleet.HistoryLimit))
	aggregator := metrics.NewAggregator(metrics.WithLatencyWindow(cfg.Metrics.LatencyWindow))

	server := coordinator.NewServer(db, agents, releases, settings, deployments, aggregator, coordinator.Options{
		RequestTimeout: cfg.Server.RequestTimeout,
		CORSOrigins:    cfg.Server.CORSOrigins,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	collector := metrics.NewCollector(agents, db.Deployments, cfg.Metrics.CollectorInterval)
	go collector.Start(ctx)

	httpServer := &http.Server{
		Addr:           cfg.GetListenAddress(),
		Handler:        h2c.NewHandler(server.Router(), &http2.Server{}),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		log.Info().Str("address", cfg.GetListenAddress()).Msg("Coordinator listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case err := <-errChan:
		log.Error().Err(err).Msg("Server failed")
	}

	collector.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during shutdown")
	}

	log.Info().Msg("Fleet Coordinator stopped")
}
