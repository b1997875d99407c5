package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"fleetdeploy/internal/agent"
	"fleetdeploy/pkg/client"
	"fleetdeploy/pkg/config"
)

func init() {
	// Configure zerolog for human-friendly console output
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func main() {
	configFile := config.FindConfigFile("fleet-agent")
	envFile := config.FindEnvironmentFile("fleet-agent")

	cfg, err := config.LoadAgent(configFile, envFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	cfg.Log.ConfigureZerolog()

	log.Info().
		Str("config_file", configFile).
		Str("env_file", envFile).
		Str("name", cfg.Agent.Name).
		Str("platform", cfg.Agent.Platform).
		Strs("hook_command", cfg.Agent.HookCommand).
		Msg("Starting Fleet Agent")

	c := client.New(cfg.Agent.CoordinatorEndpoint, client.WithTimeout(cfg.Agent.RequestTimeout))
	fleetAgent := agent.New(cfg.Agent, c, agent.NewExecutor(cfg.Agent))

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- fleetAgent.Start(ctx)
	}()

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
		<-errChan
	case err := <-errChan:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Agent encountered an error")
		}
	}

	log.Info().Msg("Fleet Agent stopped")
}
