// Package agent is the fleet-agent runtime: it keeps the host registered
// with the coordinator, claims pending deployments and reports their outcome.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"fleetdeploy/pkg/client"
	"fleetdeploy/pkg/config"
	"fleetdeploy/pkg/models"
)

// Agent runs the heartbeat and claim loops for one host
type Agent struct {
	settings config.AgentSettings
	client   *client.Client
	executor Executor

	mu      sync.RWMutex
	agentID string
}

// New creates an agent. A nil executor falls back to NoopExecutor.
func New(settings config.AgentSettings, c *client.Client, executor Executor) *Agent {
	if executor == nil {
		executor = NoopExecutor{}
	}
	return &Agent{
		settings: settings,
		client:   c,
		executor: executor,
	}
}

// NewExecutor picks the executor described by the settings
func NewExecutor(settings config.AgentSettings) Executor {
	if len(settings.HookCommand) == 0 {
		return NoopExecutor{}
	}
	return &CommandExecutor{Command: settings.HookCommand, Timeout: settings.HookTimeout}
}

// ID returns the coordinator-assigned id, empty before the first registration
func (a *Agent) ID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.agentID
}

// Start registers, then heartbeats and polls until ctx is cancelled
func (a *Agent) Start(ctx context.Context) error {
	log.Info().
		Str("name", a.settings.Name).
		Str("platform", a.settings.Platform).
		Str("coordinator", a.settings.CoordinatorEndpoint).
		Msg("Starting fleet agent")

	a.retryRegistration(ctx)

	heartbeatTicker := time.NewTicker(a.settings.HeartbeatInterval)
	defer heartbeatTicker.Stop()

	pollTicker := time.NewTicker(a.settings.PollInterval)
	defer pollTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Agent stopping due to context cancellation")
			return ctx.Err()

		case <-heartbeatTicker.C:
			if err := a.Register(ctx); err != nil {
				log.Warn().Err(err).Msg("Heartbeat failed")
			}

		case <-pollTicker.C:
			if a.ID() == "" {
				continue
			}
			if _, err := a.PollOnce(ctx); err != nil {
				log.Warn().Err(err).Msg("Deployment poll failed")
			}
		}
	}
}

// Register announces the agent; it doubles as the heartbeat
func (a *Agent) Register(ctx context.Context) error {
	ctx, cancel := a.requestContext(ctx)
	defer cancel()

	agent, err := a.client.RegisterAgent(ctx, models.RegisterAgentRequest{
		Name:      a.settings.Name,
		Platform:  models.Platform(a.settings.Platform),
		Version:   a.settings.Version,
		IPAddress: a.settings.IPAddress,
	})
	if err != nil {
		return fmt.Errorf("failed to register agent: %w", err)
	}

	a.mu.Lock()
	changed := a.agentID != agent.ID
	a.agentID = agent.ID
	a.mu.Unlock()

	if changed {
		log.Info().Str("agent_id", agent.ID).Str("name", agent.Name).Msg("Registered with coordinator")
	}
	return nil
}

// retryRegistration attempts the first registration with exponential
// backoff; after that the heartbeat ticker keeps retrying.
func (a *Agent) retryRegistration(ctx context.Context) {
	maxRetries := 5
	baseDelay := 1 * time.Second
	maxDelay := 30 * time.Second

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := a.Register(ctx)
		if err == nil {
			return
		}

		delay := min(time.Duration(1<<uint(attempt))*baseDelay, maxDelay)
		log.Warn().Err(err).
			Int("attempt", attempt+1).
			Int("max_attempts", maxRetries).
			Dur("retry_in", delay).
			Msg("Registration attempt failed")

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}

	log.Warn().Int("attempts", maxRetries).Msg("Failed to register, will retry on heartbeat")
}

// PollOnce claims and runs at most one deployment. It reports whether a
// deployment was claimed.
func (a *Agent) PollOnce(ctx context.Context) (bool, error) {
	agentID := a.ID()
	if agentID == "" {
		return false, errors.New("agent is not registered")
	}

	claimCtx, cancel := a.requestContext(ctx)
	d, err := a.client.ClaimDeployment(claimCtx, agentID)
	cancel()
	if client.IsNotFound(err) {
		// Unregistered on the coordinator side; the next heartbeat re-registers
		a.mu.Lock()
		a.agentID = ""
		a.mu.Unlock()
		return false, fmt.Errorf("agent %s is no longer known to the coordinator", agentID)
	}
	if err != nil {
		return false, fmt.Errorf("failed to claim deployment: %w", err)
	}
	if d == nil {
		return false, nil
	}

	log.Info().
		Str("deployment_id", d.ID).
		Strs("release_tags", d.ReleaseTags).
		Msg("Claimed deployment")

	report := a.run(ctx, d)

	reportCtx, cancel := a.requestContext(context.WithoutCancel(ctx))
	defer cancel()
	if _, err := a.client.CompleteDeployment(reportCtx, d.ID, report); err != nil {
		return true, fmt.Errorf("failed to report deployment %s: %w", d.ID, err)
	}

	log.Info().
		Str("deployment_id", d.ID).
		Str("status", string(report.Status)).
		Msg("Reported deployment outcome")
	return true, nil
}

// run installs every release in order and stops at the first failure
func (a *Agent) run(ctx context.Context, d *models.Deployment) models.CompleteDeploymentRequest {
	for i, releaseID := range d.ReleaseIDs {
		tag := releaseID
		if i < len(d.ReleaseTags) && d.ReleaseTags[i] != "" {
			tag = d.ReleaseTags[i]
		}

		err := a.executor.Execute(ctx, Job{DeploymentID: d.ID, ReleaseID: releaseID, ReleaseTag: tag})
		if err != nil {
			log.Error().Err(err).
				Str("deployment_id", d.ID).
				Str("release_id", releaseID).
				Msg("Release install failed")
			return models.CompleteDeploymentRequest{
				Status:       models.DeploymentStatusFailed,
				ErrorMessage: err.Error(),
			}
		}
	}
	return models.CompleteDeploymentRequest{Status: models.DeploymentStatusSuccess}
}

func (a *Agent) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.settings.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.settings.RequestTimeout)
}
