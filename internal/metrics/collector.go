package metrics

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"fleetdeploy/pkg/models"
)

// AgentCounter reports agents by effective status
type AgentCounter interface {
	StatusCounts(ctx context.Context) (map[models.AgentStatus]int, error)
}

// DeploymentCounter reports deployments by status
type DeploymentCounter interface {
	CountByStatus(ctx context.Context) (map[models.DeploymentStatus]int, error)
}

// Collector periodically refreshes the agent and deployment gauges
type Collector struct {
	agents      AgentCounter
	deployments DeploymentCounter
	interval    time.Duration
	stopCh      chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(agents AgentCounter, deployments DeploymentCounter, interval time.Duration) *Collector {
	if interval == 0 {
		interval = 15 * time.Second
	}

	return &Collector{
		agents:      agents,
		deployments: deployments,
		interval:    interval,
		stopCh:      make(chan struct{}),
	}
}

// Start collects immediately and then on every tick until ctx is done or
// Stop is called
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Collect(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.Collect(ctx)
		}
	}
}

// Stop stops the metrics collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

// Collect updates the gauges once
func (c *Collector) Collect(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.interval)
	defer cancel()

	if counts, err := c.agents.StatusCounts(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to collect agent metrics")
	} else {
		for _, status := range []models.AgentStatus{models.AgentStatusOnline, models.AgentStatusOffline, models.AgentStatusError} {
			AgentsTotal.WithLabelValues(string(status)).Set(float64(counts[status]))
		}
	}

	if counts, err := c.deployments.CountByStatus(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to collect deployment metrics")
	} else {
		for _, status := range []models.DeploymentStatus{
			models.DeploymentStatusPending,
			models.DeploymentStatusInProgress,
			models.DeploymentStatusSuccess,
			models.DeploymentStatusFailed,
		} {
			DeploymentsTotal.WithLabelValues(string(status)).Set(float64(counts[status]))
		}
	}
}
