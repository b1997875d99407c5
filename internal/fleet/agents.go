// Package fleet implements agent registration and the release catalog.
package fleet

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"fleetdeploy/internal/database"
	"fleetdeploy/internal/liveness"
	"fleetdeploy/internal/metrics"
	"fleetdeploy/pkg/models"
)

// AgentService registers agents and serves them with liveness applied
type AgentService struct {
	agents   database.AgentRepository
	liveness *liveness.Evaluator
	now      func() time.Time
}

// NewAgentService creates an agent service. now should be the same clock the
// evaluator uses.
func NewAgentService(agents database.AgentRepository, evaluator *liveness.Evaluator, now func() time.Time) *AgentService {
	if now == nil {
		now = time.Now
	}
	return &AgentService{agents: agents, liveness: evaluator, now: now}
}

// Register finds the agent by name or creates it, marking it online. Agents
// call it periodically as their heartbeat.
func (s *AgentService) Register(ctx context.Context, req models.RegisterAgentRequest) (*models.Agent, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, fmt.Errorf("%w: name is required", models.ErrInvalidArgument)
	}
	if !req.Platform.Valid() {
		return nil, fmt.Errorf("%w: platform must be windows or macos, got %q", models.ErrInvalidArgument, req.Platform)
	}
	if strings.TrimSpace(req.Version) == "" {
		return nil, fmt.Errorf("%w: version is required", models.ErrInvalidArgument)
	}

	agent, err := s.agents.Register(ctx, &models.Agent{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Platform:  req.Platform,
		Version:   req.Version,
		Status:    models.AgentStatusOnline,
		LastSeen:  s.now().UTC(),
		IPAddress: req.IPAddress,
	})
	if err != nil {
		return nil, fmt.Errorf("register agent: %w", err)
	}

	metrics.AgentRegistrationsTotal.Inc()
	log.Debug().
		Str("agent_id", agent.ID).
		Str("agent_name", agent.Name).
		Str("version", agent.Version).
		Msg("Agent heartbeat")
	return agent, nil
}

// List returns all agents with their effective status
func (s *AgentService) List(ctx context.Context) ([]*models.Agent, error) {
	agents, err := s.agents.List(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.liveness.ApplyAll(ctx, agents); err != nil {
		log.Warn().Err(err).Msg("Failed to persist offline status")
	}
	return agents, nil
}

// Get returns one agent with its effective status
func (s *AgentService) Get(ctx context.Context, id string) (*models.Agent, error) {
	agent, err := s.agents.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.liveness.Apply(ctx, agent); err != nil {
		log.Warn().Err(err).Str("agent_id", id).Msg("Failed to persist offline status")
	}
	return agent, nil
}

// Update applies an edit and returns the agent with its effective status
func (s *AgentService) Update(ctx context.Context, id string, req models.UpdateAgentRequest) (*models.Agent, error) {
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name cannot be empty", models.ErrInvalidArgument)
		}
		if err := s.agents.Rename(ctx, id, name); err != nil {
			return nil, err
		}
	}
	return s.Get(ctx, id)
}

// Delete unregisters the agent and removes its deployments
func (s *AgentService) Delete(ctx context.Context, id string) error {
	if err := s.agents.Delete(ctx, id); err != nil {
		return err
	}
	log.Info().Str("agent_id", id).Msg("Agent deleted")
	return nil
}

// StatusCounts counts agents by effective status without writing corrections
func (s *AgentService) StatusCounts(ctx context.Context) (map[models.AgentStatus]int, error) {
	agents, err := s.agents.List(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[models.AgentStatus]int)
	for _, a := range agents {
		counts[s.liveness.Derive(a)]++
	}
	return counts, nil
}
