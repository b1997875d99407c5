// Package deployment implements the deployment lifecycle: creation, the
// claim protocol agents use to fetch work, completion reports and the
// recency-ordered queries over deployment history.
package deployment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"fleetdeploy/internal/database"
	"fleetdeploy/internal/metrics"
	"fleetdeploy/pkg/models"
)

// DefaultHistoryLimit caps History when the caller passes no limit
const DefaultHistoryLimit = 50

// Service coordinates deployments between operators and agents
type Service struct {
	agents      database.AgentRepository
	releases    database.ReleaseRepository
	deployments database.DeploymentRepository

	locks        *agentLocks
	now          func() time.Time
	historyLimit int
}

// Option configures a Service
type Option func(*Service)

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithHistoryLimit overrides DefaultHistoryLimit
func WithHistoryLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.historyLimit = n
		}
	}
}

// NewService creates a deployment service backed by db's repositories
func NewService(db *database.BunDB, opts ...Option) *Service {
	s := &Service{
		agents:       db.Agents,
		releases:     db.Releases,
		deployments:  db.Deployments,
		locks:        newAgentLocks(),
		now:          time.Now,
		historyLimit: DefaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates the agent and every release, then stores a pending
// deployment. Nothing is written when validation fails.
func (s *Service) Create(ctx context.Context, req models.CreateDeploymentRequest) (*models.Deployment, error) {
	if strings.TrimSpace(req.AgentID) == "" {
		return nil, fmt.Errorf("%w: agent_id is required", models.ErrInvalidArgument)
	}
	if len(req.ReleaseIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one release id is required", models.ErrInvalidArgument)
	}

	if _, err := s.agents.Get(ctx, req.AgentID); err != nil {
		return nil, err
	}

	releases, err := s.releases.GetMany(ctx, req.ReleaseIDs)
	if err != nil {
		return nil, fmt.Errorf("load releases: %w", err)
	}
	var missing []string
	for _, id := range req.ReleaseIDs {
		if _, ok := releases[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("release %s: %w", strings.Join(missing, ", "), models.ErrNotFound)
	}

	now := s.now().UTC()
	d := &models.Deployment{
		ID:          newDeploymentID(req.AgentID, now),
		AgentID:     req.AgentID,
		ReleaseIDs:  append([]string(nil), req.ReleaseIDs...),
		ReleaseTags: resolveTags(req.ReleaseIDs, req.ReleaseVersions, releases),
		Status:      models.DeploymentStatusPending,
		CreatedAt:   now,
	}
	if err := s.deployments.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("create deployment: %w", err)
	}

	log.Info().
		Str("deployment_id", d.ID).
		Str("agent_id", d.AgentID).
		Strs("release_tags", d.ReleaseTags).
		Msg("Deployment created")

	return s.deployments.Get(ctx, d.ID)
}

// resolveTags uses the caller's versions when they line up with ids, falling
// back to each release's tag_name (also for empty entries).
func resolveTags(ids, versions []string, releases map[string]*models.Release) []string {
	useVersions := len(versions) == len(ids)
	tags := make([]string, len(ids))
	for i, id := range ids {
		if useVersions && versions[i] != "" {
			tags[i] = versions[i]
			continue
		}
		tags[i] = releases[id].TagName
	}
	return tags
}

// newDeploymentID combines the agent, the creation second and a random
// suffix so that rapid creation for one agent never collides.
func newDeploymentID(agentID string, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("deploy-%s-%s-%s", agentID, now.Format("20060102150405"), suffix)
}

// ClaimNext hands the agent its oldest pending deployment, moving it to
// in_progress. It returns nil, nil when the agent has nothing pending.
func (s *Service) ClaimNext(ctx context.Context, agentID string) (*models.Deployment, error) {
	if _, err := s.agents.Get(ctx, agentID); err != nil {
		return nil, err
	}

	release, err := s.locks.acquire(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("wait for claim lock: %w", err)
	}
	defer release()

	d, err := s.deployments.ClaimNext(ctx, agentID, s.now())
	if err != nil {
		metrics.ClaimsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if d == nil {
		metrics.ClaimsTotal.WithLabelValues("empty").Inc()
		return nil, nil
	}

	metrics.ClaimsTotal.WithLabelValues("claimed").Inc()
	metrics.DeploymentTransitionsTotal.WithLabelValues(string(d.Status)).Inc()
	log.Info().
		Str("deployment_id", d.ID).
		Str("agent_id", agentID).
		Msg("Deployment claimed")
	return d, nil
}

// Complete records the agent's outcome for an in_progress deployment.
// Completing from any other state, including a terminal one, is rejected so
// completed_at is written exactly once.
func (s *Service) Complete(ctx context.Context, id string, req models.CompleteDeploymentRequest) (*models.Deployment, error) {
	if !req.Status.Terminal() {
		return nil, fmt.Errorf("%w: status must be success or failed, got %q", models.ErrInvalidArgument, req.Status)
	}

	current, err := s.deployments.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := CheckTransition(current.Status, req.Status); err != nil {
		return nil, err
	}

	applied, err := s.deployments.Transition(ctx, id, current.Status, req.Status, s.now(), req.ErrorMessage)
	if err != nil {
		return nil, fmt.Errorf("complete deployment %s: %w", id, err)
	}

	updated, err := s.deployments.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !applied {
		// Another report landed first
		if err := CheckTransition(updated.Status, req.Status); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: deployment %s changed concurrently", ErrInvalidTransition, id)
	}

	metrics.DeploymentTransitionsTotal.WithLabelValues(string(req.Status)).Inc()
	event := log.Info()
	if req.Status == models.DeploymentStatusFailed {
		event = log.Warn().Str("error_message", req.ErrorMessage)
	}
	event.
		Str("deployment_id", id).
		Str("agent_id", updated.AgentID).
		Str("status", string(req.Status)).
		Msg("Deployment completed")

	return updated, nil
}

// Get returns a single deployment
func (s *Service) Get(ctx context.Context, id string) (*models.Deployment, error) {
	return s.deployments.Get(ctx, id)
}

// List returns deployments matching every set filter, newest first
func (s *Service) List(ctx context.Context, filter models.DeploymentFilter) ([]*models.Deployment, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown deployment status %q", models.ErrInvalidArgument, filter.Status)
	}
	return s.deployments.List(ctx, filter, 0)
}

// History returns the newest deployments, at most limit of them. A zero
// limit means the configured default.
func (s *Service) History(ctx context.Context, limit int) ([]*models.Deployment, error) {
	if limit == 0 {
		limit = s.historyLimit
	}
	if limit < 0 {
		return nil, fmt.Errorf("%w: limit must be positive", models.ErrInvalidArgument)
	}
	return s.deployments.List(ctx, models.DeploymentFilter{}, limit)
}
