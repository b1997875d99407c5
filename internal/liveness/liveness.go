// Package liveness derives an agent's effective status from its last
// heartbeat. Staleness is corrected lazily when an agent is read; there is no
// background sweep, so a stored status can lag until the next read.
package liveness

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"fleetdeploy/pkg/models"
)

// DefaultTimeout is how long an agent stays online without a heartbeat
const DefaultTimeout = 30 * time.Second

// StatusWriter persists the offline correction
type StatusWriter interface {
	MarkOffline(ctx context.Context, id string, cutoff time.Time) (bool, error)
}

// Evaluator applies the heartbeat timeout to agents on every read path
type Evaluator struct {
	store   StatusWriter
	timeout time.Duration
	now     func() time.Time
}

// Option configures an Evaluator
type Option func(*Evaluator)

// WithTimeout overrides DefaultTimeout
func WithTimeout(d time.Duration) Option {
	return func(e *Evaluator) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) {
		e.now = now
	}
}

// NewEvaluator creates an evaluator writing corrections through store
func NewEvaluator(store StatusWriter, opts ...Option) *Evaluator {
	e := &Evaluator{
		store:   store,
		timeout: DefaultTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Timeout returns the configured heartbeat timeout
func (e *Evaluator) Timeout() time.Duration {
	return e.timeout
}

// Derive returns the effective status without touching the store
func (e *Evaluator) Derive(agent *models.Agent) models.AgentStatus {
	if e.isStale(agent, e.now()) {
		return models.AgentStatusOffline
	}
	return agent.Status
}

func (e *Evaluator) isStale(agent *models.Agent, now time.Time) bool {
	return now.Sub(agent.LastSeen) > e.timeout
}

// Apply sets agent.Status to its effective status. A stale agent stored as
// online is persisted as offline; the returned error only reports a failed
// write, the agent is corrected in memory regardless.
func (e *Evaluator) Apply(ctx context.Context, agent *models.Agent) error {
	now := e.now()
	if !e.isStale(agent, now) {
		return nil
	}

	stored := agent.Status
	agent.Status = models.AgentStatusOffline
	if stored != models.AgentStatusOnline {
		return nil
	}

	changed, err := e.store.MarkOffline(ctx, agent.ID, now.Add(-e.timeout))
	if err != nil {
		return err
	}
	if changed {
		log.Info().
			Str("agent_id", agent.ID).
			Str("agent_name", agent.Name).
			Time("last_seen", agent.LastSeen).
			Msg("Agent heartbeat timed out, marked offline")
	}
	return nil
}

// ApplyAll runs Apply over a listing and returns the first write error
func (e *Evaluator) ApplyAll(ctx context.Context, agents []*models.Agent) error {
	var firstErr error
	for _, agent := range agents {
		if err := e.Apply(ctx, agent); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
