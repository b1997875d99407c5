package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"fleetdeploy/pkg/models"
)

type fakeAgents map[models.AgentStatus]int

func (f fakeAgents) StatusCounts(context.Context) (map[models.AgentStatus]int, error) {
	return f, nil
}

type fakeDeployments struct {
	counts map[models.DeploymentStatus]int
	err    error
}

func (f fakeDeployments) CountByStatus(context.Context) (map[models.DeploymentStatus]int, error) {
	return f.counts, f.err
}

func TestCollector_Collect(t *testing.T) {
	c := NewCollector(
		fakeAgents{models.AgentStatusOnline: 3, models.AgentStatusOffline: 1},
		fakeDeployments{counts: map[models.DeploymentStatus]int{models.DeploymentStatusPending: 2}},
		0,
	)
	c.Collect(context.Background())

	assert.Equal(t, 3.0, testutil.ToFloat64(AgentsTotal.WithLabelValues("online")))
	assert.Equal(t, 1.0, testutil.ToFloat64(AgentsTotal.WithLabelValues("offline")))
	assert.Equal(t, 0.0, testutil.ToFloat64(AgentsTotal.WithLabelValues("error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(DeploymentsTotal.WithLabelValues("pending")))
	assert.Equal(t, 0.0, testutil.ToFloat64(DeploymentsTotal.WithLabelValues("failed")))
}

func TestCollector_DeploymentErrorKeepsAgentGauges(t *testing.T) {
	c := NewCollector(
		fakeAgents{models.AgentStatusOnline: 5},
		fakeDeployments{err: errors.New("boom")},
		0,
	)
	c.Collect(context.Background())

	assert.Equal(t, 5.0, testutil.ToFloat64(AgentsTotal.WithLabelValues("online")))
}

func TestCollector_StartStops(t *testing.T) {
	c := NewCollector(fakeAgents{}, fakeDeployments{counts: map[models.DeploymentStatus]int{}}, 0)

	done := make(chan struct{})
	go func() {
		c.Start(context.Background())
		close(done)
	}()
	c.Stop()
	<-done
}
