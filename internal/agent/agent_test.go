package agent

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetdeploy/internal/coordinator"
	"fleetdeploy/internal/database"
	"fleetdeploy/internal/deployment"
	"fleetdeploy/internal/fleet"
	"fleetdeploy/internal/github"
	"fleetdeploy/internal/liveness"
	"fleetdeploy/internal/metrics"
	"fleetdeploy/pkg/client"
	"fleetdeploy/pkg/config"
	"fleetdeploy/pkg/models"
)

type recordingExecutor struct {
	mu   sync.Mutex
	jobs []Job
	fail map[string]error
}

func (e *recordingExecutor) Execute(ctx context.Context, job Job) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.jobs = append(e.jobs, job)
	return e.fail[job.ReleaseID]
}

type harness struct {
	db     *database.BunDB
	client *client.Client
}

func setupHarness(t *testing.T) *harness {
	t.Helper()

	db, err := database.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	settings := fleet.NewSettingsService(db.Settings, "")
	srv := coordinator.NewServer(
		db,
		fleet.NewAgentService(db.Agents, liveness.NewEvaluator(db.Agents), time.Now),
		fleet.NewReleaseService(db.Releases, settings, github.NewClient(github.WithBaseURL("http://127.0.0.1:1"))),
		settings,
		deployment.NewService(db),
		metrics.NewAggregator(),
		coordinator.Options{RequestTimeout: 5 * time.Second},
	)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	return &harness{db: db, client: client.New(ts.URL)}
}

func testSettings() config.AgentSettings {
	return config.AgentSettings{
		Name:              "win-build-01",
		Platform:          "windows",
		Version:           "0.1.0",
		HeartbeatInterval: 20 * time.Millisecond,
		PollInterval:      20 * time.Millisecond,
		RequestTimeout:    2 * time.Second,
	}
}

func (h *harness) deploy(t *testing.T, agentID string, releases ...string) *models.Deployment {
	t.Helper()
	ctx := context.Background()
	for _, id := range releases {
		if _, err := h.client.GetRelease(ctx, id); client.IsNotFound(err) {
			_, err := h.client.CreateRelease(ctx, "https://github.com/acme/"+id)
			require.NoError(t, err)
		}
	}
	d, err := h.client.CreateDeployment(ctx, models.CreateDeploymentRequest{AgentID: agentID, ReleaseIDs: releases})
	require.NoError(t, err)
	return d
}

func TestAgent_PollOnceSuccess(t *testing.T) {
	h := setupHarness(t)
	exec := &recordingExecutor{}
	a := New(testSettings(), h.client, exec)
	ctx := context.Background()

	require.NoError(t, a.Register(ctx))
	require.NotEmpty(t, a.ID())

	claimed, err := a.PollOnce(ctx)
	require.NoError(t, err)
	assert.False(t, claimed, "nothing pending yet")

	d := h.deploy(t, a.ID(), "desktop-app", "updater")

	claimed, err = a.PollOnce(ctx)
	require.NoError(t, err)
	assert.True(t, claimed)

	require.Len(t, exec.jobs, 2)
	assert.Equal(t, Job{DeploymentID: d.ID, ReleaseID: "desktop-app", ReleaseTag: "desktop-app"}, exec.jobs[0])
	assert.Equal(t, "updater", exec.jobs[1].ReleaseID)

	got, err := h.client.GetDeployment(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeploymentStatusSuccess, got.Status)
	assert.NotNil(t, got.CompletedAt)
}

func TestAgent_PollOnceFailureStopsAtFirstError(t *testing.T) {
	h := setupHarness(t)
	exec := &recordingExecutor{fail: map[string]error{"desktop-app": errors.New("installer exited 3")}}
	a := New(testSettings(), h.client, exec)
	ctx := context.Background()

	require.NoError(t, a.Register(ctx))
	d := h.deploy(t, a.ID(), "desktop-app", "updater")

	claimed, err := a.PollOnce(ctx)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Len(t, exec.jobs, 1)

	got, err := h.client.GetDeployment(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeploymentStatusFailed, got.Status)
	assert.Equal(t, "installer exited 3", got.ErrorMessage)
}

func TestAgent_PollOnceUnregistered(t *testing.T) {
	h := setupHarness(t)
	a := New(testSettings(), h.client, nil)
	ctx := context.Background()

	_, err := a.PollOnce(ctx)
	require.Error(t, err)

	require.NoError(t, a.Register(ctx))
	id := a.ID()
	require.NoError(t, h.client.DeleteAgent(ctx, id))

	_, err = a.PollOnce(ctx)
	require.Error(t, err)
	assert.Empty(t, a.ID(), "forgotten until the next heartbeat")

	require.NoError(t, a.Register(ctx))
	assert.NotEqual(t, id, a.ID())
}

func TestAgent_StartRunsUntilCancelled(t *testing.T) {
	h := setupHarness(t)
	exec := &recordingExecutor{}
	a := New(testSettings(), h.client, exec)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Start(ctx) }()

	require.Eventually(t, func() bool { return a.ID() != "" }, 2*time.Second, 10*time.Millisecond)
	d := h.deploy(t, a.ID(), "desktop-app")

	require.Eventually(t, func() bool {
		got, err := h.client.GetDeployment(context.Background(), d.ID)
		return err == nil && got.Status == models.DeploymentStatusSuccess
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("agent did not stop")
	}
}

func TestNewExecutor(t *testing.T) {
	assert.IsType(t, NoopExecutor{}, NewExecutor(config.AgentSettings{}))

	exec := NewExecutor(config.AgentSettings{HookCommand: []string{"true"}, HookTimeout: time.Second})
	require.IsType(t, &CommandExecutor{}, exec)
	assert.Equal(t, time.Second, exec.(*CommandExecutor).Timeout)
}
