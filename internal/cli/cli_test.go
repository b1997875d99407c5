package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
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
	"fleetdeploy/pkg/models"
)

func startCoordinator(t *testing.T) (string, *database.BunDB) {
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
	return ts.URL, db
}

func run(t *testing.T, endpoint string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--coordinator", endpoint}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func runJSON[T any](t *testing.T, endpoint string, args ...string) T {
	t.Helper()
	out, err := run(t, endpoint, append(args, "-o", "json")...)
	require.NoError(t, err, out)

	var v T
	require.NoError(t, json.Unmarshal([]byte(out), &v), out)
	return v
}

func registerAgent(t *testing.T, db *database.BunDB, name string) *models.Agent {
	t.Helper()
	agent, err := db.Agents.Register(context.Background(), &models.Agent{
		ID:       name + "-id",
		Name:     name,
		Platform: models.PlatformWindows,
		Version:  "1.0.0",
		Status:   models.AgentStatusOnline,
		LastSeen: time.Now().UTC(),
	})
	require.NoError(t, err)
	return agent
}

func TestCLI_ReleasesAndDeployments(t *testing.T) {
	endpoint, db := startCoordinator(t)
	agent := registerAgent(t, db, "win-01")

	release := runJSON[models.Release](t, endpoint, "releases", "add", "https://github.com/acme/desktop-app")
	assert.Equal(t, "desktop-app", release.ID)

	updated := runJSON[models.Release](t, endpoint, "releases", "update", "desktop-app", "--description", "Main app")
	assert.Equal(t, "Main app", updated.Description)
	assert.Equal(t, "desktop-app", updated.Name)

	_, err := run(t, endpoint, "releases", "update", "desktop-app")
	assert.Error(t, err, "no fields to update")

	d := runJSON[models.Deployment](t, endpoint, "deployments", "create",
		"--agent", agent.ID, "--release", "desktop-app", "--version", "v1.4.0")
	assert.Equal(t, []string{"v1.4.0"}, d.ReleaseTags)
	assert.Equal(t, models.DeploymentStatusPending, d.Status)

	listed := runJSON[[]models.Deployment](t, endpoint, "deployments", "list", "--agent", agent.ID, "--status", "pending")
	require.Len(t, listed, 1)
	assert.Equal(t, d.ID, listed[0].ID)

	history := runJSON[[]models.Deployment](t, endpoint, "deployments", "history", "--limit", "5")
	assert.Len(t, history, 1)

	out, err := run(t, endpoint, "deployments", "get", d.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "win-01")
	assert.Contains(t, out, "v1.4.0")

	out, err = run(t, endpoint, "deployments", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "STATUS")
	assert.Contains(t, out, d.ID)
}

func TestCLI_Agents(t *testing.T) {
	endpoint, db := startCoordinator(t)
	agent := registerAgent(t, db, "win-01")

	agents := runJSON[[]models.Agent](t, endpoint, "agents", "list")
	require.Len(t, agents, 1)

	renamed := runJSON[models.Agent](t, endpoint, "agents", "rename", agent.ID, "win-lab")
	assert.Equal(t, "win-lab", renamed.Name)

	out, err := run(t, endpoint, "agents", "get", agent.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "win-lab")

	out, err = run(t, endpoint, "agents", "delete", agent.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "deleted")

	_, err = run(t, endpoint, "agents", "get", agent.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestCLI_TokenHealthMetrics(t *testing.T) {
	endpoint, _ := startCoordinator(t)

	out, err := run(t, endpoint, "token", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "No GitHub token")

	_, err = run(t, endpoint, "token", "set", "ghp_abcd1234")
	require.NoError(t, err)
	status := runJSON[models.TokenStatus](t, endpoint, "token", "show")
	assert.Equal(t, "***1234", status.TokenPreview)

	_, err = run(t, endpoint, "token", "clear")
	require.NoError(t, err)

	health := runJSON[models.HealthResponse](t, endpoint, "health")
	assert.Equal(t, "healthy", health.Status)

	summary := runJSON[metrics.Summary](t, endpoint, "metrics")
	assert.Positive(t, summary.TotalRequests)

	pending := runJSON[metrics.EndpointSummary](t, endpoint, "metrics", "--pending")
	assert.Equal(t, metrics.PendingPollEndpoint, pending.Endpoint)
}

func TestCLI_InvalidOutputFormat(t *testing.T) {
	endpoint, _ := startCoordinator(t)

	_, err := run(t, endpoint, "health", "-o", "xml")
	assert.Error(t, err)
}
