package deployment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetdeploy/internal/database"
	"fleetdeploy/pkg/models"
)

type testEnv struct {
	db    *database.BunDB
	svc   *Service
	clock time.Time
	agent *models.Agent
}

func (e *testEnv) now() time.Time { return e.clock }

func (e *testEnv) advance(d time.Duration) { e.clock = e.clock.Add(d) }

func setupService(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	env := &testEnv{db: db, clock: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	env.svc = NewService(db, WithClock(env.now), WithHistoryLimit(3))

	ctx := context.Background()
	env.agent, err = db.Agents.Register(ctx, &models.Agent{
		ID: "agent-1", Name: "mac-01", Platform: models.PlatformMacOS,
		Version: "1.2.0", Status: models.AgentStatusOnline, LastSeen: env.clock,
	})
	require.NoError(t, err)

	for _, id := range []string{"app", "tools"} {
		require.NoError(t, db.Releases.Create(ctx, &models.Release{
			ID: id, TagName: id, Name: id, ReleaseDate: env.clock, Assets: []string{},
		}))
	}
	return env
}

func (e *testEnv) create(t *testing.T) *models.Deployment {
	t.Helper()
	d, err := e.svc.Create(context.Background(), models.CreateDeploymentRequest{
		AgentID:    e.agent.ID,
		ReleaseIDs: []string{"app"},
	})
	require.NoError(t, err)
	e.advance(time.Second)
	return d
}

func TestTransitions(t *testing.T) {
	all := []models.DeploymentStatus{
		models.DeploymentStatusPending,
		models.DeploymentStatusInProgress,
		models.DeploymentStatusSuccess,
		models.DeploymentStatusFailed,
	}
	allowed := map[[2]models.DeploymentStatus]bool{
		{models.DeploymentStatusPending, models.DeploymentStatusInProgress}: true,
		{models.DeploymentStatusInProgress, models.DeploymentStatusSuccess}: true,
		{models.DeploymentStatusInProgress, models.DeploymentStatusFailed}:  true,
	}

	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]models.DeploymentStatus{from, to}]
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
			if !want {
				err := CheckTransition(from, to)
				assert.ErrorIs(t, err, ErrInvalidTransition)
				assert.ErrorIs(t, err, models.ErrInvalidArgument)
			}
		}
	}
}

func TestCreate_ReleaseTags(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	d, err := env.svc.Create(ctx, models.CreateDeploymentRequest{
		AgentID:         env.agent.ID,
		ReleaseIDs:      []string{"app", "tools"},
		ReleaseVersions: []string{"v1.4.0", "v2.0.1"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"v1.4.0", "v2.0.1"}, d.ReleaseTags)
	assert.Equal(t, models.DeploymentStatusPending, d.Status)
	assert.Equal(t, "mac-01", d.AgentName)
	assert.Contains(t, d.ID, "deploy-agent-1-20260301090000-")

	d, err = env.svc.Create(ctx, models.CreateDeploymentRequest{
		AgentID:    env.agent.ID,
		ReleaseIDs: []string{"app", "tools"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"app", "tools"}, d.ReleaseTags)

	d, err = env.svc.Create(ctx, models.CreateDeploymentRequest{
		AgentID:         env.agent.ID,
		ReleaseIDs:      []string{"app", "tools"},
		ReleaseVersions: []string{"v9"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"app", "tools"}, d.ReleaseTags, "length mismatch falls back to tag_name")
}

func TestCreate_IDsAreUniqueWithinTheSameSecond(t *testing.T) {
	env := setupService(t)

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		d, err := env.svc.Create(context.Background(), models.CreateDeploymentRequest{
			AgentID:    env.agent.ID,
			ReleaseIDs: []string{"app"},
		})
		require.NoError(t, err)
		assert.False(t, seen[d.ID], "duplicate id %s", d.ID)
		seen[d.ID] = true
	}
}

func TestCreate_ValidationIsAllOrNothing(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	_, err := env.svc.Create(ctx, models.CreateDeploymentRequest{AgentID: "ghost", ReleaseIDs: []string{"app"}})
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = env.svc.Create(ctx, models.CreateDeploymentRequest{AgentID: env.agent.ID, ReleaseIDs: []string{"app", "ghost"}})
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Contains(t, err.Error(), "ghost")

	_, err = env.svc.Create(ctx, models.CreateDeploymentRequest{AgentID: env.agent.ID})
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	all, err := env.svc.List(ctx, models.DeploymentFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestClaimNext(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	_, err := env.svc.ClaimNext(ctx, "ghost")
	assert.ErrorIs(t, err, models.ErrNotFound)

	none, err := env.svc.ClaimNext(ctx, env.agent.ID)
	require.NoError(t, err)
	assert.Nil(t, none)

	first := env.create(t)
	second := env.create(t)

	claimed, err := env.svc.ClaimNext(ctx, env.agent.ID)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, first.ID, claimed.ID)
	assert.Equal(t, models.DeploymentStatusInProgress, claimed.Status)
	require.NotNil(t, claimed.StartedAt)
	assert.True(t, claimed.StartedAt.Equal(env.clock))

	claimed, err = env.svc.ClaimNext(ctx, env.agent.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, claimed.ID)

	none, err = env.svc.ClaimNext(ctx, env.agent.ID)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestClaimNext_ConcurrentPollsClaimOnce(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	only := env.create(t)

	const pollers = 20
	results := make(chan *models.Deployment, pollers)
	var wg sync.WaitGroup
	for i := 0; i < pollers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := env.svc.ClaimNext(ctx, env.agent.ID)
			assert.NoError(t, err)
			results <- d
		}()
	}
	wg.Wait()
	close(results)

	var winners []string
	for d := range results {
		if d != nil {
			winners = append(winners, d.ID)
		}
	}
	assert.Equal(t, []string{only.ID}, winners)
}

func TestClaimNext_HonorsContextWhileWaitingForLock(t *testing.T) {
	env := setupService(t)

	release, err := env.svc.locks.acquire(context.Background(), env.agent.ID)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = env.svc.ClaimNext(ctx, env.agent.ID)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestComplete(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	d := env.create(t)

	_, err := env.svc.Complete(ctx, "ghost", models.CompleteDeploymentRequest{Status: models.DeploymentStatusSuccess})
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = env.svc.Complete(ctx, d.ID, models.CompleteDeploymentRequest{Status: models.DeploymentStatusInProgress})
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	_, err = env.svc.Complete(ctx, d.ID, models.CompleteDeploymentRequest{Status: models.DeploymentStatusSuccess})
	assert.ErrorIs(t, err, ErrInvalidTransition, "pending deployments must be claimed first")

	_, err = env.svc.ClaimNext(ctx, env.agent.ID)
	require.NoError(t, err)
	env.advance(time.Minute)
	completedAt := env.clock

	done, err := env.svc.Complete(ctx, d.ID, models.CompleteDeploymentRequest{
		Status:       models.DeploymentStatusFailed,
		ErrorMessage: "installer exited 3",
	})
	require.NoError(t, err)
	assert.Equal(t, models.DeploymentStatusFailed, done.Status)
	assert.Equal(t, "installer exited 3", done.ErrorMessage)
	require.NotNil(t, done.CompletedAt)
	assert.True(t, done.CompletedAt.Equal(completedAt))
}

func TestComplete_AlreadyTerminalIsRejected(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	d := env.create(t)

	_, err := env.svc.ClaimNext(ctx, env.agent.ID)
	require.NoError(t, err)
	first, err := env.svc.Complete(ctx, d.ID, models.CompleteDeploymentRequest{Status: models.DeploymentStatusSuccess})
	require.NoError(t, err)

	env.advance(time.Hour)
	for _, status := range []models.DeploymentStatus{models.DeploymentStatusSuccess, models.DeploymentStatusFailed} {
		_, err = env.svc.Complete(ctx, d.ID, models.CompleteDeploymentRequest{Status: status, ErrorMessage: "late"})
		assert.ErrorIs(t, err, ErrInvalidTransition)
	}

	got, err := env.svc.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeploymentStatusSuccess, got.Status)
	assert.True(t, got.CompletedAt.Equal(*first.CompletedAt), "completed_at is not rewritten")
	assert.Empty(t, got.ErrorMessage)
}

func TestListAndHistory(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, env.create(t).ID)
	}
	_, err := env.svc.ClaimNext(ctx, env.agent.ID)
	require.NoError(t, err)

	all, err := env.svc.List(ctx, models.DeploymentFilter{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, ids[4], all[0].ID, "newest first")
	assert.Equal(t, ids[0], all[4].ID)

	inProgress, err := env.svc.List(ctx, models.DeploymentFilter{
		AgentID: env.agent.ID,
		Status:  models.DeploymentStatusInProgress,
	})
	require.NoError(t, err)
	require.Len(t, inProgress, 1)
	assert.Equal(t, ids[0], inProgress[0].ID)

	empty, err := env.svc.List(ctx, models.DeploymentFilter{AgentID: "nobody"})
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	_, err = env.svc.List(ctx, models.DeploymentFilter{Status: "done"})
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	history, err := env.svc.History(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, history, 3, "configured default limit")

	history, err = env.svc.History(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{ids[4], ids[3]}, []string{history[0].ID, history[1].ID})

	_, err = env.svc.History(ctx, -1)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}
