package agent

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Job is one release of a claimed deployment
type Job struct {
	DeploymentID string
	ReleaseID    string
	ReleaseTag   string
}

// Executor installs a single release on this host
type Executor interface {
	Execute(ctx context.Context, job Job) error
}

// NoopExecutor accepts every job without doing anything
type NoopExecutor struct{}

func (NoopExecutor) Execute(ctx context.Context, job Job) error {
	log.Info().
		Str("deployment_id", job.DeploymentID).
		Str("release_id", job.ReleaseID).
		Str("release_tag", job.ReleaseTag).
		Msg("No hook command configured, skipping install")
	return nil
}

// CommandExecutor runs a hook command per release. The release is passed
// in RELEASE_ID, RELEASE_TAG and DEPLOYMENT_ID on top of the agent's own
// environment.
type CommandExecutor struct {
	Command []string
	Timeout time.Duration
}

const maxHookOutput = 2048

func (e *CommandExecutor) Execute(ctx context.Context, job Job) error {
	if len(e.Command) == 0 {
		return fmt.Errorf("hook command is empty")
	}
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, e.Command[0], e.Command[1:]...)
	cmd.Env = append(os.Environ(),
		"DEPLOYMENT_ID="+job.DeploymentID,
		"RELEASE_ID="+job.ReleaseID,
		"RELEASE_TAG="+job.ReleaseTag,
	)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	err := cmd.Run()
	log.Debug().
		Str("release_id", job.ReleaseID).
		Dur("duration", time.Since(start)).
		Str("output", tail(out.String(), maxHookOutput)).
		Msg("Hook command finished")

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("hook for %s timed out after %s", job.ReleaseID, e.Timeout)
		}
		if msg := tail(strings.TrimSpace(out.String()), 512); msg != "" {
			return fmt.Errorf("hook for %s failed: %w: %s", job.ReleaseID, err, msg)
		}
		return fmt.Errorf("hook for %s failed: %w", job.ReleaseID, err)
	}
	return nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
