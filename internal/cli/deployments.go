package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"fleetdeploy/pkg/models"
	"fleetdeploy/pkg/output"
)

func newDeploymentsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "deployments",
		Aliases: []string{"deployment", "deploy"},
		Short:   "Deployment commands",
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "Assign releases to an agent",
		Example: `  fleetctl deployments create --agent 3f2c... --release desktop-app --version v1.4.0
  fleetctl deployments create --agent 3f2c... --release desktop-app --release updater`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			agentID, _ := cmd.Flags().GetString("agent")
			releases, _ := cmd.Flags().GetStringSlice("release")
			versions, _ := cmd.Flags().GetStringSlice("version")
			if len(versions) > len(releases) {
				return fmt.Errorf("got %d versions for %d releases", len(versions), len(releases))
			}

			d, err := a.client().CreateDeployment(cmd.Context(), models.CreateDeploymentRequest{
				AgentID:         agentID,
				ReleaseIDs:      releases,
				ReleaseVersions: versions,
			})
			if err != nil {
				return fmt.Errorf("failed to create deployment: %w", err)
			}
			return printDeployment(a, cmd, d)
		},
	}
	create.Flags().String("agent", "", "target agent id")
	create.Flags().StringSlice("release", nil, "release id, repeatable")
	create.Flags().StringSlice("version", nil, "version per release, in the same order")
	_ = create.MarkFlagRequired("agent")
	_ = create.MarkFlagRequired("release")

	list := &cobra.Command{
		Use:   "list",
		Short: "List deployments, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			agentID, _ := cmd.Flags().GetString("agent")
			status, _ := cmd.Flags().GetString("status")
			deployments, err := a.client().ListDeployments(cmd.Context(), models.DeploymentFilter{
				AgentID: agentID,
				Status:  models.DeploymentStatus(status),
			})
			if err != nil {
				return fmt.Errorf("failed to list deployments: %w", err)
			}
			return printDeployments(a, cmd, deployments)
		},
	}
	list.Flags().String("agent", "", "only deployments for this agent")
	list.Flags().String("status", "", "only deployments in this status (pending|in_progress|success|failed)")

	history := &cobra.Command{
		Use:   "history",
		Short: "Show the most recent deployments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			deployments, err := a.client().DeploymentHistory(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("failed to get deployment history: %w", err)
			}
			return printDeployments(a, cmd, deployments)
		},
	}
	history.Flags().Int("limit", 0, "maximum number of deployments (default: server setting)")

	cmd.AddCommand(
		create,
		list,
		history,
		&cobra.Command{
			Use:   "get <deployment-id>",
			Short: "Show one deployment",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				d, err := a.client().GetDeployment(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("failed to get deployment: %w", err)
				}
				return printDeployment(a, cmd, d)
			},
		},
	)
	return cmd
}

func printDeployments(a *app, cmd *cobra.Command, deployments []models.Deployment) error {
	f, err := a.formatter(cmd)
	if err != nil {
		return err
	}
	if f.IsJSON() {
		return f.Output(deployments)
	}

	rows := make([][]string, 0, len(deployments))
	for _, d := range deployments {
		rows = append(rows, []string{
			d.ID,
			d.AgentName,
			strings.Join(d.ReleaseTags, ","),
			string(d.Status),
			output.Timestamp(&d.CreatedAt),
			output.Timestamp(d.CompletedAt),
		})
	}
	return f.Table([]string{"ID", "AGENT", "RELEASES", "STATUS", "CREATED", "COMPLETED"}, rows)
}

func printDeployment(a *app, cmd *cobra.Command, d *models.Deployment) error {
	f, err := a.formatter(cmd)
	if err != nil {
		return err
	}
	if f.IsJSON() {
		return f.Output(d)
	}

	fields := [][2]string{
		{"ID", d.ID},
		{"Agent", fmt.Sprintf("%s (%s)", d.AgentName, d.AgentID)},
		{"Releases", strings.Join(d.ReleaseIDs, ", ")},
		{"Tags", strings.Join(d.ReleaseTags, ", ")},
		{"Status", string(d.Status)},
		{"Created", output.Timestamp(&d.CreatedAt)},
		{"Started", output.Timestamp(d.StartedAt)},
		{"Completed", output.Timestamp(d.CompletedAt)},
	}
	if d.ErrorMessage != "" {
		fields = append(fields, [2]string{"Error", d.ErrorMessage})
	}
	return f.Fields(fields)
}
