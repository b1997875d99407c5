package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"fleetdeploy/pkg/models"
	"fleetdeploy/pkg/output"
)

func newAgentsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "agents",
		Aliases: []string{"agent"},
		Short:   "Agent management commands",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List registered agents",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				agents, err := a.client().ListAgents(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to list agents: %w", err)
				}
				f, err := a.formatter(cmd)
				if err != nil {
					return err
				}
				if f.IsJSON() {
					return f.Output(agents)
				}

				rows := make([][]string, 0, len(agents))
				for _, ag := range agents {
					rows = append(rows, []string{ag.ID, ag.Name, string(ag.Platform), ag.Version, string(ag.Status), output.Timestamp(&ag.LastSeen)})
				}
				return f.Table([]string{"ID", "NAME", "PLATFORM", "VERSION", "STATUS", "LAST SEEN"}, rows)
			},
		},
		&cobra.Command{
			Use:   "get <agent-id>",
			Short: "Show one agent",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				agent, err := a.client().GetAgent(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("failed to get agent: %w", err)
				}
				return printAgent(a, cmd, agent)
			},
		},
		&cobra.Command{
			Use:   "rename <agent-id> <name>",
			Short: "Rename an agent",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				agent, err := a.client().RenameAgent(cmd.Context(), args[0], args[1])
				if err != nil {
					return fmt.Errorf("failed to rename agent: %w", err)
				}
				return printAgent(a, cmd, agent)
			},
		},
		&cobra.Command{
			Use:   "delete <agent-id>",
			Short: "Unregister an agent and delete its deployments",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.client().DeleteAgent(cmd.Context(), args[0]); err != nil {
					return fmt.Errorf("failed to delete agent: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Agent %s deleted\n", args[0])
				return nil
			},
		},
	)
	return cmd
}

func printAgent(a *app, cmd *cobra.Command, agent *models.Agent) error {
	f, err := a.formatter(cmd)
	if err != nil {
		return err
	}
	if f.IsJSON() {
		return f.Output(agent)
	}
	return f.Fields([][2]string{
		{"ID", agent.ID},
		{"Name", agent.Name},
		{"Platform", string(agent.Platform)},
		{"Version", agent.Version},
		{"Status", string(agent.Status)},
		{"Last Seen", output.Timestamp(&agent.LastSeen)},
		{"IP Address", agent.IPAddress},
	})
}
