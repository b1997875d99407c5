package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newHealthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show coordinator health and entity counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			health, err := a.client().Health(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get health: %w", err)
			}
			f, err := a.formatter(cmd)
			if err != nil {
				return err
			}
			if f.IsJSON() {
				return f.Output(health)
			}
			return f.Fields([][2]string{
				{"Status", health.Status},
				{"Agents", fmt.Sprintf("%d (%d online)", health.AgentsCount, health.OnlineAgents)},
				{"Releases", strconv.Itoa(health.ReleasesCount)},
				{"Deployments", strconv.Itoa(health.DeploymentsCount)},
			})
		},
	}
}

func newMetricsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Show request metrics collected by the coordinator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pending, _ := cmd.Flags().GetBool("pending")
			raw, err := a.client().Metrics(cmd.Context(), pending)
			if err != nil {
				return fmt.Errorf("failed to get metrics: %w", err)
			}
			f, err := a.formatter(cmd)
			if err != nil {
				return err
			}
			// Metrics are already JSON; text mode pretty-prints them too
			var v any
			if err := json.Unmarshal(raw, &v); err != nil {
				return fmt.Errorf("failed to decode metrics: %w", err)
			}
			enc := json.NewEncoder(f.Writer())
			enc.SetIndent("", "  ")
			return enc.Encode(v)
		},
	}
	cmd.Flags().Bool("pending", false, "only the deployment poll endpoint")
	return cmd
}

func newTokenCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the GitHub token used to list release versions",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "set <token>",
			Short: "Store a GitHub token on the coordinator",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.client().SetToken(cmd.Context(), args[0]); err != nil {
					return fmt.Errorf("failed to set token: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "GitHub token saved")
				return nil
			},
		},
		&cobra.Command{
			Use:   "show",
			Short: "Show whether a token is configured",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				status, err := a.client().TokenStatus(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to get token status: %w", err)
				}
				f, err := a.formatter(cmd)
				if err != nil {
					return err
				}
				if f.IsJSON() {
					return f.Output(status)
				}
				if !status.HasToken {
					fmt.Fprintln(cmd.OutOrStdout(), "No GitHub token configured")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "GitHub token configured: %s\n", status.TokenPreview)
				return nil
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Remove the stored token",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.client().ClearToken(cmd.Context()); err != nil {
					return fmt.Errorf("failed to clear token: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "GitHub token removed")
				return nil
			},
		},
	)
	return cmd
}
