package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"fleetdeploy/pkg/models"
)

func newReleasesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "releases",
		Aliases: []string{"release"},
		Short:   "Release catalog commands",
	}

	update := &cobra.Command{
		Use:   "update <release-id>",
		Short: "Edit the name, description or download URL of a release",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req models.UpdateReleaseRequest
			for flag, dst := range map[string]**string{
				"name":         &req.Name,
				"description":  &req.Description,
				"download-url": &req.DownloadURL,
			} {
				if cmd.Flags().Changed(flag) {
					v, _ := cmd.Flags().GetString(flag)
					*dst = &v
				}
			}
			if req.Name == nil && req.Description == nil && req.DownloadURL == nil {
				return fmt.Errorf("nothing to update: pass --name, --description or --download-url")
			}

			release, err := a.client().UpdateRelease(cmd.Context(), args[0], req)
			if err != nil {
				return fmt.Errorf("failed to update release: %w", err)
			}
			return printRelease(a, cmd, release)
		},
	}
	update.Flags().String("name", "", "display name")
	update.Flags().String("description", "", "description")
	update.Flags().String("download-url", "", "download URL")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List releases, newest first",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				releases, err := a.client().ListReleases(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to list releases: %w", err)
				}
				f, err := a.formatter(cmd)
				if err != nil {
					return err
				}
				if f.IsJSON() {
					return f.Output(releases)
				}

				rows := make([][]string, 0, len(releases))
				for _, r := range releases {
					rows = append(rows, []string{r.ID, r.TagName, r.Name, r.DownloadURL})
				}
				return f.Table([]string{"ID", "TAG", "NAME", "DOWNLOAD URL"}, rows)
			},
		},
		&cobra.Command{
			Use:   "get <release-id>",
			Short: "Show one release",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				release, err := a.client().GetRelease(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("failed to get release: %w", err)
				}
				return printRelease(a, cmd, release)
			},
		},
		&cobra.Command{
			Use:   "add <github-url>",
			Short: "Register a release from a GitHub repository URL",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				release, err := a.client().CreateRelease(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("failed to add release: %w", err)
				}
				return printRelease(a, cmd, release)
			},
		},
		update,
		&cobra.Command{
			Use:   "delete <release-id>",
			Short: "Delete a release",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.client().DeleteRelease(cmd.Context(), args[0]); err != nil {
					return fmt.Errorf("failed to delete release: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Release %s deleted\n", args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "versions <release-id>",
			Short: "List versions published on GitHub",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				versions, err := a.client().ReleaseVersions(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("failed to list versions: %w", err)
				}
				f, err := a.formatter(cmd)
				if err != nil {
					return err
				}
				if f.IsJSON() {
					return f.Output(versions)
				}

				rows := make([][]string, 0, len(versions))
				for _, v := range versions {
					assets := make([]string, 0, len(v.Assets))
					for _, asset := range v.Assets {
						assets = append(assets, asset.Name)
					}
					rows = append(rows, []string{v.TagName, v.Name, v.PublishedAt, strings.Join(assets, ",")})
				}
				return f.Table([]string{"TAG", "NAME", "PUBLISHED", "ASSETS"}, rows)
			},
		},
	)
	return cmd
}

func printRelease(a *app, cmd *cobra.Command, r *models.Release) error {
	f, err := a.formatter(cmd)
	if err != nil {
		return err
	}
	if f.IsJSON() {
		return f.Output(r)
	}
	return f.Fields([][2]string{
		{"ID", r.ID},
		{"Tag", r.TagName},
		{"Name", r.Name},
		{"Version", r.Version},
		{"Description", r.Description},
		{"Download URL", r.DownloadURL},
	})
}
