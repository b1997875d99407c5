// Package cli implements fleetctl, the operator command line for the
// coordinator API.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fleetdeploy/pkg/client"
	"fleetdeploy/pkg/output"
)

type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *Config
}

// NewRootCmd builds the fleetctl command tree
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "fleetctl",
		Short: "Manage the deployment fleet",
		Long: `A command-line interface for the fleet coordinator. Lists agents, manages the
release catalog and schedules deployments that agents claim and report on.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(a.v, a.cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			a.cfg = cfg
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is $HOME/.fleetctl/config.yaml)")
	flags.String("coordinator", "", "coordinator URL")
	flags.Duration("timeout", 0, "per-request timeout")
	_ = a.v.BindPFlag("coordinator.endpoint", flags.Lookup("coordinator"))
	_ = a.v.BindPFlag("coordinator.timeout", flags.Lookup("timeout"))
	output.AddFormatFlag(root)

	root.AddCommand(
		newAgentsCmd(a),
		newReleasesCmd(a),
		newDeploymentsCmd(a),
		newTokenCmd(a),
		newHealthCmd(a),
		newMetricsCmd(a),
	)
	return root
}

// Execute runs fleetctl and exits non-zero on error
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (a *app) client() *client.Client {
	return client.New(a.cfg.Coordinator.Endpoint, client.WithTimeout(a.cfg.Coordinator.Timeout))
}

func (a *app) formatter(cmd *cobra.Command) (*output.Formatter, error) {
	format, err := output.GetFormatFromCmd(cmd)
	if err != nil {
		return nil, err
	}
	f := output.New(format)
	f.SetWriter(cmd.OutOrStdout())
	return f, nil
}
