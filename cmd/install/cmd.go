package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/kyma-incubator/alerting-reconciler/internal/cli"
	"github.com/kyma-incubator/alerting-reconciler/pkg/alerting"
	"github.com/kyma-incubator/alerting-reconciler/pkg/reconciler"
)

func NewCmd(o *cli.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install AlertManager and wire it into the metrics backend",
		Long: "Creates the notification secret (from the local credentials file or a generated template), " +
			"deploys AlertManager, registers it as alerting target of the metrics backend " +
			"and verifies the alert path with a validation probe. Re-running it is safe.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run(o, cmd)
		},
	}
	return cmd
}

func Run(o *cli.Options, cmd *cobra.Command) error {
	return o.Run("install", func(ctx context.Context, installer *alerting.Installer) (*reconciler.Report, error) {
		return installer.Install(ctx)
	}, cmd.OutOrStdout())
}
