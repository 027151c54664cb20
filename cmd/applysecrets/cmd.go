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
		Use:   "apply-secrets",
		Short: "Push the local notification credentials into the cluster",
		Long: "Replaces the notification secret with the values of the local credentials file, " +
			"re-renders the AlertManager configuration and restarts AlertManager.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.Run("apply-secrets", func(ctx context.Context, installer *alerting.Installer) (*reconciler.Report, error) {
				return installer.ApplySecrets(ctx)
			}, cmd.OutOrStdout())
		},
	}
	return cmd
}
