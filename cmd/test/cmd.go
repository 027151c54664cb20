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
		Use:   "test",
		Short: "Run the validation probe",
		Long: "Creates a synthetic, always firing alert rule, waits until AlertManager reports the alert " +
			"and removes the rule again. A missing alert is reported as inconclusive.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.Run("test", func(ctx context.Context, installer *alerting.Installer) (*reconciler.Report, error) {
				return installer.Test(ctx)
			}, cmd.OutOrStdout())
		},
	}
	return cmd
}
