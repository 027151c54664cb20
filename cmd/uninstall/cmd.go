package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/kyma-incubator/alerting-reconciler/internal/cli"
	"github.com/kyma-incubator/alerting-reconciler/pkg/alerting"
	e "github.com/kyma-incubator/alerting-reconciler/pkg/error"
	"github.com/kyma-incubator/alerting-reconciler/pkg/reconciler"
)

func NewCmd(o *cli.Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "uninstall",
		Short: "Remove AlertManager and all local artifacts",
		Long: "Deletes all AlertManager resources, the local credentials file and the backups. " +
			"The alerting targets of the metrics backend are not reverted.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.Run("uninstall", func(ctx context.Context, installer *alerting.Installer) (*reconciler.Report, error) {
				report, err := installer.Uninstall(ctx)
				if err != nil && !e.IsFatal(err) {
					//partial teardown is reported in the summary
					o.Logger().Warnf("Uninstallation incomplete: %s", err)
					return report, nil
				}
				return report, err
			}, cmd.OutOrStdout())
		},
	}
	return cmd
}
