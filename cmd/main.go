package main

import (
	"os"

	"github.com/spf13/cobra"

	applySecretsCmd "github.com/kyma-incubator/alerting-reconciler/cmd/applysecrets"
	installCmd "github.com/kyma-incubator/alerting-reconciler/cmd/install"
	testCmd "github.com/kyma-incubator/alerting-reconciler/cmd/test"
	uninstallCmd "github.com/kyma-incubator/alerting-reconciler/cmd/uninstall"
	"github.com/kyma-incubator/alerting-reconciler/internal/cli"
)

func main() {
	o := &cli.Options{}
	cmd := cli.NewRootCommand(
		o,
		"alerting-reconciler",
		"AlertManager installer",
		"Installs AlertManager into a Kubernetes cluster and wires it into the running metrics backend")

	//install is the default command
	cmd.Args = cobra.ArbitraryArgs
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			return cmd.Help()
		}
		return installCmd.Run(o, cmd)
	}

	cmd.AddCommand(installCmd.NewCmd(o))
	cmd.AddCommand(applySecretsCmd.NewCmd(o))
	cmd.AddCommand(testCmd.NewCmd(o))
	cmd.AddCommand(uninstallCmd.NewCmd(o))

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
