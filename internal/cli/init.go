package cli

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/kyma-incubator/alerting-reconciler/pkg/alerting"
	file "github.com/kyma-incubator/alerting-reconciler/pkg/files"
)

const (
	envVarPrefix = "ALERTING"
)

var DefaultConfigFile string
var viperInitialized bool

func NewRootCommand(o *Options, name, shortDesc, longDesc string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   name,
		Short: shortDesc,
		Long:  longDesc,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			//validate given user input
			return o.Validate()
		},
		SilenceErrors: false,
		SilenceUsage:  true,
	}
	cobra.OnInitialize(initViper(o))

	flags := cmd.PersistentFlags()
	flags.StringVarP(&DefaultConfigFile, "config", "c", "", `Path to an optional YAML configuration file`)
	flags.BoolVarP(&o.Verbose, "verbose", "v", false, "Show detailed information about the executed command actions")
	flags.StringVarP(&o.OutputFormat, "output", "o", "table", "Output format of the run summary: "+strings.Join(SupportedOutputFormats, ", "))
	flags.StringVar(&o.Kubeconfig, "kubeconfig", "", "Path to the kubeconfig file (default: $KUBECONFIG, ~/.kube/config or in-cluster configuration)")
	flags.StringVar(&o.LogFile, "log-file", "", "Write the log additionally into this (rotated) file")
	flags.StringVar(&o.MetricsFile, "metrics-file", "", "Write the run metrics in Prometheus text format into this file")
	flags.IntVar(&o.MaxRetries, "max-retries", 3, "Attempts of a control-plane call which failed with a transient error")
	flags.DurationVar(&o.RetryDelay, "retry-delay", 0, "Delay between two attempts of a control-plane call (default 2s)")
	flags.BoolP("help", "h", false, "Command help")

	addAlertingFlags(flags)
	if err := viper.BindPFlags(flags); err != nil {
		panic(err)
	}
	return cmd
}

func addAlertingFlags(flags *pflag.FlagSet) {
	defaults := alerting.DefaultConfig()
	flags.String("metrics-namespace", defaults.MetricsNamespace, "Namespace of the metrics backend")
	flags.String("target-namespace", defaults.TargetNamespace, "Namespace AlertManager is installed into")
	flags.String("upstream-deployment", defaults.UpstreamDeployment, "Deployment of the metrics backend")
	flags.String("upstream-configmap", defaults.UpstreamConfigMap, "ConfigMap holding the metrics backend configuration")
	flags.String("upstream-data-key", defaults.UpstreamDataKey, "Data key of the metrics backend configuration")
	flags.String("name", defaults.Name, "Name of the AlertManager deployment and its service")
	flags.String("image", defaults.Image, "AlertManager container image")
	flags.Int32("replicas", defaults.Replicas, "AlertManager replicas")
	flags.Duration("health-wait-timeout", defaults.HealthWaitTimeout, "Maximum time to wait for AlertManager to become ready")
	flags.Duration("probe-interval", defaults.ProbeInterval, "Wait time before each validation probe attempt")
	flags.Int("probe-attempts", defaults.ProbeAttempts, "Attempts of the validation probe")
	flags.String("alertmanager-url", "", "AlertManager URL queried by the validation probe (default: API server service proxy)")
	flags.String("credentials-file", defaults.CredentialsFile, "Local dotenv file holding the notification credentials")
	flags.String("backup-dir", defaults.BackupDir, "Directory of the backups taken before modifying upstream resources")
	flags.String("smtp-smarthost", defaults.SMTPSmarthost, "SMTP server (host:port) used for e-mail notifications")
	flags.String("smtp-from", defaults.SMTPFrom, "Sender address of e-mail notifications")
	flags.String("smtp-username", "", "SMTP user (default: sender address)")
	flags.String("email-to", defaults.EmailTo, "Recipient of e-mail notifications")
	flags.String("slack-channel", "", "Slack channel of chat notifications (default #alerts)")
}

func initViper(o *Options) func() {
	return func() {
		if viperInitialized { //no need to initialize it multiple times
			return
		}
		viperInitialized = true

		//read configuration from ENV vars
		viper.SetEnvPrefix(envVarPrefix)
		viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
		viper.AutomaticEnv()

		//read configuration from config file
		cfgFile := getConfigFile()
		if cfgFile == "" {
			return
		}
		if !file.Exists(cfgFile) {
			o.Logger().Warnf("Configuration file '%s' not found", cfgFile)
			return
		}

		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err == nil {
			o.Logger().Debugf("Using configuration file '%s'", viper.ConfigFileUsed())
		} else {
			o.Logger().Errorf("Failed to read configuration file '%s': %s", cfgFile, err)
		}
	}
}

func getConfigFile() string {
	configFileEnv := strings.TrimSpace(viper.GetString("config"))
	if file.Exists(configFileEnv) {
		return configFileEnv
	}
	return DefaultConfigFile
}
