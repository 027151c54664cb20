package alerting

import (
	"fmt"
	"time"
)

const (
	defaultNamespace         = "monitoring"
	defaultUpstream          = "prometheus-server"
	defaultUpstreamDataKey   = "prometheus.yml"
	defaultName              = "alertmanager"
	defaultImage             = "quay.io/prometheus/alertmanager:v0.26.0"
	defaultReplicas          = 2
	defaultHealthWaitTimeout = 5 * time.Minute
	defaultProbeInterval     = 10 * time.Second
	defaultProbeAttempts     = 6
	defaultCredentialsFile   = "alertmanager-secrets.env"
	defaultBackupDir         = "backups"
	defaultSMTPSmarthost     = "smtp.example.com:587"
	defaultSMTPFrom          = "alertmanager@example.com"
	defaultEmailTo           = "oncall@example.com"
)

// Config is the complete configuration of an installation. Zero values are replaced by defaults.
type Config struct {
	MetricsNamespace string `mapstructure:"metrics-namespace"`
	TargetNamespace  string `mapstructure:"target-namespace"`

	UpstreamDeployment string `mapstructure:"upstream-deployment"`
	UpstreamConfigMap  string `mapstructure:"upstream-configmap"`
	UpstreamDataKey    string `mapstructure:"upstream-data-key"`

	Name     string `mapstructure:"name"`
	Image    string `mapstructure:"image"`
	Replicas int32  `mapstructure:"replicas"`

	HealthWaitTimeout time.Duration `mapstructure:"health-wait-timeout"`
	ProbeInterval     time.Duration `mapstructure:"probe-interval"`
	ProbeAttempts     int           `mapstructure:"probe-attempts"`
	// AlertManagerURL is queried by the validation probe. If empty, the API server
	// service proxy is used.
	AlertManagerURL string `mapstructure:"alertmanager-url"`

	CredentialsFile string `mapstructure:"credentials-file"`
	BackupDir       string `mapstructure:"backup-dir"`

	SMTPSmarthost string `mapstructure:"smtp-smarthost"`
	SMTPFrom      string `mapstructure:"smtp-from"`
	SMTPUsername  string `mapstructure:"smtp-username"`
	EmailTo       string `mapstructure:"email-to"`
	SlackChannel  string `mapstructure:"slack-channel"`
}

func (c *Config) validate() error {
	setDefault(&c.MetricsNamespace, defaultNamespace)
	setDefault(&c.TargetNamespace, defaultNamespace)
	setDefault(&c.UpstreamDeployment, defaultUpstream)
	setDefault(&c.UpstreamConfigMap, defaultUpstream)
	setDefault(&c.UpstreamDataKey, defaultUpstreamDataKey)
	setDefault(&c.Name, defaultName)
	setDefault(&c.Image, defaultImage)
	setDefault(&c.CredentialsFile, defaultCredentialsFile)
	setDefault(&c.BackupDir, defaultBackupDir)
	setDefault(&c.SMTPSmarthost, defaultSMTPSmarthost)
	setDefault(&c.SMTPFrom, defaultSMTPFrom)
	setDefault(&c.EmailTo, defaultEmailTo)

	if c.Replicas < 0 {
		return fmt.Errorf("replicas cannot be < 0")
	}
	if c.Replicas == 0 {
		c.Replicas = defaultReplicas
	}
	if c.HealthWaitTimeout < 0 {
		return fmt.Errorf("health wait timeout cannot be < 0")
	}
	if c.HealthWaitTimeout == 0 {
		c.HealthWaitTimeout = defaultHealthWaitTimeout
	}
	if c.ProbeInterval < 0 {
		return fmt.Errorf("probe interval cannot be < 0")
	}
	if c.ProbeInterval == 0 {
		c.ProbeInterval = defaultProbeInterval
	}
	if c.ProbeAttempts < 0 {
		return fmt.Errorf("probe attempts cannot be < 0")
	}
	if c.ProbeAttempts == 0 {
		c.ProbeAttempts = defaultProbeAttempts
	}
	return nil
}

func setDefault(value *string, defaultValue string) {
	if *value == "" {
		*value = defaultValue
	}
}

// DefaultConfig returns a configuration with all defaults applied.
func DefaultConfig() Config {
	cfg := Config{}
	_ = cfg.validate()
	return cfg
}
