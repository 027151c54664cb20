package cli

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/kyma-incubator/alerting-reconciler/pkg/alerting"
	"github.com/kyma-incubator/alerting-reconciler/pkg/kubernetes"
	"github.com/kyma-incubator/alerting-reconciler/pkg/logger"
)

var loggerMutex sync.Mutex

type Options struct {
	Verbose      bool
	OutputFormat string
	Kubeconfig   string
	LogFile      string
	MetricsFile  string
	MaxRetries   int
	RetryDelay   time.Duration
	logger       *zap.SugaredLogger
}

func (o *Options) String() string {
	return fmt.Sprintf("CLI options: verbose=%t output=%s kubeconfig=%s logFile=%s metricsFile=%s",
		o.Verbose, o.OutputFormat, o.Kubeconfig, o.LogFile, o.MetricsFile)
}

func (o *Options) Logger() *zap.SugaredLogger {
	loggerMutex.Lock()
	defer loggerMutex.Unlock()

	if o.logger == nil {
		log, err := logger.NewLoggerWithFile(o.Verbose, o.LogFile)
		if err != nil {
			o.logger = logger.NewOptionalLogger(o.Verbose).Sugar()
			o.logger.Warnf("Failed to create logger with log file '%s', logging to console only: %s", o.LogFile, err)
			return o.logger
		}
		o.logger = log.Sugar()
	}
	return o.logger
}

// KubernetesClient creates the control-plane client for the configured kubeconfig.
func (o *Options) KubernetesClient() (kubernetes.Client, error) {
	return kubernetes.NewClientBuilder().
		WithFile(o.Kubeconfig).
		WithLogger(o.Logger()).
		WithConfig(&kubernetes.Config{
			MaxRetries: o.MaxRetries,
			RetryDelay: o.RetryDelay,
		}).
		Build()
}

// AlertingConfig merges flags, ALERTING_* env-vars and the configuration file.
func (o *Options) AlertingConfig() (*alerting.Config, error) {
	cfg := &alerting.Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode alerting configuration")
	}
	return cfg, nil
}

func (o *Options) Validate() error {
	if isSupportedFormat(o.OutputFormat) {
		return nil
	}
	return fmt.Errorf("Output format '%s' not supported - choose between '%s'", o.OutputFormat, strings.Join(SupportedOutputFormats, "', '"))
}
