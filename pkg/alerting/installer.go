package alerting

import (
	"context"
	"time"

	"go.uber.org/zap"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"

	"github.com/kyma-incubator/alerting-reconciler/pkg/alertmanager"
	"github.com/kyma-incubator/alerting-reconciler/pkg/backup"
	"github.com/kyma-incubator/alerting-reconciler/pkg/credentials"
	e "github.com/kyma-incubator/alerting-reconciler/pkg/error"
	file "github.com/kyma-incubator/alerting-reconciler/pkg/files"
	"github.com/kyma-incubator/alerting-reconciler/pkg/kubernetes"
	"github.com/kyma-incubator/alerting-reconciler/pkg/kubernetes/progress"
	"github.com/kyma-incubator/alerting-reconciler/pkg/metrics"
	"github.com/kyma-incubator/alerting-reconciler/pkg/prometheus"
	"github.com/kyma-incubator/alerting-reconciler/pkg/reconciler"
)

const terminationInterval = time.Second

// Installer runs the AlertManager installation workflows. Steps run strictly in order;
// concurrent runs against the same cluster are not coordinated and the last writer wins.
type Installer struct {
	config     *Config
	client     kubernetes.Client
	reconciler *reconciler.Reconciler
	manifests  *alertmanager.Manifests
	verifier   reconciler.ProbeVerifier
	metrics    *metrics.RunCollector
	logger     *zap.SugaredLogger
}

type InstallerOption func(*Installer)

// WithVerifier replaces the verifier the validation probe uses to look for its alert.
func WithVerifier(verifier reconciler.ProbeVerifier) InstallerOption {
	return func(i *Installer) {
		i.verifier = verifier
	}
}

func WithMetrics(collector *metrics.RunCollector) InstallerOption {
	return func(i *Installer) {
		i.metrics = collector
	}
}

func NewInstaller(client kubernetes.Client, config *Config, logger *zap.SugaredLogger, opts ...InstallerOption) (*Installer, error) {
	if config == nil {
		config = &Config{}
	}
	if err := config.validate(); err != nil {
		return nil, err
	}

	i := &Installer{
		config:     config,
		client:     client,
		reconciler: reconciler.NewReconciler(client, backup.NewStore(config.BackupDir), logger),
		manifests: &alertmanager.Manifests{
			Name:      config.Name,
			Namespace: config.TargetNamespace,
			Image:     config.Image,
			Replicas:  config.Replicas,
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(i)
	}

	if i.verifier == nil {
		var querier alertmanager.Querier
		if config.AlertManagerURL != "" {
			querier = alertmanager.NewHTTPQuerier(config.AlertManagerURL, nil)
		} else {
			logger.Debugf("Validation probe queries %s through the API server service proxy", i.manifests.URL())
			querier = alertmanager.NewProxyQuerier(client.Clientset(), config.TargetNamespace,
				i.manifests.ServiceName(), alertmanager.WebPort)
		}
		i.verifier = alertmanager.NewVerifier(querier)
	}
	return i, nil
}

func (i *Installer) upstream() reconciler.Upstream {
	return reconciler.Upstream{
		Namespace:  i.config.MetricsNamespace,
		Deployment: i.config.UpstreamDeployment,
		ConfigMap:  i.config.UpstreamConfigMap,
		DataKey:    i.config.UpstreamDataKey,
	}
}

func (i *Installer) routing() alertmanager.RoutingConfig {
	return alertmanager.RoutingConfig{
		SMTPSmarthost: i.config.SMTPSmarthost,
		SMTPFrom:      i.config.SMTPFrom,
		SMTPUsername:  i.config.SMTPUsername,
		EmailTo:       i.config.EmailTo,
		SlackChannel:  i.config.SlackChannel,
	}
}

// Install runs prerequisites, secret, deployment, upstream wiring and validation probe.
// Only a failed precondition is returned as error: all other failures are part of the report.
func (i *Installer) Install(ctx context.Context) (*reconciler.Report, error) {
	report := reconciler.NewReport()

	if err := i.reconciler.EnsurePrerequisites(ctx, i.upstream()); err != nil {
		return report, err
	}

	i.step(report, "namespace", func() []*reconciler.Result {
		return []*reconciler.Result{i.reconciler.EnsureNamespace(ctx, i.config.TargetNamespace)}
	})

	i.step(report, "secret", func() []*reconciler.Result {
		return []*reconciler.Result{i.ensureNotificationSecret(ctx)}
	})

	i.step(report, "deployment", func() []*reconciler.Result {
		return i.ensureDeployment(ctx)
	})

	i.step(report, "upstream-wiring", func() []*reconciler.Result {
		fragment := prometheus.AlertingFragment(i.manifests.Address())
		return []*reconciler.Result{i.reconciler.EnsureUpstreamWiring(ctx, i.upstream(), fragment)}
	})

	i.step(report, "validation", func() []*reconciler.Result {
		return []*reconciler.Result{i.runProbe(ctx)}
	})

	i.logSummary("Installation", report)
	return report, nil
}

func (i *Installer) ensureNotificationSecret(ctx context.Context) *reconciler.Result {
	creds, created, err := credentials.LoadOrTemplate(i.config.CredentialsFile)
	switch {
	case err != nil:
		i.logger.Warnf("Using placeholder credentials: %s", err)
		creds = credentials.Placeholders()
	case created:
		i.logger.Infof("Credentials template written to '%s': replace the placeholders "+
			"and run 'apply-secrets' to activate the notification channels", i.config.CredentialsFile)
	case creds.IsPlaceholder():
		i.logger.Infof("Credentials file '%s' still contains placeholder values", i.config.CredentialsFile)
	}
	return i.reconciler.EnsureSecretObject(ctx, i.manifests.NotificationSecret(creds.SecretData()), true)
}

// clusterCredentials returns the credentials stored in the notification secret, which are
// the reference for the rendered configuration as the secret is never overwritten by install.
func (i *Installer) clusterCredentials(ctx context.Context) credentials.Credentials {
	res := &kubernetes.Resource{
		Kind:      kubernetes.KindSecret,
		Namespace: i.config.TargetNamespace,
		Name:      i.manifests.NotificationSecretName(),
	}
	obj, err := i.client.Get(ctx, res)
	if err != nil {
		i.logger.Warnf("Failed to read %s, rendering configuration with placeholder credentials: %s", res, err)
		return credentials.Placeholders()
	}
	secret, ok := obj.(*corev1.Secret)
	if !ok {
		return credentials.Placeholders()
	}
	return credentials.FromSecretData(secret.Data)
}

// staticConfiguration returns the descriptors of all resources the deployment depends on.
func (i *Installer) staticConfiguration(creds credentials.Credentials) ([]*reconciler.ResourceDescriptor, error) {
	config, err := alertmanager.BuildConfig(creds, i.routing())
	if err != nil {
		return nil, err
	}

	var descriptors []*reconciler.ResourceDescriptor
	for _, obj := range []runtime.Object{
		i.manifests.ConfigSecret(config),
		i.manifests.TemplatesConfigMap(),
		i.manifests.Service(),
		i.manifests.ClusterService(),
	} {
		desc, err := reconciler.NewDescriptor(obj, reconciler.Converge)
		if err != nil {
			return nil, err
		}
		descriptors = append(descriptors, desc)
	}
	return descriptors, nil
}

func (i *Installer) ensureDeployment(ctx context.Context) []*reconciler.Result {
	var results []*reconciler.Result

	dependencies, err := i.staticConfiguration(i.clusterCredentials(ctx))
	if err != nil {
		i.logger.Warnf("Failed to render AlertManager configuration: %s", err)
		results = append(results, &reconciler.Result{
			Resource: &kubernetes.Resource{
				Kind:      kubernetes.KindSecret,
				Namespace: i.config.TargetNamespace,
				Name:      i.manifests.ConfigSecretName(),
			},
			Action: reconciler.ActionSkip,
			Status: reconciler.StatusFailed,
			Error:  err,
		})
	}

	desc, err := reconciler.NewDescriptor(i.manifests.Deployment(), reconciler.CreateOnly, dependencies...)
	if err != nil {
		return append(results, &reconciler.Result{Action: reconciler.ActionSkip, Status: reconciler.StatusFailed, Error: err})
	}
	return append(results, i.reconciler.EnsureDeployment(ctx, desc, i.config.Replicas, i.config.HealthWaitTimeout))
}

func (i *Installer) runProbe(ctx context.Context) *reconciler.Result {
	return i.reconciler.RunValidationProbe(ctx, &reconciler.ValidationProbe{
		Object:    prometheus.ProbeRule(i.config.MetricsNamespace),
		AlertName: alertmanager.ProbeAlertName,
		Verifier:  i.verifier,
	}, i.config.ProbeInterval, i.config.ProbeAttempts)
}

// ApplySecrets replaces the notification secret with the values of the credentials file,
// re-renders the configuration and restarts AlertManager.
func (i *Installer) ApplySecrets(ctx context.Context) (*reconciler.Report, error) {
	report := reconciler.NewReport()

	creds, err := credentials.Load(i.config.CredentialsFile)
	if err != nil {
		return report, e.NewFatalError(err, "cannot apply secrets")
	}
	if creds.IsPlaceholder() {
		i.logger.Warnf("Credentials file '%s' still contains placeholder values", i.config.CredentialsFile)
	}
	if err := i.ping(ctx); err != nil {
		return report, err
	}

	i.step(report, "secret", func() []*reconciler.Result {
		return []*reconciler.Result{i.reconciler.ReplaceSecret(ctx, i.manifests.NotificationSecretName(),
			i.config.TargetNamespace, creds.SecretData())}
	})

	i.step(report, "configuration", func() []*reconciler.Result {
		config, err := alertmanager.BuildConfig(creds, i.routing())
		if err != nil {
			i.logger.Warnf("Failed to render AlertManager configuration: %s", err)
			return []*reconciler.Result{{
				Resource: &kubernetes.Resource{
					Kind:      kubernetes.KindSecret,
					Namespace: i.config.TargetNamespace,
					Name:      i.manifests.ConfigSecretName(),
				},
				Action: reconciler.ActionPatch,
				Status: reconciler.StatusFailed,
				Error:  err,
			}}
		}
		return []*reconciler.Result{i.reconciler.EnsureSecretObject(ctx, i.manifests.ConfigSecret(config), false)}
	})

	i.step(report, "restart", func() []*reconciler.Result {
		return []*reconciler.Result{i.reconciler.Restart(ctx, i.config.TargetNamespace, i.config.Name)}
	})

	i.logSummary("Secret update", report)
	return report, nil
}

// Test runs the validation probe only.
func (i *Installer) Test(ctx context.Context) (*reconciler.Report, error) {
	report := reconciler.NewReport()
	if err := i.ping(ctx); err != nil {
		return report, err
	}
	i.step(report, "validation", func() []*reconciler.Result {
		return []*reconciler.Result{i.runProbe(ctx)}
	})
	i.logSummary("Validation", report)
	return report, nil
}

func (i *Installer) managedResources() []*kubernetes.Resource {
	ns := i.config.TargetNamespace
	return []*kubernetes.Resource{
		{Kind: kubernetes.KindDeployment, Namespace: ns, Name: i.config.Name},
		{Kind: kubernetes.KindService, Namespace: ns, Name: i.manifests.ServiceName()},
		{Kind: kubernetes.KindService, Namespace: ns, Name: i.manifests.ClusterServiceName()},
		{Kind: kubernetes.KindConfigMap, Namespace: ns, Name: i.manifests.TemplatesConfigMapName()},
		{Kind: kubernetes.KindSecret, Namespace: ns, Name: i.manifests.ConfigSecretName()},
		{Kind: kubernetes.KindSecret, Namespace: ns, Name: i.manifests.NotificationSecretName()},
	}
}

// Uninstall deletes all managed resources and local artifacts. Absent resources are no error.
// The upstream configuration is not reverted: the backups are removed as well.
func (i *Installer) Uninstall(ctx context.Context) (*reconciler.Report, error) {
	report := reconciler.NewReport()

	var teardownErr error
	i.step(report, "teardown", func() []*reconciler.Result {
		results, err := i.reconciler.Teardown(ctx, i.managedResources())
		teardownErr = err
		return results
	})

	removed, err := file.RemoveIfExists(i.config.CredentialsFile)
	switch {
	case err != nil:
		i.logger.Warnf("Failed to remove credentials file '%s': %s", i.config.CredentialsFile, err)
	case removed:
		i.logger.Infof("Removed credentials file '%s'", i.config.CredentialsFile)
	}

	i.waitForTermination(ctx)
	i.logSummary("Uninstallation", report)
	return report, teardownErr
}

func (i *Installer) waitForTermination(ctx context.Context) {
	interval := terminationInterval
	if interval >= i.config.HealthWaitTimeout {
		interval = i.config.HealthWaitTimeout / 2
	}
	tracker, err := progress.NewProgressTracker(i.client.Clientset(), i.logger, progress.Config{
		Interval: interval,
		Timeout:  i.config.HealthWaitTimeout,
	})
	if err != nil {
		i.logger.Warnf("Cannot watch termination of AlertManager: %s", err)
		return
	}
	tracker.AddResource(progress.Deployment, i.config.TargetNamespace, i.config.Name)
	if err := tracker.Watch(ctx, progress.TerminatedState); err != nil {
		i.logger.Warnf("AlertManager deployment not terminated yet: %s", err)
	}
}

func (i *Installer) ping(ctx context.Context) error {
	if _, err := i.client.Ping(ctx); err != nil {
		return e.NewFatalError(err, "control plane API is not reachable")
	}
	return nil
}

func (i *Installer) step(report *reconciler.Report, name string, fn func() []*reconciler.Result) {
	start := time.Now()
	results := fn()
	report.Add(results...)

	if i.metrics == nil {
		return
	}
	i.metrics.ObserveStep(name, time.Since(start))
	flat := reconciler.NewReport()
	flat.Add(results...)
	for _, result := range flat.Results() {
		kind := ""
		if result.Resource != nil {
			kind = string(result.Resource.Kind)
		}
		i.metrics.ObserveResult(kind, string(result.Action), string(result.Status))
	}
}

func (i *Installer) logSummary(operation string, report *reconciler.Report) {
	i.logger.Infof("%s finished: %d applied, %d skipped, %d timed out, %d failed", operation,
		report.Count(reconciler.StatusApplied), report.Count(reconciler.StatusSkipped),
		report.Count(reconciler.StatusTimedOut), report.Count(reconciler.StatusFailed))
}
