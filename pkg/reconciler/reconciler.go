package reconciler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	monitoringv1 "github.com/prometheus-operator/prometheus-operator/pkg/apis/monitoring/v1"
	"go.uber.org/zap"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	k8serr "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"

	"github.com/kyma-incubator/alerting-reconciler/pkg/backup"
	e "github.com/kyma-incubator/alerting-reconciler/pkg/error"
	"github.com/kyma-incubator/alerting-reconciler/pkg/kubernetes"
	"github.com/kyma-incubator/alerting-reconciler/pkg/kubernetes/progress"
)

const (
	defaultReadyInterval  = 5 * time.Second
	defaultCleanupTimeout = 30 * time.Second
)

// Upstream identifies the metrics backend the alerting stack gets wired to.
type Upstream struct {
	Namespace  string
	Deployment string
	ConfigMap  string
	DataKey    string
}

// Reconciler converges cluster resources towards their desired state.
// It keeps no state between calls: every operation observes the cluster from scratch.
type Reconciler struct {
	client         kubernetes.Client
	backups        *backup.Store
	logger         *zap.SugaredLogger
	readyInterval  time.Duration
	cleanupTimeout time.Duration
}

func NewReconciler(client kubernetes.Client, backups *backup.Store, logger *zap.SugaredLogger) *Reconciler {
	return &Reconciler{
		client:         client,
		backups:        backups,
		logger:         logger,
		readyInterval:  defaultReadyInterval,
		cleanupTimeout: defaultCleanupTimeout,
	}
}

// EnsurePrerequisites verifies that the control plane is reachable and the upstream
// deployment exists. It issues read calls only.
func (r *Reconciler) EnsurePrerequisites(ctx context.Context, upstream Upstream) error {
	version, err := r.client.Ping(ctx)
	if err != nil {
		return e.NewFatalError(err, "control plane API is not reachable")
	}
	r.logger.Debugf("Control plane API is reachable (server version: %s)", version)

	res := &kubernetes.Resource{Kind: kubernetes.KindDeployment, Namespace: upstream.Namespace, Name: upstream.Deployment}
	if _, err := r.client.Get(ctx, res); err != nil {
		if k8serr.IsNotFound(err) {
			return e.NewFatalError(nil, "required upstream %s does not exist", res)
		}
		return e.NewFatalError(err, "failed to verify existence of upstream %s", res)
	}
	r.logger.Debugf("Upstream %s exists", res)
	return nil
}

// Observe reads the current state of the described resource.
func (r *Reconciler) Observe(ctx context.Context, desc *ResourceDescriptor) (*Observation, error) {
	obj, err := r.client.Get(ctx, desc.Resource)
	if err != nil {
		if k8serr.IsNotFound(err) {
			return &Observation{Present: false}, nil
		}
		return nil, err
	}
	return &Observation{Present: true, Object: obj}, nil
}

// Apply observes, decides and executes the action for a single resource.
func (r *Reconciler) Apply(ctx context.Context, desc *ResourceDescriptor) *Result {
	result := &Result{Resource: desc.Resource}

	observation, err := r.Observe(ctx, desc)
	if err != nil {
		return r.failed(result, errors.Wrapf(err, "failed to observe %s", desc.Resource))
	}

	result.Action = Decide(desc, observation)
	switch result.Action {
	case ActionCreate:
		err = r.client.Create(ctx, desc.Desired.DeepCopyObject())
	case ActionPatch:
		err = r.patch(ctx, desc)
	case ActionSkip:
		result.Status = StatusSkipped
		r.logger.Debugf("Skipping %s: nothing to do", desc)
		return result
	}

	if err != nil {
		return r.failed(result, errors.Wrapf(err, "failed to %s %s", result.Action, desc.Resource))
	}
	result.Status = StatusApplied
	r.logger.Infof("Applied %s to %s", result.Action, desc.Resource)
	return result
}

func (r *Reconciler) patch(ctx context.Context, desc *ResourceDescriptor) error {
	switch desired := desc.Desired.(type) {
	case *corev1.Secret, *corev1.ConfigMap:
		return r.client.Update(ctx, desired.DeepCopyObject())
	case *corev1.Service:
		return r.mergePatch(ctx, desc.Resource, map[string]interface{}{
			"metadata": map[string]interface{}{"labels": desired.Labels},
			"spec": map[string]interface{}{
				"type":     desired.Spec.Type,
				"ports":    desired.Spec.Ports,
				"selector": desired.Spec.Selector,
			},
		})
	case *appsv1.Deployment:
		return r.mergePatch(ctx, desc.Resource, map[string]interface{}{
			"spec": map[string]interface{}{
				"replicas": desired.Spec.Replicas,
				"template": desired.Spec.Template,
			},
		})
	case *monitoringv1.PrometheusRule:
		return r.mergePatch(ctx, desc.Resource, map[string]interface{}{"spec": desired.Spec})
	default:
		return fmt.Errorf("patching of %s is not supported", desc.Resource)
	}
}

func (r *Reconciler) mergePatch(ctx context.Context, res *kubernetes.Resource, patch interface{}) error {
	data, err := json.Marshal(patch)
	if err != nil {
		return err
	}
	return r.client.Patch(ctx, res, types.MergePatchType, data)
}

func (r *Reconciler) failed(result *Result, err error) *Result {
	result.Status = StatusFailed
	result.Error = err
	r.logger.Warnf("Reconciliation of %s failed: %s", result.Resource, err)
	return result
}

// EnsureNamespace creates the namespace if it is missing.
func (r *Reconciler) EnsureNamespace(ctx context.Context, name string) *Result {
	desc, err := NewDescriptor(&corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: name}}, PreserveExisting)
	if err != nil {
		return r.failed(&Result{Resource: &kubernetes.Resource{Kind: kubernetes.KindNamespace, Name: name}}, err)
	}
	return r.Apply(ctx, desc)
}

// EnsureSecret creates the secret from literalValues if it is missing. An existing secret
// is left untouched if preserveExisting is set, otherwise it is converged to literalValues.
func (r *Reconciler) EnsureSecret(ctx context.Context, name, namespace string, literalValues map[string]string, preserveExisting bool) *Result {
	data := make(map[string][]byte, len(literalValues))
	for key, value := range literalValues {
		data[key] = []byte(value)
	}
	return r.EnsureSecretObject(ctx, &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
		Type:       corev1.SecretTypeOpaque,
		Data:       data,
	}, preserveExisting)
}

func (r *Reconciler) EnsureSecretObject(ctx context.Context, secret *corev1.Secret, preserveExisting bool) *Result {
	policy := Converge
	if preserveExisting {
		policy = PreserveExisting
	}
	desc, err := NewDescriptor(secret, policy)
	if err != nil {
		return r.failed(&Result{Resource: &kubernetes.Resource{Kind: kubernetes.KindSecret, Namespace: secret.Namespace, Name: secret.Name}}, err)
	}

	result := r.Apply(ctx, desc)
	if result.Action == ActionSkip && preserveExisting {
		result.Message = "secret exists and is preserved"
		r.logger.Infof("%s exists: keeping its current values", desc.Resource)
	}
	return result
}

// ReplaceSecret overwrites the secret with literalValues, creating it if needed.
func (r *Reconciler) ReplaceSecret(ctx context.Context, name, namespace string, literalValues map[string]string) *Result {
	return r.EnsureSecret(ctx, name, namespace, literalValues, false)
}

// EnsureDeployment reconciles the dependencies of the deployment (its static configuration)
// and creates the deployment if it is missing. An existing deployment is never patched:
// replica or image changes require a re-creation. With a healthWaitTimeout > 0 the call
// blocks until the deployment is ready or the timeout is reached.
func (r *Reconciler) EnsureDeployment(ctx context.Context, desc *ResourceDescriptor, replicas int32, healthWaitTimeout time.Duration) *Result {
	deployment, ok := desc.Desired.DeepCopyObject().(*appsv1.Deployment)
	if !ok {
		return r.failed(&Result{Resource: desc.Resource}, fmt.Errorf("%s is not a deployment", desc.Resource))
	}
	deployment.Spec.Replicas = &replicas

	var dependents []*Result
	configChanged := false
	for _, dependency := range desc.Dependencies {
		depResult := r.Apply(ctx, dependency)
		if depResult.Action == ActionPatch && depResult.Status == StatusApplied {
			configChanged = true
		}
		dependents = append(dependents, depResult)
	}

	result := r.Apply(ctx, &ResourceDescriptor{
		Resource: desc.Resource,
		Desired:  deployment,
		Policy:   CreateOnly,
	})
	result.Dependents = dependents

	if result.Action == ActionSkip {
		result.Message = "deployment exists: static configuration re-applied, deployment not patched"
		r.logger.Infof("%s exists: only its static configuration was re-applied", desc.Resource)
		if configChanged {
			r.logger.Warnf("Configuration of %s changed: running pods pick it up after a restart", desc.Resource)
		}
	}

	if result.Failed() || healthWaitTimeout <= 0 {
		return result
	}

	if err := r.waitForReady(ctx, desc.Resource, healthWaitTimeout); err != nil {
		if progress.IsTimeoutError(err) {
			result.Status = StatusTimedOut
			result.Message = fmt.Sprintf("deployment not ready within %s", healthWaitTimeout)
			r.logger.Warnf("%s did not become ready within %s: continuing", desc.Resource, healthWaitTimeout)
			return result
		}
		return r.failed(result, errors.Wrapf(err, "failed to wait for readiness of %s", desc.Resource))
	}
	r.logger.Infof("%s is ready", desc.Resource)
	return result
}

func (r *Reconciler) waitForReady(ctx context.Context, res *kubernetes.Resource, timeout time.Duration) error {
	interval := r.readyInterval
	if interval >= timeout {
		interval = timeout / 2
	}
	tracker, err := progress.NewProgressTracker(r.client.Clientset(), r.logger, progress.Config{
		Interval: interval,
		Timeout:  timeout,
	})
	if err != nil {
		return err
	}
	tracker.AddResource(progress.Deployment, res.Namespace, res.Name)
	return tracker.Watch(ctx, progress.ReadyState)
}

// Restart triggers a rolling restart of the deployment.
func (r *Reconciler) Restart(ctx context.Context, namespace, deployment string) *Result {
	result := &Result{
		Resource: &kubernetes.Resource{Kind: kubernetes.KindDeployment, Namespace: namespace, Name: deployment},
		Action:   ActionPatch,
	}
	if err := r.client.Restart(ctx, namespace, deployment); err != nil {
		return r.failed(result, err)
	}
	result.Status = StatusApplied
	result.Message = "rolling restart triggered"
	r.logger.Infof("Triggered restart of %s", result.Resource)
	return result
}
