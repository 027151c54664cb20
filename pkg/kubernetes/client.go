package kubernetes

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"
	monitoringv1 "github.com/prometheus-operator/prometheus-operator/pkg/apis/monitoring/v1"
	monitoringclient "github.com/prometheus-operator/prometheus-operator/pkg/client/versioned"
	"go.uber.org/zap"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	k8serr "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes"
)

const restartedAtAnnotation = "kubectl.kubernetes.io/restartedAt"

// Client is the subset of the control-plane API the reconciler depends on.
// Get returns a NotFound API error if the resource is absent.
type Client interface {
	Ping(ctx context.Context) (string, error)
	Get(ctx context.Context, res *Resource) (runtime.Object, error)
	Create(ctx context.Context, obj runtime.Object) error
	Update(ctx context.Context, obj runtime.Object) error
	Patch(ctx context.Context, res *Resource, patchType types.PatchType, data []byte) error
	Delete(ctx context.Context, res *Resource) error
	Restart(ctx context.Context, namespace, deployment string) error
	Clientset() kubernetes.Interface
}

type kubeClient struct {
	clientset  kubernetes.Interface
	monitoring monitoringclient.Interface
	logger     *zap.SugaredLogger
	config     *Config
}

func NewClient(clientset kubernetes.Interface, monitoring monitoringclient.Interface, logger *zap.SugaredLogger, config *Config) (Client, error) {
	if config == nil {
		config = &Config{}
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &kubeClient{
		clientset:  clientset,
		monitoring: monitoring,
		logger:     logger,
		config:     config,
	}, nil
}

func (c *kubeClient) Clientset() kubernetes.Interface {
	return c.clientset
}

func (c *kubeClient) Ping(_ context.Context) (string, error) {
	version, err := c.clientset.Discovery().ServerVersion()
	if err != nil {
		return "", err
	}
	return version.GitVersion, nil
}

func (c *kubeClient) Get(ctx context.Context, res *Resource) (runtime.Object, error) {
	var obj runtime.Object
	var err error

	switch res.Kind {
	case KindDeployment:
		obj, err = c.clientset.AppsV1().Deployments(res.Namespace).Get(ctx, res.Name, metav1.GetOptions{})
	case KindService:
		obj, err = c.clientset.CoreV1().Services(res.Namespace).Get(ctx, res.Name, metav1.GetOptions{})
	case KindSecret:
		obj, err = c.clientset.CoreV1().Secrets(res.Namespace).Get(ctx, res.Name, metav1.GetOptions{})
	case KindConfigMap:
		obj, err = c.clientset.CoreV1().ConfigMaps(res.Namespace).Get(ctx, res.Name, metav1.GetOptions{})
	case KindNamespace:
		obj, err = c.clientset.CoreV1().Namespaces().Get(ctx, res.Name, metav1.GetOptions{})
	case KindCustomRule:
		if c.monitoring == nil {
			return nil, errMonitoringClientMissing(res)
		}
		obj, err = c.monitoring.MonitoringV1().PrometheusRules(res.Namespace).Get(ctx, res.Name, metav1.GetOptions{})
	default:
		return nil, fmt.Errorf("kind '%s' is not supported", res.Kind)
	}

	if err != nil {
		return nil, err
	}
	return obj, nil
}

func (c *kubeClient) Create(ctx context.Context, obj runtime.Object) error {
	res, err := ResourceOf(obj)
	if err != nil {
		return err
	}

	return c.retry(ctx, "create", res, func() error {
		var err error
		switch o := obj.(type) {
		case *appsv1.Deployment:
			_, err = c.clientset.AppsV1().Deployments(o.Namespace).Create(ctx, o, metav1.CreateOptions{})
		case *corev1.Service:
			_, err = c.clientset.CoreV1().Services(o.Namespace).Create(ctx, o, metav1.CreateOptions{})
		case *corev1.Secret:
			_, err = c.clientset.CoreV1().Secrets(o.Namespace).Create(ctx, o, metav1.CreateOptions{})
		case *corev1.ConfigMap:
			_, err = c.clientset.CoreV1().ConfigMaps(o.Namespace).Create(ctx, o, metav1.CreateOptions{})
		case *corev1.Namespace:
			_, err = c.clientset.CoreV1().Namespaces().Create(ctx, o, metav1.CreateOptions{})
		case *monitoringv1.PrometheusRule:
			_, err = c.monitoring.MonitoringV1().PrometheusRules(o.Namespace).Create(ctx, o, metav1.CreateOptions{})
		}
		return err
	})
}

// Update replaces the stored object with obj, using the resource version of the
// currently stored object.
func (c *kubeClient) Update(ctx context.Context, obj runtime.Object) error {
	res, err := ResourceOf(obj)
	if err != nil {
		return err
	}

	return c.retry(ctx, "update", res, func() error {
		current, err := c.Get(ctx, res)
		if err != nil {
			return err
		}
		accessor, err := metaAccessor(current)
		if err != nil {
			return err
		}

		switch o := obj.(type) {
		case *corev1.Secret:
			o.ResourceVersion = accessor.GetResourceVersion()
			_, err = c.clientset.CoreV1().Secrets(o.Namespace).Update(ctx, o, metav1.UpdateOptions{})
		case *corev1.ConfigMap:
			o.ResourceVersion = accessor.GetResourceVersion()
			_, err = c.clientset.CoreV1().ConfigMaps(o.Namespace).Update(ctx, o, metav1.UpdateOptions{})
		default:
			err = fmt.Errorf("update of %s is not supported: use a patch instead", res)
		}
		return err
	})
}

func (c *kubeClient) Patch(ctx context.Context, res *Resource, patchType types.PatchType, data []byte) error {
	return c.retry(ctx, "patch", res, func() error {
		var err error
		switch res.Kind {
		case KindDeployment:
			_, err = c.clientset.AppsV1().Deployments(res.Namespace).Patch(ctx, res.Name, patchType, data, metav1.PatchOptions{})
		case KindService:
			_, err = c.clientset.CoreV1().Services(res.Namespace).Patch(ctx, res.Name, patchType, data, metav1.PatchOptions{})
		case KindSecret:
			_, err = c.clientset.CoreV1().Secrets(res.Namespace).Patch(ctx, res.Name, patchType, data, metav1.PatchOptions{})
		case KindConfigMap:
			_, err = c.clientset.CoreV1().ConfigMaps(res.Namespace).Patch(ctx, res.Name, patchType, data, metav1.PatchOptions{})
		case KindCustomRule:
			_, err = c.monitoring.MonitoringV1().PrometheusRules(res.Namespace).Patch(ctx, res.Name, patchType, data, metav1.PatchOptions{})
		default:
			err = fmt.Errorf("patching of kind '%s' is not supported", res.Kind)
		}
		return err
	})
}

func (c *kubeClient) Delete(ctx context.Context, res *Resource) error {
	return c.retry(ctx, "delete", res, func() error {
		var err error
		switch res.Kind {
		case KindDeployment:
			err = c.clientset.AppsV1().Deployments(res.Namespace).Delete(ctx, res.Name, metav1.DeleteOptions{})
		case KindService:
			err = c.clientset.CoreV1().Services(res.Namespace).Delete(ctx, res.Name, metav1.DeleteOptions{})
		case KindSecret:
			err = c.clientset.CoreV1().Secrets(res.Namespace).Delete(ctx, res.Name, metav1.DeleteOptions{})
		case KindConfigMap:
			err = c.clientset.CoreV1().ConfigMaps(res.Namespace).Delete(ctx, res.Name, metav1.DeleteOptions{})
		case KindNamespace:
			err = c.clientset.CoreV1().Namespaces().Delete(ctx, res.Name, metav1.DeleteOptions{})
		case KindCustomRule:
			err = c.monitoring.MonitoringV1().PrometheusRules(res.Namespace).Delete(ctx, res.Name, metav1.DeleteOptions{})
		default:
			err = fmt.Errorf("deletion of kind '%s' is not supported", res.Kind)
		}
		return err
	})
}

// Restart triggers a rolling restart of a deployment the same way `kubectl rollout restart` does.
func (c *kubeClient) Restart(ctx context.Context, namespace, deployment string) error {
	data := fmt.Sprintf(`{"spec":{"template":{"metadata":{"annotations":{"%s":"%s"}}}}}`,
		restartedAtAnnotation, time.Now().Format(time.RFC3339))
	err := c.Patch(ctx, &Resource{Kind: KindDeployment, Namespace: namespace, Name: deployment},
		types.StrategicMergePatchType, []byte(data))
	if err != nil {
		return errors.Wrapf(err, "failed to restart deployment '%s' (namespace: %s)", deployment, namespace)
	}
	c.logger.Debugf("Restart of deployment '%s' (namespace: %s) triggered", deployment, namespace)
	return nil
}

func (c *kubeClient) retry(ctx context.Context, operation string, res *Resource, fn func() error) error {
	if res.Kind == KindCustomRule && c.monitoring == nil {
		return errMonitoringClientMissing(res)
	}
	return retry.Do(fn,
		retry.Attempts(uint(c.config.MaxRetries)),
		retry.Delay(c.config.RetryDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.RetryIf(isRetryable),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Debugf("Retrying %s of %s (attempt %d): %s", operation, res, n+1, err)
		}))
}

// isRetryable is false for errors which will not change by simply repeating the request.
func isRetryable(err error) bool {
	return !(k8serr.IsNotFound(err) ||
		k8serr.IsAlreadyExists(err) ||
		k8serr.IsInvalid(err) ||
		k8serr.IsBadRequest(err) ||
		k8serr.IsForbidden(err) ||
		k8serr.IsUnauthorized(err) ||
		k8serr.IsMethodNotSupported(err))
}

func metaAccessor(obj runtime.Object) (metav1.Object, error) {
	accessor, ok := obj.(metav1.Object)
	if !ok {
		return nil, fmt.Errorf("object of type %T has no object metadata", obj)
	}
	return accessor, nil
}

func errMonitoringClientMissing(res *Resource) error {
	return fmt.Errorf("cannot process %s: no monitoring client configured", res)
}
