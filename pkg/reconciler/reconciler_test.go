package reconciler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	k8serr "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	k8stesting "k8s.io/client-go/testing"

	e "github.com/kyma-incubator/alerting-reconciler/pkg/error"
)

var upstream = Upstream{
	Namespace:  testNamespace,
	Deployment: "prometheus-server",
	ConfigMap:  "prometheus-server",
	DataKey:    "prometheus.yml",
}

func upstreamDeployment() *appsv1.Deployment {
	return &appsv1.Deployment{ObjectMeta: metav1.ObjectMeta{Name: "prometheus-server", Namespace: testNamespace}}
}

func TestEnsurePrerequisites(t *testing.T) {
	ctx := context.Background()

	t.Run("Unreachable control plane is fatal and nothing is written", func(t *testing.T) {
		f := newFixture(t, upstreamDeployment())
		f.clientset.PrependReactor("get", "version", func(action k8stesting.Action) (bool, runtime.Object, error) {
			return true, nil, errors.New("dial tcp 127.0.0.1:6443: connect: connection refused")
		})

		err := f.reconciler.EnsurePrerequisites(ctx, upstream)
		require.Error(t, err)
		require.IsType(t, &e.FatalError{}, err)
		require.Empty(t, f.writeActions())
	})

	t.Run("Missing upstream deployment is fatal and nothing is written", func(t *testing.T) {
		f := newFixture(t)

		err := f.reconciler.EnsurePrerequisites(ctx, upstream)
		require.Error(t, err)
		require.IsType(t, &e.FatalError{}, err)
		require.Contains(t, err.Error(), "prometheus-server")
		require.Empty(t, f.writeActions())
	})

	t.Run("Prerequisites fulfilled", func(t *testing.T) {
		f := newFixture(t, upstreamDeployment())
		require.NoError(t, f.reconciler.EnsurePrerequisites(ctx, upstream))
		require.Empty(t, f.writeActions())
	})
}

func TestEnsureNamespace(t *testing.T) {
	f := newFixture(t)

	result := f.reconciler.EnsureNamespace(context.Background(), testNamespace)
	require.Equal(t, ActionCreate, result.Action)
	require.Equal(t, StatusApplied, result.Status)

	result = f.reconciler.EnsureNamespace(context.Background(), testNamespace)
	require.Equal(t, ActionSkip, result.Action)
	require.Equal(t, StatusSkipped, result.Status)
}

func TestEnsureSecret(t *testing.T) {
	ctx := context.Background()
	values := map[string]string{"smtp-password": "CHANGE_ME"}

	getSecret := func(t *testing.T, f *fixture) *corev1.Secret {
		secret, err := f.clientset.CoreV1().Secrets(testNamespace).Get(ctx, "alertmanager-credentials", metav1.GetOptions{})
		require.NoError(t, err)
		return secret
	}

	t.Run("Absent secret is created", func(t *testing.T) {
		f := newFixture(t)

		result := f.reconciler.EnsureSecret(ctx, "alertmanager-credentials", testNamespace, values, true)
		require.Equal(t, ActionCreate, result.Action)
		require.Equal(t, StatusApplied, result.Status)
		require.Equal(t, "CHANGE_ME", string(getSecret(t, f).Data["smtp-password"]))
	})

	t.Run("Existing secret is preserved", func(t *testing.T) {
		f := newFixture(t, &corev1.Secret{
			ObjectMeta: metav1.ObjectMeta{Name: "alertmanager-credentials", Namespace: testNamespace},
			Data:       map[string][]byte{"smtp-password": []byte("operator-edited")},
		})

		result := f.reconciler.EnsureSecret(ctx, "alertmanager-credentials", testNamespace, values, true)
		require.Equal(t, ActionSkip, result.Action)
		require.Equal(t, StatusSkipped, result.Status)
		require.Equal(t, "operator-edited", string(getSecret(t, f).Data["smtp-password"]))
		require.Empty(t, f.writeActions())
	})

	t.Run("Replace overwrites an existing secret", func(t *testing.T) {
		f := newFixture(t, &corev1.Secret{
			ObjectMeta: metav1.ObjectMeta{Name: "alertmanager-credentials", Namespace: testNamespace},
			Data:       map[string][]byte{"smtp-password": []byte("CHANGE_ME")},
		})

		result := f.reconciler.ReplaceSecret(ctx, "alertmanager-credentials", testNamespace,
			map[string]string{"smtp-password": "real"})
		require.Equal(t, ActionPatch, result.Action)
		require.Equal(t, StatusApplied, result.Status)
		require.Equal(t, "real", string(getSecret(t, f).Data["smtp-password"]))

		result = f.reconciler.ReplaceSecret(ctx, "alertmanager-credentials", testNamespace,
			map[string]string{"smtp-password": "real"})
		require.Equal(t, ActionSkip, result.Action)
	})

	t.Run("Failed create is reported", func(t *testing.T) {
		f := newFixture(t)
		f.clientset.PrependReactor("create", "secrets", func(action k8stesting.Action) (bool, runtime.Object, error) {
			return true, nil, k8serr.NewForbidden(corev1.Resource("secrets"), "alertmanager-credentials", nil)
		})

		result := f.reconciler.EnsureSecret(ctx, "alertmanager-credentials", testNamespace, values, true)
		require.Equal(t, StatusFailed, result.Status)
		require.Error(t, result.Error)
		require.Contains(t, result.Error.Error(), "namespace:monitoring|name:alertmanager-credentials")
	})
}

func deploymentDescriptor(t *testing.T, templates map[string]string, replicas int32) *ResourceDescriptor {
	cm, err := NewDescriptor(&corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Name: "alertmanager-templates", Namespace: testNamespace},
		Data:       templates,
	}, Converge)
	require.NoError(t, err)

	svc, err := NewDescriptor(service(9093), Converge)
	require.NoError(t, err)

	desc, err := NewDescriptor(&appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "alertmanager", Namespace: testNamespace},
		Spec: appsv1.DeploymentSpec{
			Replicas: int32Ptr(replicas),
			Template: corev1.PodTemplateSpec{
				Spec: corev1.PodSpec{Containers: []corev1.Container{{Name: "alertmanager", Image: "alertmanager:v1"}}},
			},
		},
	}, CreateOnly, cm, svc)
	require.NoError(t, err)
	return desc
}

func TestEnsureDeployment(t *testing.T) {
	ctx := context.Background()

	getDeployment := func(t *testing.T, f *fixture) *appsv1.Deployment {
		deployment, err := f.clientset.AppsV1().Deployments(testNamespace).Get(ctx, "alertmanager", metav1.GetOptions{})
		require.NoError(t, err)
		return deployment
	}

	t.Run("Fresh install creates configuration and deployment", func(t *testing.T) {
		f := newFixture(t)

		result := f.reconciler.EnsureDeployment(ctx, deploymentDescriptor(t, map[string]string{"a.tmpl": "v1"}, 1), 2, 0)
		require.Equal(t, ActionCreate, result.Action)
		require.Equal(t, StatusApplied, result.Status)
		require.Len(t, result.Dependents, 2)
		for _, dependent := range result.Dependents {
			require.Equal(t, ActionCreate, dependent.Action)
		}
		require.Equal(t, int32(2), *getDeployment(t, f).Spec.Replicas)
	})

	t.Run("Descriptor is left untouched", func(t *testing.T) {
		f := newFixture(t)
		desc := deploymentDescriptor(t, nil, 1)

		result := f.reconciler.EnsureDeployment(ctx, desc, 3, 0)
		require.Equal(t, StatusApplied, result.Status)
		require.Equal(t, int32(1), *desc.Desired.(*appsv1.Deployment).Spec.Replicas)
		require.Equal(t, int32(3), *getDeployment(t, f).Spec.Replicas)
	})

	t.Run("Second run is idempotent", func(t *testing.T) {
		f := newFixture(t)
		f.reconciler.EnsureDeployment(ctx, deploymentDescriptor(t, map[string]string{"a.tmpl": "v1"}, 2), 2, 0)
		writes := len(f.writeActions())

		result := f.reconciler.EnsureDeployment(ctx, deploymentDescriptor(t, map[string]string{"a.tmpl": "v1"}, 2), 2, 0)
		require.Equal(t, ActionSkip, result.Action)
		for _, dependent := range result.Dependents {
			require.Equal(t, ActionSkip, dependent.Action)
		}
		require.Len(t, f.writeActions(), writes)
	})

	t.Run("Existing deployment: configuration is re-applied but deployment is not patched", func(t *testing.T) {
		f := newFixture(t)
		f.reconciler.EnsureDeployment(ctx, deploymentDescriptor(t, map[string]string{"a.tmpl": "v1"}, 2), 2, 0)

		result := f.reconciler.EnsureDeployment(ctx, deploymentDescriptor(t, map[string]string{"a.tmpl": "v2"}, 3), 3, 0)
		require.Equal(t, ActionSkip, result.Action)
		require.Equal(t, ActionPatch, result.Dependents[0].Action)
		require.Equal(t, StatusApplied, result.Dependents[0].Status)
		require.Equal(t, ActionSkip, result.Dependents[1].Action)

		cm, err := f.clientset.CoreV1().ConfigMaps(testNamespace).Get(ctx, "alertmanager-templates", metav1.GetOptions{})
		require.NoError(t, err)
		require.Equal(t, "v2", cm.Data["a.tmpl"])
		require.Equal(t, int32(2), *getDeployment(t, f).Spec.Replicas)
	})

	t.Run("Readiness timeout is not fatal", func(t *testing.T) {
		f := newFixture(t)

		result := f.reconciler.EnsureDeployment(ctx, deploymentDescriptor(t, nil, 2), 2, 50*time.Millisecond)
		require.Equal(t, ActionCreate, result.Action)
		require.Equal(t, StatusTimedOut, result.Status)
		require.NoError(t, result.Error)
	})

	t.Run("Ready deployment", func(t *testing.T) {
		ready := &appsv1.Deployment{
			ObjectMeta: metav1.ObjectMeta{Name: "alertmanager", Namespace: testNamespace},
			Spec:       appsv1.DeploymentSpec{Replicas: int32Ptr(2)},
			Status: appsv1.DeploymentStatus{
				AvailableReplicas: 2,
				Conditions: []appsv1.DeploymentCondition{
					{Type: appsv1.DeploymentAvailable, Status: corev1.ConditionTrue},
				},
			},
		}
		f := newFixture(t, ready)

		result := f.reconciler.EnsureDeployment(ctx, deploymentDescriptor(t, nil, 2), 2, time.Second)
		require.Equal(t, ActionSkip, result.Action)
		require.Equal(t, StatusSkipped, result.Status)
	})

	t.Run("Failing dependency does not stop the deployment", func(t *testing.T) {
		f := newFixture(t)
		f.clientset.PrependReactor("create", "configmaps", func(action k8stesting.Action) (bool, runtime.Object, error) {
			return true, nil, k8serr.NewBadRequest("invalid config map")
		})

		result := f.reconciler.EnsureDeployment(ctx, deploymentDescriptor(t, nil, 2), 2, 0)
		require.Equal(t, StatusFailed, result.Dependents[0].Status)
		require.Equal(t, StatusApplied, result.Status)
	})
}

func TestRestart(t *testing.T) {
	f := newFixture(t, upstreamDeployment())

	result := f.reconciler.Restart(context.Background(), testNamespace, "prometheus-server")
	require.Equal(t, StatusApplied, result.Status)

	result = f.reconciler.Restart(context.Background(), testNamespace, "missing")
	require.Equal(t, StatusFailed, result.Status)
}
