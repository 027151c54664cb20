package reconciler

import (
	"testing"

	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/util/intstr"
)

func int32Ptr(i int32) *int32 { return &i }

func configMap(data map[string]string) *corev1.ConfigMap {
	return &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Name: "alertmanager-templates", Namespace: "monitoring"},
		Data:       data,
	}
}

func service(port int32) *corev1.Service {
	return &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{Name: "alertmanager", Namespace: "monitoring"},
		Spec: corev1.ServiceSpec{
			Selector: map[string]string{"app": "alertmanager"},
			Ports:    []corev1.ServicePort{{Name: "web", Port: port, TargetPort: intstr.FromString("web")}},
		},
	}
}

func TestDecide(t *testing.T) {
	observedService := service(9093)
	observedService.Spec.ClusterIP = "10.0.0.12"
	observedService.Spec.Type = corev1.ServiceTypeClusterIP
	observedService.Spec.Ports[0].Protocol = corev1.ProtocolTCP
	observedService.ResourceVersion = "42"

	tests := []struct {
		name     string
		desired  runtime.Object
		policy   Policy
		observed *Observation
		expected Action
	}{
		{
			name:     "Absent resource is created",
			desired:  configMap(map[string]string{"a": "b"}),
			policy:   Converge,
			observed: &Observation{Present: false},
			expected: ActionCreate,
		},
		{
			name:     "Missing observation is treated as absent",
			desired:  configMap(nil),
			policy:   PreserveExisting,
			observed: nil,
			expected: ActionCreate,
		},
		{
			name:     "Existing secret is preserved regardless of content",
			desired:  &corev1.Secret{Data: map[string][]byte{"key": []byte("new")}},
			policy:   PreserveExisting,
			observed: &Observation{Present: true, Object: &corev1.Secret{Data: map[string][]byte{"key": []byte("old")}}},
			expected: ActionSkip,
		},
		{
			name:     "Existing deployment is never patched",
			desired:  &appsv1.Deployment{Spec: appsv1.DeploymentSpec{Replicas: int32Ptr(3)}},
			policy:   CreateOnly,
			observed: &Observation{Present: true, Object: &appsv1.Deployment{Spec: appsv1.DeploymentSpec{Replicas: int32Ptr(1)}}},
			expected: ActionSkip,
		},
		{
			name:     "Converged config map is skipped",
			desired:  configMap(map[string]string{"a": "b"}),
			policy:   Converge,
			observed: &Observation{Present: true, Object: configMap(map[string]string{"a": "b"})},
			expected: ActionSkip,
		},
		{
			name:     "Drifted config map is patched",
			desired:  configMap(map[string]string{"a": "b"}),
			policy:   Converge,
			observed: &Observation{Present: true, Object: configMap(map[string]string{"a": "c"})},
			expected: ActionPatch,
		},
		{
			name:     "Nil and empty data are equal",
			desired:  configMap(map[string]string{}),
			policy:   Converge,
			observed: &Observation{Present: true, Object: configMap(nil)},
			expected: ActionSkip,
		},
		{
			name:    "String data is compared as data",
			desired: &corev1.Secret{StringData: map[string]string{"key": "value"}},
			policy:  Converge,
			observed: &Observation{Present: true, Object: &corev1.Secret{
				Data: map[string][]byte{"key": []byte("value")},
			}},
			expected: ActionSkip,
		},
		{
			name:     "Service fields defaulted by the control plane are ignored",
			desired:  service(9093),
			policy:   Converge,
			observed: &Observation{Present: true, Object: observedService},
			expected: ActionSkip,
		},
		{
			name:     "Service with changed port is patched",
			desired:  service(9095),
			policy:   Converge,
			observed: &Observation{Present: true, Object: observedService},
			expected: ActionPatch,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			desc := &ResourceDescriptor{Desired: tc.desired, Policy: tc.policy}
			require.Equal(t, tc.expected, Decide(desc, tc.observed))
		})
	}
}

func TestReport(t *testing.T) {
	report := NewReport()
	report.Add(
		&Result{Status: StatusApplied, Dependents: []*Result{{Status: StatusSkipped}, {Status: StatusFailed}}},
		nil,
		&Result{Status: StatusTimedOut},
	)

	results := report.Results()
	require.Len(t, results, 4)
	require.Equal(t, StatusSkipped, results[0].Status)
	require.Equal(t, StatusFailed, results[1].Status)
	require.Equal(t, StatusApplied, results[2].Status)
	require.Equal(t, StatusTimedOut, results[3].Status)
	require.True(t, report.Failed())
	require.Equal(t, 1, report.Count(StatusTimedOut))
}
