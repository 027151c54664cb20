package reconciler

import (
	"context"
	"errors"
	"testing"
	"time"

	monitoringv1 "github.com/prometheus-operator/prometheus-operator/pkg/apis/monitoring/v1"
	"github.com/stretchr/testify/require"
	k8serr "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	k8stesting "k8s.io/client-go/testing"

	e "github.com/kyma-incubator/alerting-reconciler/pkg/error"
)

func newProbe(verifier ProbeVerifier) *ValidationProbe {
	return &ValidationProbe{
		Object: &monitoringv1.PrometheusRule{
			ObjectMeta: metav1.ObjectMeta{Name: "alertmanager-validation-1234", Namespace: testNamespace},
		},
		AlertName: "AlertManagerValidationProbe",
		Verifier:  verifier,
	}
}

func requireProbeAbsent(t *testing.T, f *fixture) {
	_, err := f.monitoring.MonitoringV1().PrometheusRules(testNamespace).
		Get(context.Background(), "alertmanager-validation-1234", metav1.GetOptions{})
	require.True(t, k8serr.IsNotFound(err), "probe resource still exists")
}

func TestRunValidationProbe(t *testing.T) {
	ctx := context.Background()

	t.Run("Alert observed", func(t *testing.T) {
		f := newFixture(t)
		calls := 0
		probe := newProbe(verifierFunc(func(ctx context.Context, alertName string) (bool, error) {
			calls++
			requireProbePresent(t, f)
			return calls == 2, nil
		}))

		result := f.reconciler.RunValidationProbe(ctx, probe, time.Millisecond, 5)
		require.Equal(t, StatusApplied, result.Status)
		require.Equal(t, 2, calls)
		requireProbeAbsent(t, f)
	})

	t.Run("Alert not observed within budget", func(t *testing.T) {
		f := newFixture(t)
		calls := 0
		probe := newProbe(verifierFunc(func(ctx context.Context, alertName string) (bool, error) {
			calls++
			return false, nil
		}))

		result := f.reconciler.RunValidationProbe(ctx, probe, time.Millisecond, 3)
		require.Equal(t, StatusTimedOut, result.Status)
		require.NoError(t, result.Error)
		require.Equal(t, 3, calls)
		requireProbeAbsent(t, f)
	})

	t.Run("Polling errors are inconclusive", func(t *testing.T) {
		f := newFixture(t)
		probe := newProbe(verifierFunc(func(ctx context.Context, alertName string) (bool, error) {
			return false, errors.New("connection refused")
		}))

		result := f.reconciler.RunValidationProbe(ctx, probe, time.Millisecond, 3)
		require.Equal(t, StatusTimedOut, result.Status)
		requireProbeAbsent(t, f)
	})

	t.Run("Interrupted probe is cleaned up", func(t *testing.T) {
		f := newFixture(t)
		cancelCtx, cancel := context.WithCancel(ctx)
		probe := newProbe(verifierFunc(func(ctx context.Context, alertName string) (bool, error) {
			cancel()
			return false, nil
		}))

		result := f.reconciler.RunValidationProbe(cancelCtx, probe, time.Millisecond, 10)
		require.Equal(t, StatusFailed, result.Status)
		require.IsType(t, &e.ContextClosedError{}, result.Error)
		requireProbeAbsent(t, f)
	})

	t.Run("Cancellation during last attempt is not a timeout", func(t *testing.T) {
		f := newFixture(t)
		cancelCtx, cancel := context.WithCancel(ctx)
		calls := 0
		probe := newProbe(verifierFunc(func(ctx context.Context, alertName string) (bool, error) {
			calls++
			if calls == 2 {
				cancel()
			}
			return false, nil
		}))

		result := f.reconciler.RunValidationProbe(cancelCtx, probe, time.Millisecond, 2)
		require.Equal(t, 2, calls)
		require.Equal(t, StatusFailed, result.Status)
		require.IsType(t, &e.ContextClosedError{}, result.Error)
		requireProbeAbsent(t, f)
	})

	t.Run("Failed creation", func(t *testing.T) {
		f := newFixture(t)
		f.monitoring.PrependReactor("create", "prometheusrules", func(action k8stesting.Action) (bool, runtime.Object, error) {
			return true, nil, k8serr.NewBadRequest("no matches for kind PrometheusRule")
		})
		probe := newProbe(verifierFunc(func(ctx context.Context, alertName string) (bool, error) {
			t.Fatal("verifier must not be called")
			return false, nil
		}))

		result := f.reconciler.RunValidationProbe(ctx, probe, time.Millisecond, 3)
		require.Equal(t, ActionCreate, result.Action)
		require.Equal(t, StatusFailed, result.Status)
		requireProbeAbsent(t, f)
	})

	t.Run("Failed cleanup is reported", func(t *testing.T) {
		f := newFixture(t)
		f.monitoring.PrependReactor("delete", "prometheusrules", func(action k8stesting.Action) (bool, runtime.Object, error) {
			return true, nil, k8serr.NewForbidden(monitoringv1.SchemeGroupVersion.WithResource("prometheusrules").GroupResource(),
				"alertmanager-validation-1234", nil)
		})
		probe := newProbe(verifierFunc(func(ctx context.Context, alertName string) (bool, error) {
			return true, nil
		}))

		result := f.reconciler.RunValidationProbe(ctx, probe, time.Millisecond, 3)
		require.Equal(t, StatusApplied, result.Status)
		require.Error(t, result.Error)
		require.Contains(t, result.Message, "cleanup failed")
	})
}

func requireProbePresent(t *testing.T, f *fixture) {
	_, err := f.monitoring.MonitoringV1().PrometheusRules(testNamespace).
		Get(context.Background(), "alertmanager-validation-1234", metav1.GetOptions{})
	require.NoError(t, err)
}
