package reconciler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	monitoringfake "github.com/prometheus-operator/prometheus-operator/pkg/client/versioned/fake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"

	"github.com/kyma-incubator/alerting-reconciler/pkg/backup"
	"github.com/kyma-incubator/alerting-reconciler/pkg/kubernetes"
)

const testNamespace = "monitoring"

type fixture struct {
	reconciler *Reconciler
	client     kubernetes.Client
	clientset  *fake.Clientset
	monitoring *monitoringfake.Clientset
	backups    *backup.Store
}

func newFixture(t *testing.T, objects ...runtime.Object) *fixture {
	clientset := fake.NewSimpleClientset(objects...)
	monitoring := monitoringfake.NewSimpleClientset()
	logger := zap.NewNop().Sugar()

	client, err := kubernetes.NewClient(clientset, monitoring, logger, &kubernetes.Config{
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
	})
	require.NoError(t, err)

	backups := backup.NewStore(filepath.Join(t.TempDir(), "backups"))
	r := NewReconciler(client, backups, logger)
	r.readyInterval = 10 * time.Millisecond
	r.cleanupTimeout = time.Second

	return &fixture{
		reconciler: r,
		client:     client,
		clientset:  clientset,
		monitoring: monitoring,
		backups:    backups,
	}
}

// writeActions returns all mutating calls recorded by the fake clientsets.
func (f *fixture) writeActions() []k8stesting.Action {
	var writes []k8stesting.Action
	actions := append(f.clientset.Actions(), f.monitoring.Actions()...)
	for _, action := range actions {
		switch action.GetVerb() {
		case "create", "update", "patch", "delete":
			writes = append(writes, action)
		}
	}
	return writes
}

type verifierFunc func(ctx context.Context, alertName string) (bool, error)

func (f verifierFunc) Observed(ctx context.Context, alertName string) (bool, error) {
	return f(ctx, alertName)
}
