package alerting

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kyma-incubator/alerting-reconciler/pkg/kubernetes"
	"github.com/kyma-incubator/alerting-reconciler/pkg/reconciler"
	"github.com/kyma-incubator/alerting-reconciler/pkg/test"
)

// Requires a cluster with a running metrics backend in namespace 'monitoring'.
func TestInstallerIntegration(t *testing.T) {
	test.IntegrationTest(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	logger := zap.NewExample().Sugar()
	client, err := kubernetes.NewClientBuilder().
		WithFile(test.KubeconfigPath(t)).
		WithLogger(logger).
		Build()
	require.NoError(t, err)

	dir := t.TempDir()
	installer, err := NewInstaller(client, &Config{
		Name:            "alertmanager-it",
		CredentialsFile: filepath.Join(dir, "alertmanager-secrets.env"),
		BackupDir:       filepath.Join(dir, "backups"),
	}, logger)
	require.NoError(t, err)

	defer func() {
		_, err := installer.Uninstall(ctx)
		require.NoError(t, err)
	}()

	report, err := installer.Install(ctx)
	require.NoError(t, err)
	require.False(t, report.Failed())

	//second run must not change anything but the probe
	report, err = installer.Install(ctx)
	require.NoError(t, err)
	for _, result := range report.Results() {
		if result.Resource.Kind != kubernetes.KindCustomRule {
			require.Equal(t, reconciler.ActionSkip, result.Action, "unexpected action for %s", result.Resource)
		}
	}
}
