package test

import (
	"os"
	"testing"

	file "github.com/kyma-incubator/alerting-reconciler/pkg/files"
	"github.com/stretchr/testify/require"
)

// KubeconfigPath returns the kubeconfig referenced by the KUBECONFIG env-var and fails the test if it is missing.
func KubeconfigPath(t *testing.T) string {
	kubeconfig := os.Getenv("KUBECONFIG")
	if !file.Exists(kubeconfig) {
		require.Fail(t, "Please set env-var KUBECONFIG before executing this test case")
	}
	return kubeconfig
}
