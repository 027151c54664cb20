package kubernetes

import (
	"fmt"
	"os"

	file "github.com/kyma-incubator/alerting-reconciler/pkg/files"
	"github.com/pkg/errors"
	monitoringclient "github.com/prometheus-operator/prometheus-operator/pkg/client/versioned"
	"go.uber.org/zap"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

const EnvVarKubeconfig = "KUBECONFIG"

type ClientBuilder struct {
	kubeconfig []byte
	logger     *zap.SugaredLogger
	config     *Config
	err        error
}

func NewClientBuilder() *ClientBuilder {
	return &ClientBuilder{
		logger: zap.NewNop().Sugar(),
	}
}

func (cb *ClientBuilder) WithFile(filePath string) *ClientBuilder {
	if filePath == "" {
		return cb
	}
	cb.kubeconfig, cb.err = cb.loadFile(filePath)
	return cb
}

func (cb *ClientBuilder) WithString(kubeconfig string) *ClientBuilder {
	cb.kubeconfig = []byte(kubeconfig)
	return cb
}

func (cb *ClientBuilder) WithLogger(logger *zap.SugaredLogger) *ClientBuilder {
	cb.logger = logger
	return cb
}

func (cb *ClientBuilder) WithConfig(config *Config) *ClientBuilder {
	cb.config = config
	return cb
}

// Build creates the control-plane client. Without an explicit kubeconfig, the file referenced by
// KUBECONFIG, the default kubeconfig location or the in-cluster configuration is used.
func (cb *ClientBuilder) Build() (Client, error) {
	if cb.err != nil {
		return nil, cb.err
	}

	restConfig, err := cb.restConfig()
	if err != nil {
		return nil, err
	}

	clientSet, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Kubernetes clientset by using provided REST-configuration")
	}
	monitoringClientSet, err := monitoringclient.NewForConfig(restConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create monitoring clientset by using provided REST-configuration")
	}

	return NewClient(clientSet, monitoringClientSet, cb.logger, cb.config)
}

func (cb *ClientBuilder) restConfig() (*rest.Config, error) {
	if len(cb.kubeconfig) > 0 {
		config, err := clientcmd.RESTConfigFromKubeConfig(cb.kubeconfig)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create Kubernetes client configuration using provided kubeconfig")
		}
		return config, nil
	}

	if kubeconfigPath := os.Getenv(EnvVarKubeconfig); kubeconfigPath != "" {
		cb.logger.Debugf("Using kubeconfig '%s' referenced by env-var %s", kubeconfigPath, EnvVarKubeconfig)
	}
	config, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
		clientcmd.NewDefaultClientConfigLoadingRules(), &clientcmd.ConfigOverrides{}).ClientConfig()
	if err != nil {
		return nil, errors.Wrap(err, "kubeconfig undefined: please provide it as file or set env-var "+EnvVarKubeconfig)
	}
	return config, nil
}

func (cb *ClientBuilder) loadFile(filePath string) ([]byte, error) {
	if !file.Exists(filePath) {
		return nil, fmt.Errorf("kubeconfig file not found at path '%s'", filePath)
	}
	return os.ReadFile(filePath)
}
