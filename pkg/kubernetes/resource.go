package kubernetes

import (
	"fmt"

	monitoringv1 "github.com/prometheus-operator/prometheus-operator/pkg/apis/monitoring/v1"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"
)

type Kind string

const (
	KindDeployment Kind = "Deployment"
	KindService    Kind = "Service"
	KindSecret     Kind = "Secret"
	KindConfigMap  Kind = "ConfigMap"
	KindCustomRule Kind = "CustomRule"
	KindNamespace  Kind = "Namespace"
)

type Resource struct {
	Kind      Kind
	Name      string
	Namespace string
}

func (r *Resource) String() string {
	return fmt.Sprintf("%s [namespace:%s|name:%s]", r.Kind, r.Namespace, r.Name)
}

// ResourceOf derives the identifying tuple of a typed object.
func ResourceOf(obj runtime.Object) (*Resource, error) {
	switch o := obj.(type) {
	case *appsv1.Deployment:
		return &Resource{Kind: KindDeployment, Namespace: o.Namespace, Name: o.Name}, nil
	case *corev1.Service:
		return &Resource{Kind: KindService, Namespace: o.Namespace, Name: o.Name}, nil
	case *corev1.Secret:
		return &Resource{Kind: KindSecret, Namespace: o.Namespace, Name: o.Name}, nil
	case *corev1.ConfigMap:
		return &Resource{Kind: KindConfigMap, Namespace: o.Namespace, Name: o.Name}, nil
	case *monitoringv1.PrometheusRule:
		return &Resource{Kind: KindCustomRule, Namespace: o.Namespace, Name: o.Name}, nil
	case *corev1.Namespace:
		return &Resource{Kind: KindNamespace, Name: o.Name}, nil
	default:
		return nil, fmt.Errorf("object of type %T is not supported", obj)
	}
}
