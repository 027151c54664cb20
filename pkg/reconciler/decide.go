package reconciler

import (
	monitoringv1 "github.com/prometheus-operator/prometheus-operator/pkg/apis/monitoring/v1"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/equality"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/util/intstr"
)

// Decide maps the desired state and the observed state of a resource to an action.
// It performs no I/O.
func Decide(desc *ResourceDescriptor, observation *Observation) Action {
	if observation == nil || !observation.Present {
		return ActionCreate
	}
	switch desc.Policy {
	case PreserveExisting, CreateOnly:
		return ActionSkip
	}
	if equality.Semantic.DeepEqual(comparableSpec(desc.Desired), comparableSpec(observation.Object)) {
		return ActionSkip
	}
	return ActionPatch
}

type servicePort struct {
	Name       string
	Protocol   corev1.Protocol
	Port       int32
	TargetPort intstr.IntOrString
}

type serviceSpec struct {
	Type     corev1.ServiceType
	Ports    []servicePort
	Selector map[string]string
}

type deploymentSpec struct {
	Replicas int32
	Template corev1.PodTemplateSpec
}

// comparableSpec projects an object onto the fields the reconciler owns.
// Fields defaulted or maintained by the control plane are left out.
func comparableSpec(obj runtime.Object) interface{} {
	switch o := obj.(type) {
	case *corev1.ConfigMap:
		return []interface{}{o.Data, o.BinaryData}
	case *corev1.Secret:
		data := map[string][]byte{}
		for key, value := range o.Data {
			data[key] = value
		}
		for key, value := range o.StringData {
			data[key] = []byte(value)
		}
		return data
	case *corev1.Service:
		spec := serviceSpec{
			Type:     o.Spec.Type,
			Selector: o.Spec.Selector,
		}
		if spec.Type == "" {
			spec.Type = corev1.ServiceTypeClusterIP
		}
		for _, port := range o.Spec.Ports {
			p := servicePort{
				Name:       port.Name,
				Protocol:   port.Protocol,
				Port:       port.Port,
				TargetPort: port.TargetPort,
			}
			if p.Protocol == "" {
				p.Protocol = corev1.ProtocolTCP
			}
			spec.Ports = append(spec.Ports, p)
		}
		return spec
	case *appsv1.Deployment:
		spec := deploymentSpec{
			Replicas: 1,
			Template: o.Spec.Template,
		}
		if o.Spec.Replicas != nil {
			spec.Replicas = *o.Spec.Replicas
		}
		return spec
	case *monitoringv1.PrometheusRule:
		return o.Spec
	case *corev1.Namespace:
		return nil
	default:
		return obj
	}
}
