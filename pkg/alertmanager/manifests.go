package alertmanager

import (
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
)

const (
	WebPort     int32 = 9093
	ClusterPort int32 = 9094

	ConfigFileName = "alertmanager.yml"

	configMountPath    = "/etc/alertmanager"
	templatesMountPath = "/etc/alertmanager/templates"
	storageMountPath   = "/alertmanager"

	managedByLabel = "app.kubernetes.io/managed-by"
	managedByValue = "alerting-reconciler"
	nameLabel      = "app.kubernetes.io/name"
)

const defaultTemplate = `{{ define "alerting.title" }}[{{ .Status | toUpper }}{{ if eq .Status "firing" }}:{{ .Alerts.Firing | len }}{{ end }}] {{ .CommonLabels.alertname }}{{ end }}

{{ define "alerting.text" }}{{ range .Alerts }}
*Alert:* {{ .Labels.alertname }} ({{ .Labels.severity }})
*Namespace:* {{ .Labels.namespace }}
*Summary:* {{ .Annotations.summary }}
*Description:* {{ .Annotations.description }}
{{ end }}{{ end }}
`

// Manifests builds the typed cluster objects of an AlertManager installation.
type Manifests struct {
	Name      string
	Namespace string
	Image     string
	Replicas  int32
}

func (m *Manifests) NotificationSecretName() string { return m.Name + "-credentials" }
func (m *Manifests) ConfigSecretName() string       { return m.Name + "-config" }
func (m *Manifests) TemplatesConfigMapName() string { return m.Name + "-templates" }
func (m *Manifests) ServiceName() string            { return m.Name }
func (m *Manifests) ClusterServiceName() string     { return m.Name + "-cluster" }

// Address is the in-cluster host:port of the AlertManager web service.
func (m *Manifests) Address() string {
	return fmt.Sprintf("%s.%s.svc:%d", m.ServiceName(), m.Namespace, WebPort)
}

func (m *Manifests) URL() string {
	return "http://" + m.Address()
}

func (m *Manifests) labels() map[string]string {
	return map[string]string{
		nameLabel:      m.Name,
		managedByLabel: managedByValue,
	}
}

func (m *Manifests) selector() map[string]string {
	return map[string]string{nameLabel: m.Name}
}

func (m *Manifests) objectMeta(name string) metav1.ObjectMeta {
	return metav1.ObjectMeta{
		Name:      name,
		Namespace: m.Namespace,
		Labels:    m.labels(),
	}
}

func (m *Manifests) NotificationSecret(data map[string]string) *corev1.Secret {
	return &corev1.Secret{
		ObjectMeta: m.objectMeta(m.NotificationSecretName()),
		Type:       corev1.SecretTypeOpaque,
		Data:       toBinary(data),
	}
}

func (m *Manifests) ConfigSecret(config []byte) *corev1.Secret {
	return &corev1.Secret{
		ObjectMeta: m.objectMeta(m.ConfigSecretName()),
		Type:       corev1.SecretTypeOpaque,
		Data:       map[string][]byte{ConfigFileName: config},
	}
}

func (m *Manifests) TemplatesConfigMap() *corev1.ConfigMap {
	return &corev1.ConfigMap{
		ObjectMeta: m.objectMeta(m.TemplatesConfigMapName()),
		Data:       map[string]string{"default.tmpl": defaultTemplate},
	}
}

func (m *Manifests) Service() *corev1.Service {
	return &corev1.Service{
		ObjectMeta: m.objectMeta(m.ServiceName()),
		Spec: corev1.ServiceSpec{
			Type:     corev1.ServiceTypeClusterIP,
			Selector: m.selector(),
			Ports: []corev1.ServicePort{
				{
					Name:       "web",
					Protocol:   corev1.ProtocolTCP,
					Port:       WebPort,
					TargetPort: intstr.FromString("web"),
				},
			},
		},
	}
}

// ClusterService is the headless service the replicas use to find their gossip peers.
func (m *Manifests) ClusterService() *corev1.Service {
	return &corev1.Service{
		ObjectMeta: m.objectMeta(m.ClusterServiceName()),
		Spec: corev1.ServiceSpec{
			Type:                     corev1.ServiceTypeClusterIP,
			ClusterIP:                corev1.ClusterIPNone,
			PublishNotReadyAddresses: true,
			Selector:                 m.selector(),
			Ports: []corev1.ServicePort{
				{
					Name:       "cluster-tcp",
					Protocol:   corev1.ProtocolTCP,
					Port:       ClusterPort,
					TargetPort: intstr.FromString("cluster-tcp"),
				},
				{
					Name:       "cluster-udp",
					Protocol:   corev1.ProtocolUDP,
					Port:       ClusterPort,
					TargetPort: intstr.FromString("cluster-udp"),
				},
			},
		},
	}
}

func (m *Manifests) Deployment() *appsv1.Deployment {
	replicas := m.Replicas
	return &appsv1.Deployment{
		ObjectMeta: m.objectMeta(m.Name),
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{MatchLabels: m.selector()},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: m.labels()},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{m.container()},
					Volumes: []corev1.Volume{
						{
							Name: "config",
							VolumeSource: corev1.VolumeSource{
								Secret: &corev1.SecretVolumeSource{SecretName: m.ConfigSecretName()},
							},
						},
						{
							Name: "templates",
							VolumeSource: corev1.VolumeSource{
								ConfigMap: &corev1.ConfigMapVolumeSource{
									LocalObjectReference: corev1.LocalObjectReference{Name: m.TemplatesConfigMapName()},
								},
							},
						},
						{
							Name:         "storage",
							VolumeSource: corev1.VolumeSource{EmptyDir: &corev1.EmptyDirVolumeSource{}},
						},
					},
				},
			},
		},
	}
}

func (m *Manifests) container() corev1.Container {
	return corev1.Container{
		Name:  "alertmanager",
		Image: m.Image,
		Args: []string{
			"--config.file=" + configMountPath + "/" + ConfigFileName,
			"--storage.path=" + storageMountPath,
			fmt.Sprintf("--web.listen-address=:%d", WebPort),
			fmt.Sprintf("--cluster.listen-address=0.0.0.0:%d", ClusterPort),
			fmt.Sprintf("--cluster.advertise-address=$(POD_IP):%d", ClusterPort),
			fmt.Sprintf("--cluster.peer=%s.%s.svc:%d", m.ClusterServiceName(), m.Namespace, ClusterPort),
		},
		Env: []corev1.EnvVar{
			{
				Name: "POD_IP",
				ValueFrom: &corev1.EnvVarSource{
					FieldRef: &corev1.ObjectFieldSelector{APIVersion: "v1", FieldPath: "status.podIP"},
				},
			},
		},
		Ports: []corev1.ContainerPort{
			{Name: "web", ContainerPort: WebPort, Protocol: corev1.ProtocolTCP},
			{Name: "cluster-tcp", ContainerPort: ClusterPort, Protocol: corev1.ProtocolTCP},
			{Name: "cluster-udp", ContainerPort: ClusterPort, Protocol: corev1.ProtocolUDP},
		},
		Resources: corev1.ResourceRequirements{
			Requests: corev1.ResourceList{
				corev1.ResourceCPU:    resource.MustParse("100m"),
				corev1.ResourceMemory: resource.MustParse("128Mi"),
			},
			Limits: corev1.ResourceList{
				corev1.ResourceCPU:    resource.MustParse("500m"),
				corev1.ResourceMemory: resource.MustParse("512Mi"),
			},
		},
		ReadinessProbe: httpProbe("/-/ready", 5),
		LivenessProbe:  httpProbe("/-/healthy", 30),
		VolumeMounts: []corev1.VolumeMount{
			{Name: "config", MountPath: configMountPath, ReadOnly: true},
			{Name: "templates", MountPath: templatesMountPath, ReadOnly: true},
			{Name: "storage", MountPath: storageMountPath},
		},
	}
}

func httpProbe(path string, initialDelay int32) *corev1.Probe {
	return &corev1.Probe{
		ProbeHandler: corev1.ProbeHandler{
			HTTPGet: &corev1.HTTPGetAction{Path: path, Port: intstr.FromString("web")},
		},
		InitialDelaySeconds: initialDelay,
		PeriodSeconds:       10,
		TimeoutSeconds:      3,
		FailureThreshold:    3,
	}
}

func toBinary(data map[string]string) map[string][]byte {
	result := make(map[string][]byte, len(data))
	for key, value := range data {
		result[key] = []byte(value)
	}
	return result
}
