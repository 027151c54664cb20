package alertmanager

import (
	"testing"

	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
)

func TestManifests(t *testing.T) {
	m := &Manifests{
		Name:      "alertmanager",
		Namespace: "monitoring",
		Image:     "quay.io/prometheus/alertmanager:v0.26.0",
		Replicas:  2,
	}

	t.Run("Deployment", func(t *testing.T) {
		deployment := m.Deployment()
		require.Equal(t, "alertmanager", deployment.Name)
		require.Equal(t, "monitoring", deployment.Namespace)
		require.Equal(t, int32(2), *deployment.Spec.Replicas)
		require.Equal(t, deployment.Spec.Selector.MatchLabels[nameLabel], deployment.Spec.Template.Labels[nameLabel])

		container := deployment.Spec.Template.Spec.Containers[0]
		require.Equal(t, m.Image, container.Image)
		require.Contains(t, container.Args, "--config.file=/etc/alertmanager/alertmanager.yml")
		require.Contains(t, container.Args, "--cluster.peer=alertmanager-cluster.monitoring.svc:9094")
		require.Equal(t, "100m", container.Resources.Requests.Cpu().String())
		require.Equal(t, "512Mi", container.Resources.Limits.Memory().String())
		require.Equal(t, "/-/ready", container.ReadinessProbe.HTTPGet.Path)
		require.Equal(t, "/-/healthy", container.LivenessProbe.HTTPGet.Path)

		volumes := map[string]corev1.Volume{}
		for _, volume := range deployment.Spec.Template.Spec.Volumes {
			volumes[volume.Name] = volume
		}
		require.Equal(t, m.ConfigSecretName(), volumes["config"].Secret.SecretName)
		require.Equal(t, m.TemplatesConfigMapName(), volumes["templates"].ConfigMap.Name)
		require.NotNil(t, volumes["storage"].EmptyDir)
		require.Len(t, container.VolumeMounts, 3)
	})

	t.Run("Services", func(t *testing.T) {
		svc := m.Service()
		require.Equal(t, "alertmanager", svc.Name)
		require.Equal(t, WebPort, svc.Spec.Ports[0].Port)

		cluster := m.ClusterService()
		require.Equal(t, "alertmanager-cluster", cluster.Name)
		require.Equal(t, corev1.ClusterIPNone, cluster.Spec.ClusterIP)
		require.Equal(t, ClusterPort, cluster.Spec.Ports[0].Port)
	})

	t.Run("Secrets and templates", func(t *testing.T) {
		secret := m.NotificationSecret(map[string]string{"smtp-password": "s3cr3t"})
		require.Equal(t, "alertmanager-credentials", secret.Name)
		require.Equal(t, []byte("s3cr3t"), secret.Data["smtp-password"])

		config := m.ConfigSecret([]byte("route: {}"))
		require.Equal(t, "alertmanager-config", config.Name)
		require.Equal(t, []byte("route: {}"), config.Data[ConfigFileName])

		templates := m.TemplatesConfigMap()
		require.Contains(t, templates.Data["default.tmpl"], `define "alerting.title"`)
	})

	require.Equal(t, "alertmanager.monitoring.svc:9093", m.Address())
	require.Equal(t, "http://alertmanager.monitoring.svc:9093", m.URL())
}
