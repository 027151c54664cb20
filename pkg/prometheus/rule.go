package prometheus

import (
	"github.com/google/uuid"
	monitoringv1 "github.com/prometheus-operator/prometheus-operator/pkg/apis/monitoring/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"

	"github.com/kyma-incubator/alerting-reconciler/pkg/alertmanager"
)

const probeRulePrefix = "alertmanager-validation-"

// ProbeRule returns a rule with an always-firing alert. Every call returns a uniquely named rule.
func ProbeRule(namespace string) *monitoringv1.PrometheusRule {
	return &monitoringv1.PrometheusRule{
		TypeMeta: metav1.TypeMeta{
			APIVersion: monitoringv1.SchemeGroupVersion.String(),
			Kind:       monitoringv1.PrometheusRuleKind,
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:      probeRulePrefix + uuid.New().String(),
			Namespace: namespace,
			Labels: map[string]string{
				"app.kubernetes.io/managed-by": "alerting-reconciler",
				"role":                         "alert-rules",
			},
		},
		Spec: monitoringv1.PrometheusRuleSpec{
			Groups: []monitoringv1.RuleGroup{
				{
					Name: "alertmanager-validation",
					Rules: []monitoringv1.Rule{
						{
							Alert: alertmanager.ProbeAlertName,
							Expr:  intstr.FromString("vector(1)"),
							Labels: map[string]string{
								"severity": "none",
							},
							Annotations: map[string]string{
								"summary": "Synthetic alert to validate the alerting pipeline",
							},
						},
					},
				},
			},
		},
	}
}
