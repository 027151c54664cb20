package reconciler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	corev1 "k8s.io/api/core/v1"
	k8serr "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/types"

	"github.com/kyma-incubator/alerting-reconciler/pkg/kubernetes"
	"github.com/kyma-incubator/alerting-reconciler/pkg/prometheus"
)

// EnsureUpstreamWiring merges patchFragment into the configuration document stored in the
// upstream ConfigMap and restarts the upstream workload. A missing ConfigMap is skipped:
// the upstream system is not owned by this tool and has to be configured manually then.
func (r *Reconciler) EnsureUpstreamWiring(ctx context.Context, upstream Upstream, patchFragment map[string]interface{}) *Result {
	res := &kubernetes.Resource{Kind: kubernetes.KindConfigMap, Namespace: upstream.Namespace, Name: upstream.ConfigMap}
	result := &Result{Resource: res}

	obj, err := r.client.Get(ctx, res)
	if err != nil {
		if k8serr.IsNotFound(err) {
			return r.skipped(result, fmt.Sprintf("%s not found: configure the alerting targets manually", res))
		}
		return r.failed(result, errors.Wrapf(err, "failed to read %s", res))
	}
	configMap, ok := obj.(*corev1.ConfigMap)
	if !ok {
		return r.failed(result, fmt.Errorf("%s has unexpected type %T", res, obj))
	}

	current, ok := configMap.Data[upstream.DataKey]
	if !ok {
		return r.skipped(result, fmt.Sprintf("%s has no data key '%s': configure the alerting targets manually",
			res, upstream.DataKey))
	}

	merged, changed, err := prometheus.MergeConfig(current, patchFragment)
	if err != nil {
		return r.failed(result, errors.Wrapf(err, "failed to merge alerting configuration into %s", res))
	}
	if !changed {
		result.Action = ActionSkip
		result.Status = StatusSkipped
		result.Message = "alerting targets already configured"
		r.logger.Debugf("%s already contains the alerting configuration", res)
		return result
	}
	result.Action = ActionPatch

	if r.backups != nil {
		path, err := r.backups.Write(configMap.Name, configMap)
		if err != nil {
			r.logger.Warnf("Failed to back up %s (continuing without backup): %s", res, err)
		} else {
			r.logger.Infof("Backup of %s written to '%s'", res, path)
		}
	}

	patch, err := json.Marshal(map[string]interface{}{
		"data": map[string]string{upstream.DataKey: merged},
	})
	if err != nil {
		return r.failed(result, err)
	}
	if err := r.client.Patch(ctx, res, types.MergePatchType, patch); err != nil {
		return r.failed(result, errors.Wrapf(err, "failed to patch %s", res))
	}
	r.logger.Infof("Patched alerting targets into %s", res)

	restart := r.Restart(ctx, upstream.Namespace, upstream.Deployment)
	result.Dependents = []*Result{restart}
	if restart.Failed() {
		result.Status = StatusFailed
		result.Error = restart.Error
		result.Message = "configuration patched but the upstream workload was not restarted"
		return result
	}

	result.Status = StatusApplied
	return result
}

func (r *Reconciler) skipped(result *Result, message string) *Result {
	result.Action = ActionSkip
	result.Status = StatusSkipped
	result.Message = message
	r.logger.Warn(message)
	return result
}
