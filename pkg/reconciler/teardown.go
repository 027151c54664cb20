package reconciler

import (
	"context"

	"github.com/pkg/errors"
	k8serr "k8s.io/apimachinery/pkg/api/errors"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/kyma-incubator/alerting-reconciler/pkg/kubernetes"
)

// Teardown deletes all given resources and the local backups. Absent resources count as
// deleted. A failure does not stop the teardown: all failures are returned aggregated.
func (r *Reconciler) Teardown(ctx context.Context, resources []*kubernetes.Resource) ([]*Result, error) {
	var results []*Result
	var errs []error

	for _, res := range resources {
		result := &Result{Resource: res, Action: ActionDelete}
		err := r.client.Delete(ctx, res)
		switch {
		case err == nil:
			result.Status = StatusApplied
			r.logger.Infof("Deleted %s", res)
		case k8serr.IsNotFound(err):
			result.Action = ActionSkip
			result.Status = StatusSkipped
			result.Message = "already absent"
			r.logger.Debugf("%s is already absent", res)
		default:
			err = errors.Wrapf(err, "failed to delete %s", res)
			r.failed(result, err)
			errs = append(errs, err)
		}
		results = append(results, result)
	}

	if r.backups != nil {
		removed, err := r.backups.Purge()
		switch {
		case err != nil:
			r.logger.Warnf("Failed to remove backups: %s", err)
			errs = append(errs, err)
		case removed:
			r.logger.Infof("Removed backup directory '%s'", r.backups.Dir())
		}
	}

	return results, utilerrors.NewAggregate(errs)
}
