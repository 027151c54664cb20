package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	k8serr "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime"

	e "github.com/kyma-incubator/alerting-reconciler/pkg/error"
	"github.com/kyma-incubator/alerting-reconciler/pkg/kubernetes"
)

// ProbeVerifier looks for evidence that an alert reached the alerting backend.
type ProbeVerifier interface {
	Observed(ctx context.Context, alertName string) (bool, error)
}

// ValidationProbe is a transient resource which raises AlertName once it is picked up.
type ValidationProbe struct {
	Object    runtime.Object
	AlertName string
	Verifier  ProbeVerifier
}

// RunValidationProbe creates the probe resource and polls the verifier up to pollAttempts
// times, waiting pollInterval before each attempt. The probe resource is deleted afterwards
// in any case, also if ctx got closed meanwhile. An alert which was not observed within the
// attempt budget results in StatusTimedOut: its absence is inconclusive.
func (r *Reconciler) RunValidationProbe(ctx context.Context, probe *ValidationProbe, pollInterval time.Duration, pollAttempts int) (result *Result) {
	res, err := kubernetes.ResourceOf(probe.Object)
	if err != nil {
		return r.failed(&Result{Action: ActionCreate}, err)
	}
	result = &Result{Resource: res, Action: ActionCreate}

	defer func() {
		if err := r.cleanupProbe(res); err != nil {
			r.logger.Errorf("Failed to delete validation probe %s: %s", res, err)
			if result.Error == nil {
				result.Error = err
			}
			result.Message = fmt.Sprintf("%s (probe cleanup failed)", result.Message)
		}
	}()

	if err := r.client.Create(ctx, probe.Object.DeepCopyObject()); err != nil {
		return r.failed(result, errors.Wrapf(err, "failed to create validation probe %s", res))
	}
	r.logger.Infof("Created validation probe %s: waiting for alert '%s'", res, probe.AlertName)

	for attempt := 1; attempt <= pollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return r.failed(result, &e.ContextClosedError{
				Message: fmt.Sprintf("validation probe was interrupted after %d of %d attempts", attempt-1, pollAttempts),
			})
		case <-time.After(pollInterval):
		}

		observed, err := probe.Verifier.Observed(ctx, probe.AlertName)
		if err != nil {
			r.logger.Warnf("Validation probe attempt %d/%d could not query the alerting backend: %s",
				attempt, pollAttempts, err)
			continue
		}
		if observed {
			result.Status = StatusApplied
			result.Message = fmt.Sprintf("alert '%s' observed after %d attempt(s)", probe.AlertName, attempt)
			r.logger.Infof("Validation probe succeeded: %s", result.Message)
			return result
		}
		r.logger.Debugf("Validation probe attempt %d/%d: alert '%s' not observed yet", attempt, pollAttempts, probe.AlertName)
	}

	if ctx.Err() != nil {
		return r.failed(result, &e.ContextClosedError{
			Message: fmt.Sprintf("validation probe was interrupted during attempt %d of %d", pollAttempts, pollAttempts),
		})
	}

	result.Status = StatusTimedOut
	result.Message = fmt.Sprintf("alert '%s' not observed within %d attempts", probe.AlertName, pollAttempts)
	r.logger.Warnf("Validation probe inconclusive: %s", result.Message)
	return result
}

func (r *Reconciler) cleanupProbe(res *kubernetes.Resource) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.cleanupTimeout)
	defer cancel()

	if err := r.client.Delete(ctx, res); err != nil && !k8serr.IsNotFound(err) {
		return err
	}
	r.logger.Debugf("Validation probe %s removed", res)
	return nil
}
