package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	e "github.com/kyma-incubator/alerting-reconciler/pkg/error"
	"go.uber.org/zap"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

const (
	defaultProgressInterval = 5 * time.Second
	defaultProgressTimeout  = 5 * time.Minute

	ReadyState      State = "ready"
	TerminatedState State = "terminated"

	Deployment WatchableResource = "Deployment"
)

type State string

type WatchableResource string

type resource struct {
	kind      WatchableResource
	name      string
	namespace string
}

func (o *resource) String() string {
	return fmt.Sprintf("%s [namespace:%s|name:%s]", o.kind, o.namespace, o.name)
}

type Config struct {
	Interval time.Duration
	Timeout  time.Duration
}

func (ptc *Config) validate() error {
	if ptc.Interval < 0 {
		return fmt.Errorf("progress tracker status-check interval cannot be < 0")
	}
	if ptc.Interval == 0 {
		ptc.Interval = defaultProgressInterval
	}
	if ptc.Timeout < 0 {
		return fmt.Errorf("progress tracker timeout cannot be < 0")
	}
	if ptc.Timeout == 0 {
		ptc.Timeout = defaultProgressTimeout
	}
	if ptc.Timeout <= ptc.Interval {
		return fmt.Errorf("progress tracker will never run because configured timeout "+
			"is <= as the check interval :%.0f secs <= %.0f secs", ptc.Timeout.Seconds(), ptc.Interval.Seconds())
	}
	return nil
}

// TimeoutError is returned by Watch if the watched resources did not reach
// the target state within the configured timeout.
type TimeoutError struct {
	State   State
	Timeout time.Duration
}

func (err *TimeoutError) Error() string {
	return fmt.Sprintf("progress tracker reached timeout (%.0f secs): "+
		"stop checking progress of resource transition to state '%s'", err.Timeout.Seconds(), err.State)
}

func IsTimeoutError(err error) bool {
	_, ok := err.(*TimeoutError)
	return ok
}

type Tracker struct {
	objects  []*resource
	client   kubernetes.Interface
	interval time.Duration
	timeout  time.Duration
	logger   *zap.SugaredLogger
}

func NewProgressTracker(client kubernetes.Interface, logger *zap.SugaredLogger, config Config) (*Tracker, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	return &Tracker{
		client:   client,
		interval: config.Interval,
		timeout:  config.Timeout,
		logger:   logger,
	}, nil
}

func (pt *Tracker) AddResource(kind WatchableResource, namespace, name string) {
	pt.objects = append(pt.objects, &resource{
		kind:      kind,
		namespace: namespace,
		name:      name,
	})
}

func (pt *Tracker) Watch(ctx context.Context, targetState State) error {
	if len(pt.objects) == 0 {
		pt.logger.Debugf("No watchable resources defined: transition to state '%s' "+
			"will be treated as successfully finished", targetState)
		return nil
	}

	inState, err := pt.allInState(ctx, targetState)
	if err != nil {
		pt.logger.Warnf("Failed to verify initial resource state: %v", err)
	}
	if inState {
		pt.logger.Debugf("Watchable resources are already in target state '%s': no recurring checks triggered", targetState)
		return nil
	}

	ticker := time.NewTicker(pt.interval)
	defer ticker.Stop()
	timeout := time.After(pt.timeout)
	for {
		select {
		case <-ticker.C:
			inState, err := pt.allInState(ctx, targetState)
			if err != nil {
				pt.logger.Warnf("Failed to check progress of resource transition to state '%s' "+
					"but will retry until timeout is reached: %s", targetState, err)
			}
			if inState {
				pt.logger.Debugf("Watchable resources reached target state '%s'", targetState)
				return nil
			}
		case <-ctx.Done():
			pt.logger.Debugf("Stop checking progress of resource transition to state '%s' "+
				"because parent context got closed", targetState)
			for _, object := range pt.objects {
				pt.logger.Infof("Tracker stopped checking the progress of the following resource: %v", object)
			}
			return &e.ContextClosedError{
				Message: fmt.Sprintf("Running resource transition to state '%s' was not completed: "+
					"transition is treated as failed", targetState),
			}
		case <-timeout:
			err := &TimeoutError{State: targetState, Timeout: pt.timeout}
			pt.logger.Warn(err.Error())
			pt.dumpResources(ctx)
			return err
		}
	}
}

func (pt *Tracker) allInState(ctx context.Context, targetState State) (bool, error) {
	for _, object := range pt.objects {
		var inState bool
		var err error

		switch object.kind {
		case Deployment:
			inState, err = deploymentInState(ctx, pt.client, targetState, object)
		default:
			err = fmt.Errorf("resource type not supported: %s", object.kind)
		}

		if err != nil {
			pt.logger.Debugf("Failed to get state of %v: %s", object, err)
			return false, err
		}
		if !inState {
			pt.logger.Debugf("Transition of %v to state '%s' is still ongoing", object, targetState)
			return false, nil
		}
	}

	pt.logger.Debugf("All resources reached state '%s'", targetState)
	return true, nil
}

func (pt *Tracker) dumpResources(ctx context.Context) {
	for _, object := range pt.objects {
		if object.kind != Deployment {
			continue
		}
		deployment, err := pt.client.AppsV1().Deployments(object.namespace).Get(ctx, object.name, metav1.GetOptions{})
		if err != nil {
			pt.logger.Infof("Tracker stopped checking the progress of %v. Failed to get resource: %s", object, err)
			continue
		}
		buf, err := json.Marshal(deployment.Status)
		if err != nil {
			pt.logger.Infof("Tracker stopped checking the progress of %v", object)
			continue
		}
		pt.logger.Infof("Tracker stopped checking the progress of %v. Resource status: %s", object, buf)
	}
}
