package reconciler

import (
	"fmt"

	"k8s.io/apimachinery/pkg/runtime"

	"github.com/kyma-incubator/alerting-reconciler/pkg/kubernetes"
)

// Policy defines how an existing resource is treated.
type Policy string

const (
	// PreserveExisting never touches a resource once it exists, independent of its content.
	PreserveExisting Policy = "preserve-existing"
	// CreateOnly creates a missing resource but never patches an existing one.
	CreateOnly Policy = "create-only"
	// Converge patches an existing resource whenever its comparable spec differs.
	Converge Policy = "converge"
)

type Action string

const (
	ActionCreate Action = "create"
	ActionPatch  Action = "patch"
	ActionSkip   Action = "skip"
	ActionDelete Action = "delete"
)

type Status string

const (
	StatusApplied  Status = "Applied"
	StatusSkipped  Status = "Skipped"
	StatusFailed   Status = "Failed"
	StatusTimedOut Status = "TimedOut"
)

// ResourceDescriptor is the desired state of one cluster object.
// Dependencies are reconciled before the resource itself.
type ResourceDescriptor struct {
	Resource     *kubernetes.Resource
	Desired      runtime.Object
	Policy       Policy
	Dependencies []*ResourceDescriptor
}

// NewDescriptor derives the resource identity from the desired object.
func NewDescriptor(desired runtime.Object, policy Policy, dependencies ...*ResourceDescriptor) (*ResourceDescriptor, error) {
	res, err := kubernetes.ResourceOf(desired)
	if err != nil {
		return nil, err
	}
	return &ResourceDescriptor{
		Resource:     res,
		Desired:      desired,
		Policy:       policy,
		Dependencies: dependencies,
	}, nil
}

func (d *ResourceDescriptor) String() string {
	return fmt.Sprintf("%s (policy: %s)", d.Resource, d.Policy)
}

// Observation is the state of a resource as found in the cluster.
type Observation struct {
	Present bool
	Object  runtime.Object
}

// Result is the outcome of one reconciliation step.
type Result struct {
	Resource   *kubernetes.Resource
	Action     Action
	Status     Status
	Error      error
	Message    string
	Dependents []*Result
}

func (r *Result) String() string {
	msg := fmt.Sprintf("%s: action=%s status=%s", r.Resource, r.Action, r.Status)
	if r.Error != nil {
		msg = fmt.Sprintf("%s error=%s", msg, r.Error)
	}
	return msg
}

func (r *Result) Failed() bool {
	return r.Status == StatusFailed
}

// Report aggregates the results of a run.
type Report struct {
	results []*Result
}

func NewReport() *Report {
	return &Report{}
}

func (r *Report) Add(results ...*Result) {
	for _, result := range results {
		if result != nil {
			r.results = append(r.results, result)
		}
	}
}

// Results returns all results in execution order, dependents before the result they belong to.
func (r *Report) Results() []*Result {
	var flat []*Result
	var walk func(results []*Result)
	walk = func(results []*Result) {
		for _, result := range results {
			walk(result.Dependents)
			flat = append(flat, result)
		}
	}
	walk(r.results)
	return flat
}

func (r *Report) Count(status Status) int {
	count := 0
	for _, result := range r.Results() {
		if result.Status == status {
			count++
		}
	}
	return count
}

func (r *Report) Failed() bool {
	return r.Count(StatusFailed) > 0
}
