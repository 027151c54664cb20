package progress

import (
	"context"
	"fmt"
	"sort"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	appsclient "k8s.io/client-go/kubernetes/typed/apps/v1"
)

func errUnsupportedState(state State) error { return fmt.Errorf("state '%s' not supported", state) }

func deploymentInState(ctx context.Context, client kubernetes.Interface, inState State, object *resource) (bool, error) {
	deployment, err := client.AppsV1().Deployments(object.namespace).Get(ctx, object.name, metav1.GetOptions{})
	if err != nil {
		if inState == TerminatedState && errors.IsNotFound(err) {
			return true, nil
		}
		return false, err
	}

	switch inState {
	case TerminatedState:
		return false, nil
	case ReadyState:
		return isDeploymentReady(ctx, client.AppsV1(), deployment)
	default:
		return false, errUnsupportedState(inState)
	}
}

// isDeploymentReady is true when the newest ReplicaSet owned by the deployment
// has all desired replicas ready, or the deployment itself reports them available.
func isDeploymentReady(ctx context.Context, client appsclient.AppsV1Interface, deployment *appsv1.Deployment) (bool, error) {
	var expected int32 = 1
	if deployment.Spec.Replicas != nil {
		expected = *deployment.Spec.Replicas
	}

	if deployment.Status.AvailableReplicas >= expected && isAvailable(deployment) {
		return true, nil
	}

	replicaSet, err := getLatestReplicaSet(ctx, deployment, client)
	if err != nil || replicaSet == nil {
		return false, err
	}
	return replicaSet.Status.ReadyReplicas >= expected, nil
}

func isAvailable(deployment *appsv1.Deployment) bool {
	for _, condition := range deployment.Status.Conditions {
		if condition.Type == appsv1.DeploymentAvailable {
			return condition.Status == corev1.ConditionTrue
		}
	}
	return false
}

func getLatestReplicaSet(ctx context.Context, deployment *appsv1.Deployment, client appsclient.AppsV1Interface) (*appsv1.ReplicaSet, error) {
	selector, err := metav1.LabelSelectorAsSelector(deployment.Spec.Selector)
	if err != nil {
		return nil, err
	}

	allReplicaSets, err := client.ReplicaSets(deployment.Namespace).List(ctx, metav1.ListOptions{LabelSelector: selector.String()})
	if err != nil {
		return nil, err
	}

	var ownedReplicaSets []*appsv1.ReplicaSet
	for i := range allReplicaSets.Items {
		if metav1.IsControlledBy(&allReplicaSets.Items[i], deployment) {
			ownedReplicaSets = append(ownedReplicaSets, &allReplicaSets.Items[i])
		}
	}

	if len(ownedReplicaSets) == 0 {
		return nil, nil
	}

	sort.Sort(replicaSetsByCreationTimestamp(ownedReplicaSets))
	return ownedReplicaSets[len(ownedReplicaSets)-1], nil
}

type replicaSetsByCreationTimestamp []*appsv1.ReplicaSet

func (o replicaSetsByCreationTimestamp) Len() int      { return len(o) }
func (o replicaSetsByCreationTimestamp) Swap(i, j int) { o[i], o[j] = o[j], o[i] }
func (o replicaSetsByCreationTimestamp) Less(i, j int) bool {
	if o[i].CreationTimestamp.Equal(&o[j].CreationTimestamp) {
		return o[i].Name < o[j].Name
	}
	return o[i].CreationTimestamp.Before(&o[j].CreationTimestamp)
}
