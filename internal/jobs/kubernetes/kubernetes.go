package kubernetes

import (
	"github.com/cluebotng/trainer/internal/jobs"
	v1 "k8s.io/api/core/v1"
	corev1 "k8s.io/client-go/kubernetes/typed/core/v1"
)

type kubernetesBackend interface {
	corev1.PodInterface
}

const (
	containerName = "job"
	kubeConfig    = ".kube/config"
)

var (
	stateMap = map[v1.PodPhase]jobs.State{
		v1.PodPending:   jobs.Pending,
		v1.PodRunning:   jobs.Running,
		v1.PodSucceeded: jobs.Completed,
		v1.PodFailed:    jobs.Completed,
		v1.PodUnknown:   jobs.Pending,
	}
	// waiting reasons the kubelet will not recover from
	// without the pod being recreated.
	fatalWaitingReasons = map[string]struct{}{
		"ErrImagePull":               {},
		"ImagePullBackOff":           {},
		"InvalidImageName":           {},
		"CreateContainerConfigError": {},
		"CreateContainerError":       {},
	}
	toolforgeLabels = map[string]string{
		"toolforge":                   "tool",
		"toolforge.org/mount-storage": "none",
	}
)
