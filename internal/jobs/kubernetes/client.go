package kubernetes

import (
	"bufio"
	"context"
	"fmt"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/cluebotng/trainer/internal/jobs"
	"github.com/pkg/errors"
	v1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	corev1 "k8s.io/client-go/kubernetes/typed/core/v1"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// Config describes where pods are created.
type Config struct {
	// KubeConfig is a path to a kubeconfig. When empty the
	// in-cluster configuration is tried, then ~/.kube/config.
	KubeConfig string
	Namespace  string
	// SecretEnv, when set, is injected into every job's
	// container from a kubernetes secret.
	SecretEnv *SecretEnv
}

// SecretEnv maps a key of a kubernetes secret onto
// an environment variable of the same name.
type SecretEnv struct {
	Name       string
	SecretName string
}

// Client runs jobs as bare pods.
type Client struct {
	backend   kubernetesBackend
	namespace string
	secretEnv *SecretEnv
}

// New creates a Client from the configured kubeconfig.
func New(cfg Config) (*Client, error) {
	config, err := restConfig(cfg.KubeConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load kubernetes config")
	}

	cli, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create kubernetes client")
	}

	return NewWithCore(cli.CoreV1(), cfg), nil
}

// NewWithCore creates a Client on top of an existing
// core API client.
func NewWithCore(core corev1.CoreV1Interface, cfg Config) *Client {
	return &Client{
		backend:   core.Pods(cfg.Namespace),
		namespace: cfg.Namespace,
		secretEnv: cfg.SecretEnv,
	}
}

func restConfig(path string) (*rest.Config, error) {
	if path == "" {
		if c, err := rest.InClusterConfig(); err == nil {
			return c, nil
		}
		u, err := user.Current()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(u.HomeDir, kubeConfig)
	}
	return clientcmd.BuildConfigFromFlags("", path)
}

// Create a pod running the command under bash.
func (c *Client) Create(ctx context.Context, req *jobs.CreateRequest) error {
	labels := map[string]string{jobs.Label: jobs.LabelValue}
	for k, v := range toolforgeLabels {
		labels[k] = v
	}

	container := v1.Container{
		Name:    containerName,
		Image:   req.Image,
		Command: []string{"/bin/bash", "-c", req.Command},
	}

	if c.secretEnv != nil {
		container.Env = []v1.EnvVar{{
			Name: c.secretEnv.Name,
			ValueFrom: &v1.EnvVarSource{
				SecretKeyRef: &v1.SecretKeySelector{
					LocalObjectReference: v1.LocalObjectReference{Name: c.secretEnv.SecretName},
					Key:                  c.secretEnv.Name,
				},
			},
		}}
	}

	spec := &v1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      req.Name,
			Namespace: c.namespace,
			Labels:    labels,
		},
		Spec: v1.PodSpec{
			Containers:    []v1.Container{container},
			RestartPolicy: v1.RestartPolicyNever,
		},
	}

	if _, err := c.backend.Create(ctx, spec, metav1.CreateOptions{}); err != nil {
		return fmt.Errorf("failed to create pod %v: %w", req.Name, err)
	}

	return nil
}

// Get the typed status of the job's pod.
func (c *Client) Get(ctx context.Context, req *jobs.GetRequest) (*jobs.Status, error) {
	pod, err := c.backend.Get(ctx, req.Name, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil, jobs.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get pod %v: %w", req.Name, err)
	}

	status := podStatus(pod)
	return &status, nil
}

// List the trainer's pods whose name starts with the prefix.
func (c *Client) List(ctx context.Context, req *jobs.ListRequest) ([]jobs.Status, error) {
	pods, err := c.backend.List(
		ctx,
		metav1.ListOptions{LabelSelector: jobs.Label + "=" + jobs.LabelValue},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pods: %w", err)
	}

	statuses := make([]jobs.Status, 0, len(pods.Items))
	for i := range pods.Items {
		if !strings.HasPrefix(pods.Items[i].Name, req.Prefix) {
			continue
		}
		statuses = append(statuses, podStatus(&pods.Items[i]))
	}

	return statuses, nil
}

// Logs reads the job container's output with timestamps.
func (c *Client) Logs(ctx context.Context, req *jobs.LogsRequest) ([]jobs.LogRecord, error) {
	opts := &v1.PodLogOptions{
		Container:  containerName,
		Timestamps: true,
	}

	if !req.Since.IsZero() {
		opts.SinceTime = &metav1.Time{Time: req.Since}
	}

	logs := c.backend.GetLogs(req.Name, opts)
	if logs == nil {
		return nil, fmt.Errorf("failed to retrieve logs for %v", req.Name)
	}

	stream, err := logs.Stream(ctx)
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to stream logs for %v: %w", req.Name, err)
	}
	defer stream.Close()

	var records []jobs.LogRecord

	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		ts, msg, ok := strings.Cut(scanner.Text(), " ")
		if !ok {
			continue
		}

		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil || t.Before(req.Since) {
			continue
		}

		records = append(records, jobs.LogRecord{
			Timestamp: t,
			Pod:       req.Name,
			Container: containerName,
			Message:   msg,
		})
	}

	return records, scanner.Err()
}

// Delete the job's pod. A pod which is already gone
// is not an error.
func (c *Client) Delete(ctx context.Context, req *jobs.DeleteRequest) error {
	bg := metav1.DeletePropagationBackground

	err := c.backend.Delete(ctx, req.Name, metav1.DeleteOptions{PropagationPolicy: &bg})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("failed to delete pod %v: %w", req.Name, err)
	}

	return nil
}

func podStatus(pod *v1.Pod) jobs.Status {
	status := jobs.Status{
		Name:     pod.Name,
		State:    jobs.Pending,
		ExitCode: jobs.UnknownExitCode,
		Short:    string(pod.Status.Phase),
		Long:     strings.TrimSpace(pod.Status.Reason + " " + pod.Status.Message),
	}

	if state, ok := stateMap[pod.Status.Phase]; ok {
		status.State = state
	}

	cs := containerStatus(pod)

	switch pod.Status.Phase {
	case v1.PodPending:
		if cs != nil && cs.State.Waiting != nil {
			if _, fatal := fatalWaitingReasons[cs.State.Waiting.Reason]; fatal {
				status.State = jobs.Failed
				status.Long = cs.State.Waiting.Reason + ": " + cs.State.Waiting.Message
			}
		}
	case v1.PodRunning:
		if cs != nil && cs.State.Running != nil {
			status.Since = cs.State.Running.StartedAt.Time
		} else if pod.Status.StartTime != nil {
			status.Since = pod.Status.StartTime.Time
		}
	case v1.PodSucceeded, v1.PodFailed:
		if cs != nil && cs.State.Terminated != nil {
			status.ExitCode = int(cs.State.Terminated.ExitCode)
			status.Since = cs.State.Terminated.StartedAt.Time
		} else if pod.Status.Phase == v1.PodSucceeded {
			status.ExitCode = 0
		} else {
			status.State = jobs.Failed
		}
	}

	return status
}

func containerStatus(pod *v1.Pod) *v1.ContainerStatus {
	for i := range pod.Status.ContainerStatuses {
		if pod.Status.ContainerStatuses[i].Name == containerName {
			return &pod.Status.ContainerStatuses[i]
		}
	}
	if len(pod.Status.ContainerStatuses) > 0 {
		return &pod.Status.ContainerStatuses[0]
	}
	return nil
}
