package docker

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cluebotng/trainer/internal/jobs"
	"github.com/cluebotng/trainer/pkg/log"
	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/pkg/errors"
)

// Client runs jobs as containers on a local docker daemon.
type Client struct {
	backend dockerBackend
	env     []string
}

// New creates a Client from the standard DOCKER_* environment.
// Env entries are passed to every container.
func New(env ...string) (*Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, errors.Wrap(err, "failed to create docker client")
	}

	return &Client{backend: cli, env: env}, nil
}

// Create pulls the image then creates and starts the
// job's container.
func (c *Client) Create(ctx context.Context, req *jobs.CreateRequest) error {
	log.Info("pulling docker image", "image", req.Image)

	r, err := c.backend.ImagePull(ctx, req.Image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull %v: %w", req.Image, err)
	}
	defer func() {
		if err := r.Close(); err != nil {
			log.Error("close docker pull reader", "error", err)
		}
	}()

	if _, err = io.Copy(io.Discard, r); err != nil {
		return fmt.Errorf("failed to pull %v: %w", req.Image, err)
	}

	cfg := &container.Config{
		Image:  req.Image,
		Cmd:    []string{"/bin/bash", "-c", req.Command},
		Env:    c.env,
		Labels: map[string]string{jobs.Label: jobs.LabelValue},
	}

	created, err := c.backend.ContainerCreate(ctx, cfg, nil, nil, nil, req.Name)
	if err != nil {
		return fmt.Errorf("failed to create container %v: %w", req.Name, err)
	}

	log.Info("starting docker container", "name", req.Name, "id", created.ID)

	if err = c.backend.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container %v: %w", req.Name, err)
	}

	return nil
}

// Get the typed status of the job's container.
func (c *Client) Get(ctx context.Context, req *jobs.GetRequest) (*jobs.Status, error) {
	metadata, err := c.backend.ContainerInspect(ctx, req.Name)
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			return nil, jobs.ErrNotFound
		}
		return nil, fmt.Errorf("failed to inspect container %v: %w", req.Name, err)
	}

	status := containerStatus(req.Name, metadata)
	return &status, nil
}

// List the trainer's containers whose name starts with the prefix.
func (c *Client) List(ctx context.Context, req *jobs.ListRequest) ([]jobs.Status, error) {
	containers, err := c.backend.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", jobs.Label+"="+jobs.LabelValue)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	var statuses []jobs.Status
	for _, summary := range containers {
		name := containerName(summary.Names)
		if !strings.HasPrefix(name, req.Prefix) {
			continue
		}

		metadata, err := c.backend.ContainerInspect(ctx, summary.ID)
		if err != nil {
			if cerrdefs.IsNotFound(err) {
				continue
			}
			return nil, fmt.Errorf("failed to inspect container %v: %w", name, err)
		}

		statuses = append(statuses, containerStatus(name, metadata))
	}

	return statuses, nil
}

// Logs reads the container's combined output.
func (c *Client) Logs(ctx context.Context, req *jobs.LogsRequest) ([]jobs.LogRecord, error) {
	opts := container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Timestamps: true,
	}

	if !req.Since.IsZero() {
		opts.Since = req.Since.Format(time.RFC3339Nano)
	}

	r, err := c.backend.ContainerLogs(ctx, req.Name, opts)
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read logs for %v: %w", req.Name, err)
	}
	defer r.Close()

	var out bytes.Buffer
	if _, err := stdcopy.StdCopy(&out, &out, r); err != nil {
		return nil, fmt.Errorf("failed to demux logs for %v: %w", req.Name, err)
	}

	var records []jobs.LogRecord

	scanner := bufio.NewScanner(&out)
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
			Container: req.Name,
			Message:   msg,
		})
	}

	return records, scanner.Err()
}

// Delete force removes the job's container.
func (c *Client) Delete(ctx context.Context, req *jobs.DeleteRequest) error {
	log.Info("removing docker container", "name", req.Name)

	err := c.backend.ContainerRemove(ctx, req.Name, container.RemoveOptions{
		Force:         true,
		RemoveVolumes: true,
	})
	if err != nil && !cerrdefs.IsNotFound(err) {
		return fmt.Errorf("failed to remove container %v: %w", req.Name, err)
	}

	return nil
}

func containerStatus(name string, metadata container.InspectResponse) jobs.Status {
	status := jobs.Status{
		Name:     name,
		State:    jobs.Pending,
		ExitCode: jobs.UnknownExitCode,
	}

	if metadata.ContainerJSONBase == nil || metadata.State == nil {
		return status
	}

	state := metadata.State
	status.Short = string(state.Status)
	status.Long = state.Error

	if s, ok := stateMap[string(state.Status)]; ok {
		status.State = s
	}

	if t, err := time.Parse(time.RFC3339Nano, state.StartedAt); err == nil && !t.IsZero() && t.Year() > 1 {
		status.Since = t
	}

	if status.State == jobs.Completed {
		status.ExitCode = state.ExitCode
	}

	return status
}

func containerName(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return strings.TrimPrefix(names[0], "/")
}
