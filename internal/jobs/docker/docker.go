package docker

import (
	"context"
	"io"

	"github.com/cluebotng/trainer/internal/jobs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

var stateMap = map[string]jobs.State{
	"created":    jobs.Pending,
	"running":    jobs.Running,
	"paused":     jobs.Running,
	"restarting": jobs.Running,
	"removing":   jobs.Completed,
	"exited":     jobs.Completed,
	"dead":       jobs.Failed,
}

type dockerBackend interface {
	ContainerInspect(context.Context, string) (container.InspectResponse, error)
	ContainerList(context.Context, container.ListOptions) ([]container.Summary, error)
	ContainerCreate(context.Context, *container.Config, *container.HostConfig, *network.NetworkingConfig, *ocispec.Platform, string) (container.CreateResponse, error)
	ContainerStart(context.Context, string, container.StartOptions) error
	ContainerRemove(context.Context, string, container.RemoveOptions) error
	ContainerLogs(context.Context, string, container.LogsOptions) (io.ReadCloser, error)
	ImagePull(context.Context, string, image.PullOptions) (io.ReadCloser, error)
}
