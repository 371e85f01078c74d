package jobs

import (
	"context"
	"errors"
	"time"
)

// Client defines the interface for controlling remote
// jobs. A jobs.Client is analagous to the Toolforge
// jobs API, a Kubernetes namespace or a Docker daemon.
// Implementations hold no per-job state and are safe
// to share between concurrent orchestrations.
type Client interface {
	Create(context.Context, *CreateRequest) error
	Get(context.Context, *GetRequest) (*Status, error)
	Logs(context.Context, *LogsRequest) ([]LogRecord, error)
	Delete(context.Context, *DeleteRequest) error
	List(context.Context, *ListRequest) ([]Status, error)
}

// CreateRequest defines the input parameters to
// a Client.Create request.
type CreateRequest struct {
	Name    string
	Image   string
	Command string
}

// GetRequest defines the input parameters to
// a Client.Get request.
type GetRequest struct {
	Name string
}

// LogsRequest defines the input parameters to
// a Client.Logs request. Records timestamped
// before Since are not returned.
type LogsRequest struct {
	Name  string
	Since time.Time
}

// DeleteRequest defines the input parameters to
// a Client.Delete request.
type DeleteRequest struct {
	Name string
}

// ListRequest defines the input parameters to
// a Client.List request. An empty Prefix matches
// every job.
type ListRequest struct {
	Prefix string
}

// ErrNotFound is returned by Client implementations
// when the named job does not exist.
var ErrNotFound = errors.New("job not found")

// State defines the states a remote job can be
// reported in.
type State string

const (
	// NotFound means the platform has no record of the job.
	NotFound State = "not_found"
	// Pending means the job was accepted but has not started.
	Pending State = "pending"
	// Running means the job's container is executing.
	Running State = "running"
	// Completed means the job terminated and reported
	// an exit code.
	Completed State = "completed"
	// Failed means the platform gave up on the job
	// without an exit code, e.g. an image pull error.
	Failed State = "failed"
)

// UnknownExitCode is reported for jobs which have
// not terminated or whose exit code could not be read.
const UnknownExitCode = -1

// Status is the typed view of a job's status.
type Status struct {
	Name     string
	State    State
	Since    time.Time
	ExitCode int
	// Short and Long carry the platform's own status
	// text for logging.
	Short string
	Long  string
}

// Started reports whether the job has left the
// pending state.
func (s *Status) Started() bool {
	return s.State == Running || s.State == Completed
}

// Terminal reports whether the job will not change
// state again.
func (s *Status) Terminal() bool {
	return s.State == Completed || s.State == Failed || s.State == NotFound
}

// Succeeded reports whether the job completed with
// a zero exit code.
func (s *Status) Succeeded() bool {
	return s.State == Completed && s.ExitCode == 0
}

// LogRecord is one line of job output.
type LogRecord struct {
	Timestamp time.Time
	Pod       string
	Container string
	Message   string
}

// Label to apply to jobs to identify that they
// are managed by the trainer.
const Label = "app.kubernetes.io/managed-by"

// LabelValue is the value set on Label.
const LabelValue = "cbng-trainer"
