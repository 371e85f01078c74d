package orchestrator

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cluebotng/trainer/internal/jobs"
	"github.com/cluebotng/trainer/internal/logs"
	"github.com/cluebotng/trainer/internal/metrics"
	"github.com/cluebotng/trainer/internal/script"
	"github.com/cluebotng/trainer/pkg/log"
)

const (
	defaultStartTimeout      = 300 * time.Second
	defaultStartPollInterval = 500 * time.Millisecond
	defaultPollInterval      = time.Second
	defaultDrainTimeout      = 300 * time.Second
	defaultDrainInterval     = time.Second
	defaultDeleteTimeout     = 30 * time.Second
	defaultStage             = "job"

	// submitSlack widens the log window opened at submission
	// time to tolerate clock skew with the platform.
	submitSlack = time.Minute
)

// Outcome describes how an orchestration run ended.
type Outcome string

const (
	Succeeded        Outcome = "succeeded"
	Failed           Outcome = "failed"
	SubmissionFailed Outcome = "submission_failed"
	StartTimeout     Outcome = "start_timeout"
	PreRunFailure    Outcome = "pre_run_failure"
	Canceled         Outcome = "canceled"
)

// Config holds the timing of an Orchestrator. Zero values
// are replaced with defaults.
type Config struct {
	StartTimeout      time.Duration
	StartPollInterval time.Duration
	PollInterval      time.Duration
	DrainTimeout      time.Duration
	DrainInterval     time.Duration
	DeleteTimeout     time.Duration
}

// Request describes one job to run.
type Request struct {
	Name    string
	Image   string
	Command string
	// Stage labels metrics for the run.
	Stage string
	// WaitForMarker drains logs after success until the
	// completion marker has been seen.
	WaitForMarker bool
	// OnStart is called once the job is running.
	OnStart func(since time.Time)
	// OnLine is called for every distinct log record.
	OnLine func(jobs.LogRecord)
}

// Result is the outcome of one orchestration run.
type Result struct {
	Success bool
	Logs    []string
	Outcome Outcome
}

// Orchestrator drives jobs through submission, start,
// completion, log drain and deletion. It holds no per-run
// state and may be shared between goroutines.
type Orchestrator struct {
	client jobs.Client
	cfg    Config
}

// New creates an Orchestrator using the given jobs client.
func New(client jobs.Client, cfg Config) *Orchestrator {
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = defaultStartTimeout
	}
	if cfg.StartPollInterval <= 0 {
		cfg.StartPollInterval = defaultStartPollInterval
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = defaultDrainTimeout
	}
	if cfg.DrainInterval <= 0 {
		cfg.DrainInterval = defaultDrainInterval
	}
	if cfg.DeleteTimeout <= 0 {
		cfg.DeleteTimeout = defaultDeleteTimeout
	}

	return &Orchestrator{client: client, cfg: cfg}
}

// Run submits the job and follows it to completion. Expected
// failures are reported through the Result; an error is only
// returned for an invalid request or a canceled context, in
// which case the Result is still populated.
func (o *Orchestrator) Run(ctx context.Context, req *Request) (*Result, error) {
	if req == nil || req.Name == "" {
		return nil, errors.New("job name is required")
	}

	stage := req.Stage
	if stage == "" {
		stage = defaultStage
	}

	start := time.Now()
	metrics.JobsActive.WithLabelValues(stage).Inc()
	defer metrics.JobsActive.WithLabelValues(stage).Dec()

	r := &run{
		Orchestrator: o,
		req:          req,
		stage:        stage,
		dedup:        logs.NewDeduplicator(),
		result:       &Result{Logs: []string{}},
	}

	err := r.execute(ctx)

	metrics.JobRunsTotal.WithLabelValues(stage, string(r.result.Outcome)).Inc()
	metrics.JobRunDurationSeconds.WithLabelValues(stage, string(r.result.Outcome)).
		Observe(time.Since(start).Seconds())

	log.Info(
		"job finished",
		"job", req.Name,
		"outcome", r.result.Outcome,
		"success", r.result.Success,
		"lines", len(r.result.Logs),
		"duration", time.Since(start),
	)

	return r.result, err
}

type run struct {
	*Orchestrator
	req        *Request
	stage      string
	dedup      *logs.Deduplicator
	result     *Result
	markerSeen bool
}

func (r *run) execute(ctx context.Context) error {
	log.Info("submitting job", "job", r.req.Name, "image", r.req.Image)

	submitted := time.Now()
	if err := r.client.Create(ctx, &jobs.CreateRequest{
		Name:    r.req.Name,
		Image:   r.req.Image,
		Command: r.req.Command,
	}); err != nil {
		log.Error("failed to submit job", "job", r.req.Name, "error", err)
		if ctx.Err() != nil {
			r.result.Outcome = Canceled
			return ctx.Err()
		}
		r.result.Outcome = SubmissionFailed
		return nil
	}

	defer r.delete(ctx)

	since, outcome, err := r.waitForStart(ctx, submitted)
	if err != nil {
		r.result.Outcome = Canceled
		return err
	}

	if outcome != "" {
		log.Error("job did not start", "job", r.req.Name, "outcome", outcome)
		r.collect(ctx, submitted.Add(-submitSlack))
		r.result.Outcome = outcome
		return nil
	}

	log.Info("job started", "job", r.req.Name, "since", since)
	if r.req.OnStart != nil {
		r.req.OnStart(since)
	}

	final, err := r.waitForTerminal(ctx, since)
	if err != nil {
		r.result.Outcome = Canceled
		return err
	}

	r.collect(ctx, since)

	if final == nil || !final.Succeeded() {
		if final != nil {
			log.Error("job failed", "job", r.req.Name, "status", final.Short, "detail", final.Long)
		} else {
			log.Error("job disappeared while running", "job", r.req.Name)
		}
		r.result.Outcome = Failed
		return nil
	}

	r.result.Success = true
	r.result.Outcome = Succeeded

	if r.req.WaitForMarker {
		if err := r.drain(ctx, since); err != nil {
			return err
		}
	}

	return nil
}

// waitForStart polls until the job is running. A non-empty
// Outcome means the job will never run.
func (r *run) waitForStart(ctx context.Context, submitted time.Time) (time.Time, Outcome, error) {
	for {
		status, err := r.client.Get(ctx, &jobs.GetRequest{Name: r.req.Name})
		switch {
		case errors.Is(err, jobs.ErrNotFound):
			log.Debug("job not yet visible", "job", r.req.Name)
		case err != nil:
			log.Debug("failed to query job status", "job", r.req.Name, "error", err)
		case status.State == jobs.Failed:
			return time.Time{}, PreRunFailure, nil
		case status.Started():
			if status.Since.IsZero() {
				return submitted.Add(-submitSlack), "", nil
			}
			return status.Since, "", nil
		}

		if time.Since(submitted) >= r.cfg.StartTimeout {
			return time.Time{}, StartTimeout, nil
		}

		if err := sleepWithContext(ctx, r.cfg.StartPollInterval); err != nil {
			return time.Time{}, "", err
		}
	}
}

// waitForTerminal streams logs until the job stops running.
// A nil status means the job no longer exists.
func (r *run) waitForTerminal(ctx context.Context, since time.Time) (*jobs.Status, error) {
	for {
		r.collect(ctx, since)

		status, err := r.client.Get(ctx, &jobs.GetRequest{Name: r.req.Name})
		switch {
		case errors.Is(err, jobs.ErrNotFound):
			return nil, nil
		case err != nil:
			log.Debug("failed to query job status", "job", r.req.Name, "error", err)
		case status.Terminal():
			return status, nil
		}

		if err := sleepWithContext(ctx, r.cfg.PollInterval); err != nil {
			return nil, err
		}
	}
}

func (r *run) drain(ctx context.Context, since time.Time) error {
	deadline := time.Now().Add(r.cfg.DrainTimeout)

	for !r.markerSeen {
		if !time.Now().Before(deadline) {
			log.Error("completion marker not seen before drain timeout", "job", r.req.Name, "timeout", r.cfg.DrainTimeout)
			return nil
		}

		if err := sleepWithContext(ctx, r.cfg.DrainInterval); err != nil {
			return err
		}

		r.collect(ctx, since)
	}

	return nil
}

func (r *run) collect(ctx context.Context, since time.Time) {
	records, err := r.client.Logs(ctx, &jobs.LogsRequest{Name: r.req.Name, Since: since})
	if err != nil {
		log.Debug("failed to read job logs", "job", r.req.Name, "error", err)
		return
	}

	fresh := r.dedup.FilterNew(records)
	if len(fresh) == 0 {
		return
	}

	metrics.JobLogLinesTotal.WithLabelValues(r.stage).Add(float64(len(fresh)))

	for _, rec := range fresh {
		log.Info(
			"job output",
			"job", r.req.Name,
			"pod", rec.Pod,
			"timestamp", rec.Timestamp,
			"line", rec.Message,
		)

		r.result.Logs = append(r.result.Logs, rec.Message)
		if IsMarker(rec.Message) {
			r.markerSeen = true
		}

		if r.req.OnLine != nil {
			r.req.OnLine(rec)
		}
	}
}

func (r *run) delete(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.DeleteTimeout)
	defer cancel()

	if err := r.client.Delete(ctx, &jobs.DeleteRequest{Name: r.req.Name}); err != nil {
		metrics.JobDeleteFailuresTotal.WithLabelValues(r.stage).Inc()
		log.Warn("failed to delete job", "job", r.req.Name, "error", err)
		return
	}

	log.Debug("job deleted", "job", r.req.Name)
}

// IsMarker reports whether a log line carries the
// completion marker.
func IsMarker(line string) bool {
	return strings.HasSuffix(strings.TrimSpace(line), script.Marker)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
