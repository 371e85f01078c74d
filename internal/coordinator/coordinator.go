package coordinator

import (
	"context"
	"errors"
	"time"

	"github.com/cluebotng/trainer/internal/admission"
	"github.com/cluebotng/trainer/internal/jobs"
	"github.com/cluebotng/trainer/internal/orchestrator"
	"github.com/cluebotng/trainer/internal/script"
	"github.com/cluebotng/trainer/pkg/log"
)

const (
	// Stage names coordinated jobs and prefixes them on the platform.
	Stage = "coord"
	// Prefix is shared by every coordinated job name.
	Prefix = Stage + "-"

	defaultRunTimeout = 24 * time.Hour
)

// Runner runs one orchestrated job.
type Runner interface {
	Run(ctx context.Context, req *orchestrator.Request) (*orchestrator.Result, error)
}

// Admission blocks until another job may be launched.
type Admission interface {
	Wait(ctx context.Context, quota admission.Quota) error
}

// Item is one unit of work, run as a command inside its own job.
type Item struct {
	Name    string `yaml:"name"`
	Command string `yaml:"command"`
}

// JobName is the platform job name used for the item.
func (i Item) JobName() string {
	return jobs.Name(Stage, jobs.TargetID(i.Name))
}

// Result is the outcome of one item. Launched is false when
// the item was skipped because ctx ended first.
type Result struct {
	Item     Item
	Job      string
	Launched bool
	Success  bool
	Outcome  orchestrator.Outcome
}

// Config controls how items are run.
type Config struct {
	Image string
	// MaxConcurrent is the number of coordinated jobs allowed
	// to run at once. Values of 1 or less run items one by one.
	MaxConcurrent int
	RunTimeout    time.Duration
}

// Coordinator fans items out to jobs within a quota.
type Coordinator struct {
	runner    Runner
	admission Admission
	cfg       Config
}

// New returns a Coordinator launching jobs through runner,
// gated by adm when more than one job may run at once.
func New(runner Runner, adm Admission, cfg Config) *Coordinator {
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = defaultRunTimeout
	}
	return &Coordinator{runner: runner, admission: adm, cfg: cfg}
}

// Run launches every item and waits for all launched jobs to
// finish. Results are in item order. When ctx ends, items not
// yet launched are skipped and ctx.Err() is returned once the
// launched ones have been cleaned up.
func (c *Coordinator) Run(ctx context.Context, items []Item) ([]Result, error) {
	results := make([]Result, len(items))
	for i, item := range items {
		results[i] = Result{Item: item, Job: item.JobName()}
	}

	if c.cfg.MaxConcurrent <= 1 {
		for i := range items {
			if ctx.Err() != nil {
				break
			}
			c.run(ctx, &results[i], nil)
		}
		return results, ctx.Err()
	}

	quota := admission.Quota{Prefix: Prefix, MaxConcurrent: c.cfg.MaxConcurrent}
	p := newPool(c.cfg.MaxConcurrent)

	for i := range items {
		if err := c.admission.Wait(ctx, quota); err != nil {
			break
		}

		res := &results[i]
		// the next quota check has to see this job running
		err := p.launch(ctx, func(started func()) {
			c.run(ctx, res, started)
		})
		if err != nil {
			break
		}
	}

	p.wait()
	return results, ctx.Err()
}

func (c *Coordinator) run(ctx context.Context, res *Result, onStart func()) {
	log.Info("launching coordinated job", "item", res.Item.Name, "job", res.Job)

	req := &orchestrator.Request{
		Name:  res.Job,
		Image: c.cfg.Image,
		Command: script.Command(script.Build(script.Options{
			SkipDependencySetup: true,
			RunCommands:         []string{res.Item.Command},
		}), c.cfg.RunTimeout),
		Stage: Stage,
	}
	if onStart != nil {
		req.OnStart = func(time.Time) { onStart() }
	}

	res.Launched = true
	result, err := c.runner.Run(ctx, req)
	if result != nil {
		res.Success = result.Success
		res.Outcome = result.Outcome
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		log.Warn("coordinated job interrupted", "item", res.Item.Name, "job", res.Job)
	case err != nil:
		log.Error("coordinated job failed to run", "item", res.Item.Name, "job", res.Job, "error", err)
	case res.Success:
		log.Info("coordinated job completed", "item", res.Item.Name, "job", res.Job)
	default:
		log.Error("coordinated job failed", "item", res.Item.Name, "job", res.Job, "outcome", res.Outcome)
	}
}
