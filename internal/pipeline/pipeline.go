package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cluebotng/trainer/internal/fileapi"
	"github.com/cluebotng/trainer/internal/jobs"
	"github.com/cluebotng/trainer/internal/metrics"
	"github.com/cluebotng/trainer/internal/orchestrator"
	"github.com/cluebotng/trainer/internal/script"
	"github.com/cluebotng/trainer/pkg/client"
	"github.com/cluebotng/trainer/pkg/log"
)

const redacted = "*****"

// Runner runs one orchestrated job.
type Runner interface {
	Run(ctx context.Context, req *orchestrator.Request) (*orchestrator.Result, error)
}

// Config identifies one training run of a target.
type Config struct {
	Target      string
	Instance    string
	TrainingURL string
	// TrialURL is optional. Without it no trial report
	// or plots are produced.
	TrialURL    string
	Image       string
	ReleaseRef  string
	TrainerHost string
	// APIKey authenticates log uploads and is redacted
	// from uploaded logs.
	APIKey     string
	RunTimeout time.Duration
}

func (cfg Config) path(kind, file string) string {
	return TargetPath(cfg.TrainerHost, cfg.Target, cfg.Instance, kind, file)
}

// JobName is the platform job name of a step.
func (cfg Config) JobName(step string) string {
	return jobs.Name(step, jobs.TargetID(cfg.Target+"/"+cfg.TrainingURL))
}

// StepResult is the outcome of one step.
type StepResult struct {
	Name     string
	Outcome  orchestrator.Outcome
	Success  bool
	Duration time.Duration
}

// Report summarises a pipeline run.
type Report struct {
	Steps   []StepResult
	Success bool
}

// Pipeline runs the training steps of one target in order.
type Pipeline struct {
	runner Runner
	http   *client.Client
	cfg    Config
}

// New returns a Pipeline running steps through runner and
// uploading their logs with c.
func New(runner Runner, c *client.Client, cfg Config) *Pipeline {
	return &Pipeline{runner: runner, http: c, cfg: cfg}
}

// Run executes every step in order, stopping at the first
// failure. An error is only returned when ctx ends.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	if p.cfg.Target == "" || p.cfg.TrainingURL == "" {
		return nil, errors.New("target and training set are required")
	}

	report := &Report{Success: true}

	for _, step := range p.cfg.Steps() {
		log.Info("running pipeline step", "target", p.cfg.Target, "step", step.Name)

		start := time.Now()
		result, err := p.runner.Run(ctx, &orchestrator.Request{
			Name:          p.cfg.JobName(step.Name),
			Image:         p.cfg.Image,
			Command:       script.Command(script.Build(step.Options), p.cfg.RunTimeout),
			Stage:         step.Name,
			WaitForMarker: true,
		})

		sr := StepResult{Name: step.Name, Duration: time.Since(start)}
		if result != nil {
			sr.Outcome = result.Outcome
			sr.Success = result.Success
			p.uploadLogs(ctx, step.Name, result.Logs)
		}
		report.Steps = append(report.Steps, sr)
		metrics.PipelineStepsTotal.WithLabelValues(step.Name, string(sr.Outcome)).Inc()

		if err != nil {
			report.Success = false
			return report, err
		}

		if !sr.Success {
			log.Error("pipeline step failed", "target", p.cfg.Target, "step", step.Name, "outcome", sr.Outcome)
			report.Success = false
			return report, nil
		}
	}

	log.Info("pipeline finished", "target", p.cfg.Target, "steps", len(report.Steps))
	return report, nil
}

func (p *Pipeline) uploadLogs(ctx context.Context, step string, lines []string) {
	if len(lines) == 0 {
		log.Debug("no logs to upload", "step", step)
		return
	}
	if p.cfg.APIKey == "" {
		log.Error("no file api key, skipping log upload", "step", step)
		return
	}

	target := p.cfg.path(Logs, step+".log")
	body := strings.Join(CleanLogs(lines, p.cfg.APIKey), "\n")

	log.Info("publishing logs", "step", step, "url", target)
	if err := fileapi.Upload(context.WithoutCancel(ctx), p.http, target, p.cfg.APIKey, []byte(body)); err != nil {
		log.Warn("failed to upload logs", "step", step, "error", err)
	}
}

// CleanLogs drops completion marker lines and redacts secret.
func CleanLogs(lines []string, secret string) []string {
	clean := make([]string, 0, len(lines))
	for _, line := range lines {
		if orchestrator.IsMarker(line) {
			continue
		}
		if secret != "" {
			line = strings.ReplaceAll(line, secret, redacted)
		}
		clean = append(clean, line)
	}
	return clean
}
