package coordinate

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cluebotng/trainer/internal/backend"
	"github.com/cluebotng/trainer/internal/coordinator"
	"github.com/cluebotng/trainer/internal/review"
	"github.com/cluebotng/trainer/internal/secret"
	"github.com/cluebotng/trainer/pkg/client"
	"github.com/cluebotng/trainer/pkg/env"
	"github.com/cluebotng/trainer/pkg/log"
	"github.com/spf13/cobra"
)

const (
	usage   = "run-edit-sets"
	short   = "Launch a training run for every edit set"
	long    = "This command plans a training run per edit group of the review interface and launches each as a job"
	example = "cbng-trainer run-edit-sets --edit-set 'Original Training Set' --print-only"

	instanceLayout = "2006-01-02 15:04:05"
)

// Cmd is the run-edit-sets command.
var Cmd = &cobra.Command{
	Use:     usage,
	Short:   short,
	Long:    long,
	Example: example,
	RunE:    coordinate,
}

var (
	editSets      []string
	printOnly     bool
	output        string
	maxConcurrent int
	schedule      string
	timezone      string
	image         string
	reviewHost    string
	trainerHost   string
	releaseRef    string
)

func init() {
	Cmd.Flags().StringSliceVar(&editSets, "edit-set", nil, "Limit the run to these edit sets (default: all)")
	Cmd.Flags().BoolVar(&printOnly, "print-only", false, "Print the planned runs instead of launching them")
	Cmd.Flags().StringVarP(&output, "output", "o", "text", "Plan output format: text or yaml")
	Cmd.Flags().IntVar(&maxConcurrent, "max-concurrent", 1, "Number of training runs allowed at once")
	Cmd.Flags().StringVar(&schedule, "schedule", "", "Repeat on this cron schedule until interrupted")
	Cmd.Flags().StringVar(&timezone, "timezone", "", "Timezone the schedule is evaluated in")
	Cmd.Flags().StringVar(&image, "container-image", "", "Job image (default: TRAINER_CONTAINER_IMAGE)")
	Cmd.Flags().StringVar(&reviewHost, "review-host", "", "Review interface URL (default: TRAINER_REVIEW_HOST)")
	Cmd.Flags().StringVar(&trainerHost, "trainer-host", "", "File API URL (default: TRAINER_TRAINER_HOST)")
	Cmd.Flags().StringVar(&releaseRef, "release-ref", "", "cluebotng/core release (default: latest)")
}

func coordinate(cmd *cobra.Command, args []string) error {
	vars := env.Variables()
	settings := Settings{
		Image:       pick(image, vars.ContainerImage),
		ReviewHost:  pick(reviewHost, vars.ReviewHost),
		TrainerHost: pick(trainerHost, vars.TrainerHost),
		ReleaseRef:  pick(releaseRef, vars.ReleaseRef),
		EditSets:    editSets,
	}

	switch output {
	case "text", "yaml":
	default:
		return fmt.Errorf("unsupported output format: %v", output)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hc := client.New(nil)

	once := func(ctx context.Context) error {
		p, err := BuildPlan(ctx, hc, review.New(settings.ReviewHost, hc), settings, time.Now())
		if err != nil {
			return err
		}

		if printOnly {
			return p.Write(cmd.OutOrStdout(), output)
		}
		return launch(ctx, vars, p)
	}

	if schedule == "" {
		return once(ctx)
	}

	s, err := coordinator.ParseSchedule(schedule, timezone)
	if err != nil {
		return err
	}
	return s.Loop(ctx, once)
}

func launch(ctx context.Context, vars env.Environment, p *Plan) error {
	key, err := secret.FileAPIKey(ctx, vars)
	if err != nil {
		log.Warn("file api key unavailable", "error", err)
	}

	jobs, err := backend.New(vars, key)
	if err != nil {
		return err
	}

	c := coordinator.New(
		backend.Orchestrator(vars, jobs),
		backend.Admission(vars, jobs),
		coordinator.Config{
			Image:         p.Image,
			MaxConcurrent: maxConcurrent,
		},
	)

	results, err := c.Run(ctx, p.Items())
	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	log.Info("coordinated runs finished", "instance", p.Instance, "runs", len(results), "failed", failed)

	if err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d training runs failed", failed, len(results))
	}
	return nil
}

func pick(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}
