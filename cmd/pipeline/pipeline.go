package pipeline

import (
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cluebotng/trainer/internal/backend"
	"github.com/cluebotng/trainer/internal/pipeline"
	"github.com/cluebotng/trainer/internal/secret"
	"github.com/cluebotng/trainer/pkg/client"
	"github.com/cluebotng/trainer/pkg/env"
	"github.com/cluebotng/trainer/pkg/log"
	"github.com/spf13/cobra"
)

const (
	usage   = "run-edit-set"
	short   = "Train and trial one target"
	long    = "This command runs the training steps for one edit set as a sequence of jobs, stopping at the first failure"
	example = "cbng-trainer run-edit-set --target-name='Original Training Set' --instance-name=manual --download-training=http://review/api/v1/edit-groups/2/dump-editset/"
)

// Cmd is the run-edit-set command.
var Cmd = &cobra.Command{
	Use:     usage,
	Short:   short,
	Long:    long,
	Example: example,
	RunE:    run,
}

var (
	targetName       string
	instanceName     string
	downloadTraining string
	downloadTrial    string
	image            string
	releaseRef       string
	trainerHost      string
	runTimeout       time.Duration
	listSteps        bool
)

func init() {
	Cmd.Flags().StringVar(&targetName, "target-name", "", "Name of the target being trained")
	Cmd.Flags().StringVar(&instanceName, "instance-name", "", "Name of this training instance")
	Cmd.Flags().StringVar(&downloadTraining, "download-training", "", "URL of the training edit set")
	Cmd.Flags().StringVar(&downloadTrial, "download-trial", "", "URL of the trial edit set")
	Cmd.Flags().StringVar(&image, "container-image", "", "Job image (default: TRAINER_CONTAINER_IMAGE)")
	Cmd.Flags().StringVar(&releaseRef, "release-ref", "", "cluebotng/core release (default: TRAINER_RELEASE_REF)")
	Cmd.Flags().StringVar(&trainerHost, "trainer-host", "", "File API URL (default: TRAINER_TRAINER_HOST)")
	Cmd.Flags().DurationVar(&runTimeout, "run-timeout", 0, "Limit on each step's run time (default: TRAINER_RUN_TIMEOUT)")
	Cmd.Flags().BoolVar(&listSteps, "list-steps", false, "Print the steps and job names without running them")

	_ = Cmd.MarkFlagRequired("target-name")
	_ = Cmd.MarkFlagRequired("instance-name")
	_ = Cmd.MarkFlagRequired("download-training")
}

func run(cmd *cobra.Command, args []string) error {
	vars := env.Variables()

	cfg := pipeline.Config{
		Target:      targetName,
		Instance:    instanceName,
		TrainingURL: downloadTraining,
		TrialURL:    downloadTrial,
		Image:       pick(image, vars.ContainerImage),
		ReleaseRef:  pick(releaseRef, vars.ReleaseRef),
		TrainerHost: pick(trainerHost, vars.TrainerHost),
		RunTimeout:  runTimeout,
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = vars.RunTimeout
	}

	if listSteps {
		for _, s := range cfg.Steps() {
			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", s.Name, cfg.JobName(s.Name)); err != nil {
				return err
			}
		}
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	key, err := secret.FileAPIKey(ctx, vars)
	if err != nil {
		log.Error("file api key unavailable, logs will not be uploaded", "error", err)
	}
	cfg.APIKey = key

	jobs, err := backend.New(vars, key)
	if err != nil {
		return err
	}

	p := pipeline.New(backend.Orchestrator(vars, jobs), client.New(nil), cfg)
	report, err := p.Run(ctx)
	if err != nil {
		return err
	}

	for _, s := range report.Steps {
		log.Info("step result", "target", cfg.Target, "step", s.Name, "outcome", s.Outcome, "duration", s.Duration)
	}

	if !report.Success {
		return errors.New("training pipeline failed")
	}
	return nil
}

func pick(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}
