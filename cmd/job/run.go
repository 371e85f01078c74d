package job

import (
	"errors"
	"os/signal"
	"syscall"

	"github.com/cluebotng/trainer/internal/backend"
	"github.com/cluebotng/trainer/internal/jobs"
	"github.com/cluebotng/trainer/internal/orchestrator"
	"github.com/cluebotng/trainer/internal/script"
	"github.com/cluebotng/trainer/internal/secret"
	"github.com/cluebotng/trainer/pkg/env"
	"github.com/cluebotng/trainer/pkg/log"
	"github.com/spf13/cobra"
)

var (
	name          string
	image         string
	waitForMarker bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single job and follow it to completion",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := scriptOptions()
		if err != nil {
			return err
		}

		vars := env.Variables()
		if image == "" {
			image = vars.ContainerImage
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		key, err := secret.FileAPIKey(ctx, vars)
		if err != nil {
			log.Warn("file api key unavailable", "error", err)
		}

		client, err := backend.New(vars, key)
		if err != nil {
			return err
		}

		result, err := backend.Orchestrator(vars, client).Run(ctx, &orchestrator.Request{
			Name:          jobs.Name("job", name),
			Stage:         "job",
			Image:         image,
			Command:       script.Command(script.Build(opts), timeout),
			WaitForMarker: waitForMarker,
		})
		if err != nil {
			return err
		}

		if err := writeCmdOut(cmd, "%s\n", result.Outcome); err != nil {
			return err
		}
		if !result.Success {
			return errors.New("job failed")
		}
		return nil
	},
}

func init() {
	addScriptFlags(runCmd)
	runCmd.Flags().StringVar(&name, "name", "", "Job name, prefixed with job-")
	runCmd.Flags().StringVar(&image, "container-image", "", "Job image (default: TRAINER_CONTAINER_IMAGE)")
	runCmd.Flags().BoolVar(&waitForMarker, "wait-for-marker", true, "Drain logs until the completion marker is seen")
	_ = runCmd.MarkFlagRequired("name")
}
