package fileapi

import (
	"os/signal"
	"syscall"

	"github.com/cluebotng/trainer/internal/fileapi"
	"github.com/cluebotng/trainer/internal/metrics"
	"github.com/cluebotng/trainer/internal/secret"
	"github.com/cluebotng/trainer/pkg/env"
	"github.com/cluebotng/trainer/pkg/log"
	"github.com/spf13/cobra"
)

const (
	usage   = "run-file-api"
	short   = "Serve training artifacts"
	long    = "This command serves the trainer's artifact directory and accepts authenticated uploads into it"
	example = "cbng-trainer run-file-api --base-dir /data/project/cluebotng-trainer/public_html"
)

// Cmd is the run-file-api command.
var Cmd = &cobra.Command{
	Use:     usage,
	Short:   short,
	Long:    long,
	Example: example,
	RunE:    serve,
}

var (
	baseDir string
	port    int
)

func init() {
	Cmd.Flags().StringVar(&baseDir, "base-dir", "", "Directory to serve (default: TRAINER_FILE_API_BASE_DIR)")
	Cmd.Flags().IntVar(&port, "port", 0, "Port to listen on (default: TRAINER_PORT)")
}

func serve(cmd *cobra.Command, args []string) error {
	vars := env.Variables()

	cfg := fileapi.Config{BaseDir: baseDir, Port: port}
	if cfg.BaseDir == "" {
		cfg.BaseDir = vars.FileAPIBaseDir
	}
	if cfg.Port == 0 {
		cfg.Port = vars.Port
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	key, err := secret.FileAPIKey(ctx, vars)
	if err != nil {
		log.Error("file api key unavailable, uploads will be rejected", "error", err)
	}
	cfg.APIKey = key

	metrics.Register()

	return fileapi.Start(ctx, cfg)
}
