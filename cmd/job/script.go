package job

import (
	"fmt"
	"strings"
	"time"

	"github.com/cluebotng/trainer/internal/script"
	"github.com/spf13/cobra"
)

var (
	releaseRef          string
	downloadBinsURL     string
	downloadEditSetURL  string
	skipDependencySetup bool
	skipBinarySetup     bool
	downloads           map[string]string
	removals            []string
	commands            []string
	secretHeader        bool
	wrap                bool
	timeout             time.Duration
)

var scriptCmd = &cobra.Command{
	Use:   "script",
	Short: "Print the bootstrap script for a job",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := scriptOptions()
		if err != nil {
			return err
		}

		text := script.Build(opts)
		if wrap {
			return writeCmdOut(cmd, "%s\n", script.Command(text, timeout))
		}
		return writeCmdOut(cmd, "%s", text)
	},
}

func init() {
	addScriptFlags(scriptCmd)
	scriptCmd.Flags().BoolVar(&wrap, "wrap", false, "Print the job command wrapping the script instead")
}

func addScriptFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&releaseRef, "release-ref", "", "cluebotng/core release (default: latest)")
	cmd.Flags().StringVar(&downloadBinsURL, "download-bins-url", "", "Base URL model files are downloaded from")
	cmd.Flags().StringVar(&downloadEditSetURL, "download-edit-set-url", "", "URL downloaded to edits.xml")
	cmd.Flags().BoolVar(&skipDependencySetup, "skip-dependency-setup", false, "Do not install binaries, config or models")
	cmd.Flags().BoolVar(&skipBinarySetup, "skip-binary-setup", false, "Do not download model files")
	cmd.Flags().StringToStringVar(&downloads, "download", nil, "Additional path=url downloads")
	cmd.Flags().StringSliceVar(&removals, "remove", nil, "Paths to drop from the implied downloads")
	cmd.Flags().StringArrayVar(&commands, "command", nil, "Commands to run, in order")
	cmd.Flags().BoolVar(&secretHeader, "configure-secret-header", false, "Authenticate uploads with the file API key")
	cmd.Flags().DurationVar(&timeout, "timeout", script.DefaultTimeout, "Limit on the script's run time")
}

func scriptOptions() (script.Options, error) {
	opts := script.Options{
		ReleaseRef:            releaseRef,
		DownloadBinsURL:       downloadBinsURL,
		DownloadEditSetURL:    downloadEditSetURL,
		SkipDependencySetup:   skipDependencySetup,
		SkipBinarySetup:       skipBinarySetup,
		RunCommands:           commands,
		ConfigureSecretHeader: secretHeader,
		DownloadFileURLs:      map[string]*string{},
	}

	for p, u := range downloads {
		if strings.TrimSpace(u) == "" {
			return opts, fmt.Errorf("download %v has no url", p)
		}
		opts.DownloadFileURLs[p] = script.URL(u)
	}
	for _, p := range removals {
		if _, ok := opts.DownloadFileURLs[p]; ok {
			return opts, fmt.Errorf("%v is both downloaded and removed", p)
		}
		opts.DownloadFileURLs[p] = nil
	}
	return opts, nil
}
