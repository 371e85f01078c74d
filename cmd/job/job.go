package job

import "github.com/spf13/cobra"

// Cmd is the parent command for ad-hoc job operations.
var Cmd = &cobra.Command{
	Use:   "job",
	Short: "Render and run single jobs",
}

func init() {
	Cmd.AddCommand(scriptCmd)
	Cmd.AddCommand(runCmd)
}
