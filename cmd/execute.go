package cmd

import (
	"github.com/cluebotng/trainer/cmd/coordinate"
	"github.com/cluebotng/trainer/cmd/fileapi"
	"github.com/cluebotng/trainer/cmd/job"
	"github.com/cluebotng/trainer/cmd/pipeline"
	"github.com/spf13/cobra"
)

var cmds = []*cobra.Command{
	coordinate.Cmd,
	pipeline.Cmd,
	fileapi.Cmd,
	job.Cmd,
}

// Execute builds the command tree and executes commands.
func Execute() error {
	command := &cobra.Command{
		Use:          "cbng-trainer",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Usage()
		},
	}

	for _, c := range cmds {
		command.AddCommand(c)
	}

	return command.Execute()
}
