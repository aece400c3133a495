package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "publista",
		Short:         "Publista publish and render orchestration",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(newWorkerCommand())
	rootCmd.AddCommand(newMigrateCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newQueueCommand())
	for _, cmd := range newPublishCommands() {
		rootCmd.AddCommand(cmd)
	}
	return rootCmd
}
