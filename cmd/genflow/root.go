package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var runFlag string

	ctx := newCommandContext(&configFlag, &runFlag)

	rootCmd := &cobra.Command{
		Use:           "genflow",
		Short:         "Genflow ad-video pipeline CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVarP(&runFlag, "run", "r", "", "Run ID to operate on (defaults to the last used run)")

	rootCmd.AddCommand(newStartCommand(ctx))
	rootCmd.AddCommand(newScriptCommand(ctx))
	rootCmd.AddCommand(newAvatarsCommand(ctx))
	rootCmd.AddCommand(newStoryboardCommand(ctx))
	rootCmd.AddCommand(newVideoCommand(ctx))
	rootCmd.AddCommand(newStitchCommand(ctx))
	rootCmd.AddCommand(newReviewCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newRunsCommand(ctx))
	rootCmd.AddCommand(newResumeCommand(ctx))
	rootCmd.AddCommand(newLogsCommand(ctx))
	rootCmd.AddCommand(newWatchCommand(ctx))
	rootCmd.AddCommand(newConfigCommand())
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}
