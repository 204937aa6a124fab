package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStitchCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stitch",
		Short: "Assemble the selected clips into the final video",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(true, func(sess *session) error {
				if err := sess.orch.StitchFinalVideo(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Final video: %s\n", sess.state.FinalVideoPath())
				fmt.Fprintln(cmd.OutOrStdout(), "Submit it with `genflow review approve` or `genflow review reject`")
				return nil
			})
		},
	}
	return cmd
}
