package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "List and manage stored runs",
	}

	runsCmd.AddCommand(newRunsListCommand(ctx))
	runsCmd.AddCommand(newRunsRemoveCommand(ctx))

	return runsCmd
}

func newRunsListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored runs, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(false, func(sess *session) error {
				summaries, err := sess.store.List(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, summaries)
				}
				if len(summaries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No stored runs")
					return nil
				}

				rows := make([][]string, 0, len(summaries))
				for _, summary := range summaries {
					final := "-"
					if summary.FinalVideoPath != "" {
						final = summary.FinalVideoPath
					}
					rows = append(rows, []string{
						summary.RunID,
						truncate(summary.VideoTitle, 40),
						summary.ActiveStage.String(),
						summary.UpdatedAt.Local().Format(time.DateTime),
						final,
					})
				}
				table := renderTable(
					[]string{"Run", "Title", "Stage", "Updated", "Final Video"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output run summaries as JSON")
	return cmd
}

func newRunsRemoveCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <run-id>",
		Short: "Delete a stored run and its logs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(false, func(sess *session) error {
				if err := sess.store.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", args[0])
				return nil
			})
		},
	}
	return cmd
}

func newResumeCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume <run-id>",
		Short: "Make a stored run the default for later commands",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(false, func(sess *session) error {
				snap, err := sess.store.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				sess.rememberRun(snap.RunID)
				fmt.Fprintf(cmd.OutOrStdout(), "Resumed run %s at stage %s\n",
					snap.RunID, snap.ActiveStage)
				return nil
			})
		},
	}
	return cmd
}
