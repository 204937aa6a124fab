package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"genflow/internal/run"
)

func newReviewCommand(ctx *commandContext) *cobra.Command {
	var notes string

	cmd := &cobra.Command{
		Use:       "review <approve|reject|changes>",
		Short:     "Record the review decision for the finished video",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"approve", "reject", "changes"},
		RunE: func(cmd *cobra.Command, args []string) error {
			decision, ok := parseReviewArg(args[0])
			if !ok {
				return fmt.Errorf("unknown decision %q: use approve, reject, or changes", args[0])
			}
			return ctx.withSession(true, func(sess *session) error {
				if err := sess.orch.SubmitForReview(cmd.Context(), &decision, notes); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Run %s marked %s\n", sess.state.RunID(), decision)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&notes, "notes", "", "Reviewer notes to record with the decision")
	return cmd
}

func parseReviewArg(value string) (run.ReviewDecision, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "approve", "approved":
		return run.ReviewApproved, true
	case "reject", "rejected":
		return run.ReviewRejected, true
	case "changes", "changes_requested":
		return run.ReviewChangesRequested, true
	default:
		return "", false
	}
}
