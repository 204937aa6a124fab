package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"genflow/internal/run"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current run's pipeline status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(true, func(sess *session) error {
				snap := sess.state.Snapshot()
				if asJSON {
					return writeJSON(cmd, snap)
				}

				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				reachable := run.MaxReachableStage(snap)

				fmt.Fprintf(out, "Run %s\n", snap.RunID)
				if snap.Script != nil {
					fmt.Fprintf(out, "Title: %s\n", snap.Script.VideoTitle)
				}
				fmt.Fprintln(out)

				for stage := run.StageInput; stage <= run.StageReview; stage++ {
					fmt.Fprintln(out, renderStatusLine(stageLabel(stage), stageStatusKind(snap, stage, reachable), stageStatusMessage(snap, stage), colorize))
				}

				if snap.LastError != "" {
					fmt.Fprintln(out)
					fmt.Fprintln(out, renderStatusLine("Last error", statusError, snap.LastError, colorize))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output the full run snapshot as JSON")
	return cmd
}

func stageStatusKind(snap run.Snapshot, stage, reachable run.Stage) statusKind {
	switch {
	case stage == snap.ActiveStage:
		return statusOK
	case stage <= reachable:
		return statusInfo
	default:
		return statusWarn
	}
}

func stageStatusMessage(snap run.Snapshot, stage run.Stage) string {
	switch stage {
	case snap.ActiveStage:
		msg := "active"
		if snap.Busy {
			msg = "active (busy)"
		}
		if snap.Activity != "" {
			msg += ": " + snap.Activity
		}
		return msg
	case run.StageScript:
		if snap.Script != nil {
			return fmt.Sprintf("%d scenes", len(snap.Script.Scenes))
		}
	case run.StageAvatar:
		if snap.SelectedAvatarPath != "" {
			return "selected " + snap.SelectedAvatarPath
		}
		if len(snap.AvatarVariants) > 0 {
			return fmt.Sprintf("%d variants, none selected", len(snap.AvatarVariants))
		}
	case run.StageStoryboard:
		if len(snap.Storyboard) > 0 {
			return fmt.Sprintf("%d frames", len(snap.Storyboard))
		}
	case run.StageVideo:
		if len(snap.Videos) > 0 {
			return fmt.Sprintf("%d scenes", len(snap.Videos))
		}
	case run.StageStitch:
		if snap.FinalVideoPath != "" {
			return snap.FinalVideoPath
		}
	}
	return ""
}
