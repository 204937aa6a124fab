package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"genflow/internal/pipeline"
)

func newStartCommand(ctx *commandContext) *cobra.Command {
	var (
		specifications string
		imageURL       string
		sceneCount     int
		adTone         string
		instructions   string
	)

	cmd := &cobra.Command{
		Use:   "start <product-name>",
		Short: "Start a new run and generate the script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(false, func(sess *session) error {
				runID, err := sess.orch.StartRun(cmd.Context(), pipeline.StartRunRequest{
					ProductName:        args[0],
					Specifications:     specifications,
					ImageURL:           imageURL,
					SceneCount:         sceneCount,
					AdTone:             adTone,
					CustomInstructions: instructions,
				})
				if err != nil {
					return err
				}
				sess.rememberRun(runID)

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Run %s started\n", runID)
				if script := sess.state.Script(); script != nil {
					fmt.Fprintf(out, "Script %q generated with %d scenes (%.1fs total)\n",
						script.VideoTitle, len(script.Scenes), script.TotalDuration)
				}
				fmt.Fprintln(out, "Next: `genflow script show` to inspect, `genflow avatars generate` to continue")
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&specifications, "spec", "s", "", "Product specifications the script writer works from (required)")
	cmd.Flags().StringVar(&imageURL, "image-url", "", "Product reference image URL")
	cmd.Flags().IntVar(&sceneCount, "scenes", 0, "Scene count override (default from config)")
	cmd.Flags().StringVar(&adTone, "tone", "", "Ad tone override (default from config)")
	cmd.Flags().StringVar(&instructions, "instructions", "", "Extra instructions for the script writer")
	_ = cmd.MarkFlagRequired("spec")

	return cmd
}
