package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"genflow/internal/pipeline"
)

func newVideoCommand(ctx *commandContext) *cobra.Command {
	videoCmd := &cobra.Command{
		Use:   "video",
		Short: "Generate, regenerate, and select scene clips",
	}

	videoCmd.AddCommand(newVideoGenerateCommand(ctx))
	videoCmd.AddCommand(newVideoRegenCommand(ctx))
	videoCmd.AddCommand(newVideoSelectCommand(ctx))
	videoCmd.AddCommand(newVideoShowCommand(ctx))

	return videoCmd
}

func newVideoGenerateCommand(ctx *commandContext) *cobra.Command {
	var (
		seed           int
		negativePrompt string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate clip variants for every storyboard scene",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(true, func(sess *session) error {
				err := sess.orch.GenerateVideos(cmd.Context(), pipeline.VideoOptions{
					Seed:                seed,
					NegativePromptExtra: negativePrompt,
				})
				if err != nil {
					return err
				}
				printVideoSummary(cmd.OutOrStdout(), sess)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&seed, "seed", 0, "Generation seed override (default from config)")
	cmd.Flags().StringVar(&negativePrompt, "negative", "", "Extra negative prompt text")
	return cmd
}

func newVideoRegenCommand(ctx *commandContext) *cobra.Command {
	var (
		seed           int
		negativePrompt string
	)

	cmd := &cobra.Command{
		Use:   "regen <scene>",
		Short: "Regenerate the clips for one scene",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sceneNumber, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("scene number must be a number: %q", args[0])
			}
			return ctx.withSession(true, func(sess *session) error {
				err := sess.regen.RegenerateVideoScene(cmd.Context(), sceneNumber, pipeline.VideoSceneOptions{
					Seed:                seed,
					NegativePromptExtra: negativePrompt,
				})
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if result, ok := sess.state.VideoScene(sceneNumber); ok {
					fmt.Fprintf(out, "Scene %d regenerated (attempt %d), %d variants\n",
						sceneNumber, result.RegenAttempts, len(result.Variants))
					if selected, ok := result.SelectedVariant(); ok && selected.QCReport != nil {
						fmt.Fprintf(out, "Selected variant %d: QC %.1f\n",
							selected.Index, selected.QCReport.MinScore())
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&seed, "seed", 0, "Generation seed override (default from config)")
	cmd.Flags().StringVar(&negativePrompt, "negative", "", "Extra negative prompt text")
	return cmd
}

func newVideoSelectCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "select <scene> <variant>",
		Short: "Select a clip variant for a scene",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sceneNumber, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("scene number must be a number: %q", args[0])
			}
			variantIndex, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("variant index must be a number: %q", args[1])
			}
			return ctx.withSession(true, func(sess *session) error {
				if err := sess.orch.SelectVideoVariant(cmd.Context(), sceneNumber, variantIndex); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Scene %d now uses variant %d\n", sceneNumber, variantIndex)
				return nil
			})
		},
	}
	return cmd
}

func newVideoShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the current video results",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(true, func(sess *session) error {
				if asJSON {
					return writeJSON(cmd, sess.state.VideoResults())
				}
				printVideoSummary(cmd.OutOrStdout(), sess)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output video results as JSON")
	return cmd
}

func printVideoSummary(out io.Writer, sess *session) {
	results := sess.state.VideoResults()
	if len(results) == 0 {
		fmt.Fprintln(out, "No video clips yet")
		return
	}

	rows := make([][]string, 0, len(results))
	for _, result := range results {
		qc := "-"
		if selected, ok := result.SelectedVariant(); ok && selected.QCReport != nil {
			qc = fmt.Sprintf("%.1f", selected.QCReport.MinScore())
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", result.SceneNumber),
			fmt.Sprintf("%d", len(result.Variants)),
			fmt.Sprintf("%d", result.SelectedIndex),
			qc,
			result.SelectedVideoPath,
		})
	}
	table := renderTable(
		[]string{"Scene", "Variants", "Selected", "QC", "Clip"},
		rows,
		[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignLeft},
	)
	fmt.Fprintln(out, table)
}
