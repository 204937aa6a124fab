package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"genflow/internal/pipeline"
)

func newStoryboardCommand(ctx *commandContext) *cobra.Command {
	storyboardCmd := &cobra.Command{
		Use:   "storyboard",
		Short: "Generate and regenerate storyboard frames",
	}

	storyboardCmd.AddCommand(newStoryboardGenerateCommand(ctx))
	storyboardCmd.AddCommand(newStoryboardRegenCommand(ctx))
	storyboardCmd.AddCommand(newStoryboardShowCommand(ctx))

	return storyboardCmd
}

func newStoryboardGenerateCommand(ctx *commandContext) *cobra.Command {
	var prompts []string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate one QC-checked frame per scripted scene",
		RunE: func(cmd *cobra.Command, args []string) error {
			customPrompts, err := parseScenePrompts(prompts)
			if err != nil {
				return err
			}
			return ctx.withSession(true, func(sess *session) error {
				err := sess.orch.GenerateStoryboard(cmd.Context(), pipeline.StoryboardOptions{
					CustomPrompts: customPrompts,
				})
				if err != nil {
					return err
				}
				printStoryboardSummary(cmd.OutOrStdout(), sess)
				return nil
			})
		},
	}

	cmd.Flags().StringArrayVar(&prompts, "prompt", nil, "Per-scene prompt override as scene=text (repeatable)")
	return cmd
}

func newStoryboardRegenCommand(ctx *commandContext) *cobra.Command {
	var customPrompt string

	cmd := &cobra.Command{
		Use:   "regen <scene>",
		Short: "Regenerate one storyboard frame",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sceneNumber, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("scene number must be a number: %q", args[0])
			}
			return ctx.withSession(true, func(sess *session) error {
				err := sess.regen.RegenerateStoryboardScene(cmd.Context(), sceneNumber, pipeline.StoryboardSceneOptions{
					CustomPrompt: customPrompt,
				})
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if result, ok := sess.state.StoryboardScene(sceneNumber); ok {
					fmt.Fprintf(out, "Scene %d regenerated (attempt %d): QC %.0f, %s\n",
						sceneNumber, result.RegenAttempts, result.QCReport.MinScore(), result.ImagePath)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&customPrompt, "prompt", "", "Prompt override for the regenerated frame")
	return cmd
}

func newStoryboardShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the current storyboard results",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(true, func(sess *session) error {
				if asJSON {
					return writeJSON(cmd, sess.state.StoryboardResults())
				}
				printStoryboardSummary(cmd.OutOrStdout(), sess)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output storyboard results as JSON")
	return cmd
}

func printStoryboardSummary(out io.Writer, sess *session) {
	results := sess.state.StoryboardResults()
	if len(results) == 0 {
		fmt.Fprintln(out, "No storyboard frames yet")
		return
	}

	threshold := sess.cfg.Storyboard.QCThreshold
	rows := make([][]string, 0, len(results))
	for _, result := range results {
		verdict := "pass"
		if result.QCReport.MinScore() < threshold {
			verdict = "below threshold"
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", result.SceneNumber),
			fmt.Sprintf("%.0f", result.QCReport.MinScore()),
			verdict,
			fmt.Sprintf("%d", result.RegenAttempts),
			result.ImagePath,
		})
	}
	table := renderTable(
		[]string{"Scene", "QC", "Verdict", "Attempts", "Image"},
		rows,
		[]columnAlignment{alignRight, alignRight, alignLeft, alignRight, alignLeft},
	)
	fmt.Fprintln(out, table)
}

// parseScenePrompts parses repeated scene=text flags into a prompt map.
func parseScenePrompts(values []string) (map[int]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	prompts := make(map[int]string, len(values))
	for _, value := range values {
		scene, text, ok := splitScenePrompt(value)
		if !ok {
			return nil, fmt.Errorf("invalid --prompt %q: expected scene=text", value)
		}
		prompts[scene] = text
	}
	return prompts, nil
}

func splitScenePrompt(value string) (int, string, bool) {
	for i := 0; i < len(value); i++ {
		if value[i] == '=' {
			scene, err := strconv.Atoi(value[:i])
			if err != nil || scene < 1 || i+1 >= len(value) {
				return 0, "", false
			}
			return scene, value[i+1:], true
		}
	}
	return 0, "", false
}
