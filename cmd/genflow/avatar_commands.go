package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"genflow/internal/pipeline"
)

func newAvatarsCommand(ctx *commandContext) *cobra.Command {
	avatarsCmd := &cobra.Command{
		Use:   "avatars",
		Short: "Generate and select presenter avatars",
	}

	avatarsCmd.AddCommand(newAvatarsGenerateCommand(ctx))
	avatarsCmd.AddCommand(newAvatarsSelectCommand(ctx))

	return avatarsCmd
}

func newAvatarsGenerateCommand(ctx *commandContext) *cobra.Command {
	var (
		customPrompt string
		referenceURL string
		gender       string
		ageRange     string
		ethnicity    string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate avatar candidates from the script's presenter profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(true, func(sess *session) error {
				err := sess.orch.GenerateAvatars(cmd.Context(), pipeline.AvatarOptions{
					CustomPrompt:      customPrompt,
					ReferenceImageURL: referenceURL,
					OverrideGender:    gender,
					OverrideAgeRange:  ageRange,
					OverrideEthnicity: ethnicity,
				})
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				variants := sess.state.AvatarVariants()
				fmt.Fprintf(out, "Generated %d avatar variants:\n", len(variants))
				for _, variant := range variants {
					fmt.Fprintf(out, "  [%d] %s\n", variant.Index, variant.ImagePath)
				}
				fmt.Fprintln(out, "Pick one with `genflow avatars select <index>`")
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&customPrompt, "prompt", "", "Extra prompt text for avatar generation")
	cmd.Flags().StringVar(&referenceURL, "reference-url", "", "Reference image URL to guide generation")
	cmd.Flags().StringVar(&gender, "gender", "", "Override the scripted presenter gender")
	cmd.Flags().StringVar(&ageRange, "age-range", "", "Override the scripted presenter age range")
	cmd.Flags().StringVar(&ethnicity, "ethnicity", "", "Override the scripted presenter ethnicity")
	return cmd
}

func newAvatarsSelectCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "select <index>",
		Short: "Confirm an avatar and generate the storyboard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("avatar index must be a number: %q", args[0])
			}
			return ctx.withSession(true, func(sess *session) error {
				err := sess.orch.ConfirmAvatarSelection(cmd.Context(), index, pipeline.StoryboardOptions{})
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Avatar %d confirmed\n", index)
				printStoryboardSummary(out, sess)
				return nil
			})
		},
	}
	return cmd
}
