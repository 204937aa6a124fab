package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"genflow/internal/run"
)

func newScriptCommand(ctx *commandContext) *cobra.Command {
	scriptCmd := &cobra.Command{
		Use:   "script",
		Short: "Inspect and edit the generated script",
	}

	scriptCmd.AddCommand(newScriptShowCommand(ctx))
	scriptCmd.AddCommand(newScriptUpdateCommand(ctx))

	return scriptCmd
}

func newScriptShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the current script",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(true, func(sess *session) error {
				script := sess.state.Script()
				if script == nil {
					return fmt.Errorf("run %s has no script yet", sess.state.RunID())
				}
				if asJSON {
					return writeJSON(cmd, script)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Title:    %s\n", script.VideoTitle)
				fmt.Fprintf(out, "Duration: %.1fs across %d scenes\n", script.TotalDuration, len(script.Scenes))
				profile := script.AvatarProfile
				fmt.Fprintf(out, "Avatar:   %s, %s, %s\n", profile.Gender, profile.AgeRange, profile.ToneOfVoice)
				fmt.Fprintln(out)

				rows := make([][]string, 0, len(script.Scenes))
				for _, scene := range script.Scenes {
					rows = append(rows, []string{
						fmt.Sprintf("%d", scene.SceneNumber),
						scene.SceneType,
						fmt.Sprintf("%.1fs", scene.DurationSeconds),
						truncate(scene.ScriptDialogue, 60),
					})
				}
				table := renderTable(
					[]string{"Scene", "Type", "Duration", "Dialogue"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft},
				)
				fmt.Fprintln(out, table)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output the full script as JSON")
	return cmd
}

func newScriptUpdateCommand(ctx *commandContext) *cobra.Command {
	var filePath string

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Replace the script from a JSON file (use '-' for stdin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := readScript(filePath, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return ctx.withSession(true, func(sess *session) error {
				if err := sess.orch.UpdateScript(cmd.Context(), script); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Script updated: %q, %d scenes\n",
					script.VideoTitle, len(script.Scenes))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&filePath, "file", "f", "", "Path to the script JSON (required)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func readScript(path string, stdin io.Reader) (run.Script, error) {
	var reader io.Reader
	if strings.TrimSpace(path) == "-" {
		reader = stdin
	} else {
		file, err := os.Open(path)
		if err != nil {
			return run.Script{}, fmt.Errorf("open script file: %w", err)
		}
		defer file.Close()
		reader = file
	}

	var script run.Script
	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&script); err != nil {
		return run.Script{}, fmt.Errorf("parse script JSON: %w", err)
	}
	return script, nil
}

func truncate(value string, limit int) string {
	value = strings.TrimSpace(value)
	if limit <= 3 || len(value) <= limit {
		return value
	}
	return value[:limit-3] + "..."
}
