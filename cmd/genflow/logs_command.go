package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"genflow/internal/run"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the current run's activity log",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(true, func(sess *session) error {
				entries, err := sess.store.Logs(cmd.Context(), sess.state.RunID())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, entries)
				}

				out := cmd.OutOrStdout()
				if len(entries) == 0 {
					fmt.Fprintln(out, "No log entries")
					return nil
				}
				colorize := shouldColorize(out)
				for _, entry := range entries {
					line := fmt.Sprintf("%s  %-7s %s",
						entry.Timestamp.Local().Format(time.TimeOnly), entry.Level, entry.Message)
					if colorize {
						if color := logLevelColor(entry.Level); color != "" {
							line = color + line + ansiReset
						}
					}
					fmt.Fprintln(out, line)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output log entries as JSON")
	return cmd
}

func logLevelColor(level run.LogLevel) string {
	switch level {
	case run.LevelSuccess:
		return ansiGreen
	case run.LevelWarn:
		return ansiYellow
	case run.LevelError:
		return ansiRed
	default:
		return ""
	}
}
