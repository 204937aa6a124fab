package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"genflow/internal/events"
	"genflow/internal/logging"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the current run's event stream until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(true, func(sess *session) error {
				runID := sess.state.RunID()
				fmt.Fprintf(cmd.OutOrStdout(), "Watching run %s (Ctrl-C to stop)\n", runID)

				watchCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer cancel()

				reconciler := events.NewReconciler(sess.state, sess.logger)
				subscriber := events.NewSubscriber(sess.cfg.Service.BaseURL, reconciler, sess.logger)

				err := subscriber.Run(watchCtx, runID)

				// Progressive events only touched in-memory state; store the
				// final shape before exiting.
				if saveErr := sess.store.SaveSnapshot(context.WithoutCancel(watchCtx), sess.state.Snapshot()); saveErr != nil {
					sess.logger.Warn("persist snapshot after watch", logging.Error(saveErr))
				}
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		},
	}
	return cmd
}
