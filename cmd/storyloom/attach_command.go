package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"storyloom/internal/notifications"
	"storyloom/internal/tracker"
)

func newAttachCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "attach",
		Short: "Re-attach to the tracked generation job and follow it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := ctx.newClient(cfg)
			if err != nil {
				return err
			}
			store, err := ctx.openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			tr := tracker.New(cfg, client, store, notifications.NewService(cfg), ctx.newLogger(cfg))
			if err := tr.Resume(cmd.Context()); err != nil {
				if errors.Is(err, tracker.ErrNoSession) {
					fmt.Fprintln(cmd.OutOrStdout(), "No tracked generation job. Start one with `storyloom create`.")
					return nil
				}
				return err
			}

			snap := tr.Snapshot()
			fmt.Fprintf(cmd.OutOrStdout(), "Re-attached to job %s (%s).\n", snap.JobID, snap.Title)
			return followOutcome(cmd, tr)
		},
	}
}
