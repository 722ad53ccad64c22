package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Cancel the tracked generation job",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := ctx.openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			rec, err := store.Current(cmd.Context(), cfg.Tracker.SessionKey)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if rec == nil {
				fmt.Fprintln(out, "No tracked generation job to cancel.")
				return nil
			}

			client, err := ctx.newClient(cfg)
			if err != nil {
				return err
			}
			if err := client.CancelJob(cmd.Context(), rec.JobID); err != nil {
				return fmt.Errorf("cancel job %s: %w", rec.JobID, err)
			}
			if err := store.ClearIfCurrent(cmd.Context(), cfg.Tracker.SessionKey, rec.JobID); err != nil {
				return fmt.Errorf("clear session record: %w", err)
			}
			fmt.Fprintf(out, "Cancelled job %s (%s).\n", rec.JobID, rec.Title)
			return nil
		},
	}
}
