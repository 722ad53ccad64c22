package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"storyloom/internal/story"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the tracked job's current state without following it",
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
				fmt.Fprintln(out, "No tracked generation job. Start one with `storyloom create`.")
				return nil
			}

			client, err := ctx.newClient(cfg)
			if err != nil {
				return err
			}
			status, err := client.GetJobStatus(cmd.Context(), rec.JobID)
			if err != nil {
				return err
			}
			state := story.Merge(story.NewState(), status)

			covers := 0
			for _, slot := range story.CoverSlots {
				if state.Covers[slot] != "" {
					covers++
				}
			}
			credits := "unknown"
			if state.Credits != nil {
				credits = strconv.Itoa(*state.Credits)
			}
			storyText := "not yet available"
			if state.Draft != nil {
				storyText = fmt.Sprintf("%d pages drafted", len(state.Draft.Pages))
			}

			rows := [][2]string{
				{"Job", rec.JobID},
				{"Title", rec.Title},
				{"Started", rec.CreatedAt.Local().Format("2006-01-02 15:04:05")},
				{"Status", string(status.Status)},
				{"Progress", fmt.Sprintf("%d/%d", state.Progress.Current, state.Progress.Total)},
				{"Message", state.Progress.Message},
				{"Story text", storyText},
				{"Page images", strconv.Itoa(state.AppliedPages)},
				{"Covers", fmt.Sprintf("%d of %d", covers, len(story.CoverSlots))},
				{"Credits", credits},
			}
			fmt.Fprintln(out, renderFieldTable("Field", "Value", rows))

			if status.Status.Terminal() {
				fmt.Fprintf(out, "The job has finished (%s). Run `storyloom attach` to consume the result.\n", status.Status)
			}
			return nil
		},
	}
}
