package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"storyloom/internal/story"
	"storyloom/internal/tracker"
)

// followOutcome renders progress updates until the tracker delivers its
// one-shot Outcome. An interrupt stops following without cancelling the
// remote job; the session record survives so `storyloom attach` can pick
// the job back up.
func followOutcome(cmd *cobra.Command, tr *tracker.Tracker) error {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	lastCurrent := -1
	lastMessage := ""
	stalledShown := false

	for {
		select {
		case <-cmd.Context().Done():
			fmt.Fprintln(out, "Stopped following; the job keeps running. Run `storyloom attach` to resume.")
			return cmd.Context().Err()
		case outcome := <-tr.Done():
			return renderOutcome(out, colorize, outcome)
		case <-ticker.C:
			snap := tr.Snapshot()
			current := snap.State.Progress.Current
			message := snap.State.Progress.Message
			if current != lastCurrent || message != lastMessage {
				fmt.Fprintln(out, renderProgressLine(snap, colorize))
				lastCurrent = current
				lastMessage = message
			}
			if snap.Stalled && !stalledShown {
				fmt.Fprintln(out, renderStallLine(colorize))
				stalledShown = true
			}
			if !snap.Stalled {
				stalledShown = false
			}
		}
	}
}

func renderOutcome(out io.Writer, colorize bool, outcome tracker.Outcome) error {
	fmt.Fprintln(out, renderResultLine(outcome, colorize))
	switch {
	case outcome.Cancelled:
		return nil
	case outcome.Err != nil:
		return outcome.Err
	default:
		fmt.Fprintln(out, renderFinalSummary(outcome.State))
		return nil
	}
}

func renderFinalSummary(state story.State) string {
	title := ""
	pages := 0
	if state.Draft != nil {
		title = state.Draft.Title
		pages = state.Draft.PageCount
	}
	credits := "unknown"
	if state.Credits != nil {
		credits = strconv.Itoa(*state.Credits)
	}
	covers := 0
	for _, slot := range story.CoverSlots {
		if state.Covers[slot] != "" {
			covers++
		}
	}
	rows := [][2]string{
		{"Title", title},
		{"Pages", strconv.Itoa(pages)},
		{"Page images", strconv.Itoa(state.AppliedPages)},
		{"Covers", fmt.Sprintf("%d of %d", covers, len(story.CoverSlots))},
		{"Credits remaining", credits},
	}
	return renderFieldTable("Field", "Value", rows)
}
