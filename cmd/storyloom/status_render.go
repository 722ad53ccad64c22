package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"

	"storyloom/internal/tracker"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 10
	statusIndent     = "  "
)

// renderProgressLine formats one live progress update from a tracker
// snapshot: percent, the pipeline's message if any, and the count of
// page images applied so far.
func renderProgressLine(snap tracker.Snapshot, colorize bool) string {
	line := fmt.Sprintf("%3d%%", snap.State.Progress.Current)
	if msg := snap.State.Progress.Message; msg != "" {
		line += "  " + msg
	}
	if snap.State.AppliedPages > 0 {
		line += fmt.Sprintf("  (%d pages so far)", snap.State.AppliedPages)
	}
	return statusLine("Progress", "INFO", ansiBlue, line, colorize)
}

// renderStallLine formats the advisory shown when progress has not
// advanced past the stall threshold. The job is not failed; the line
// says so.
func renderStallLine(colorize bool) string {
	return statusLine("Stall", "WARN", ansiYellow, "no progress for a while; the job is still running", colorize)
}

// renderResultLine formats the terminal line for a delivered outcome.
func renderResultLine(outcome tracker.Outcome, colorize bool) string {
	switch {
	case outcome.Cancelled:
		return statusLine("Result", "INFO", ansiBlue, "generation cancelled", colorize)
	case outcome.Err != nil:
		return statusLine("Result", "ERROR", ansiRed, "generation failed", colorize)
	default:
		return statusLine("Result", "OK", ansiGreen, "story complete", colorize)
	}
}

func statusLine(label, tag, color, message string, colorize bool) string {
	text := "[" + tag + "]"
	if message != "" {
		text += " " + message
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", text)
	if colorize && color != "" {
		return color + base + ansiReset
	}
	return base
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
