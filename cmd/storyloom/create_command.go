package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"storyloom/internal/notifications"
	"storyloom/internal/session"
	"storyloom/internal/storyapi"
	"storyloom/internal/tracker"
)

func newCreateCommand(ctx *commandContext) *cobra.Command {
	var req storyapi.Request
	var requestFile string
	var replace bool

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Submit a generation request and follow it to completion",
		RunE: func(cmd *cobra.Command, args []string) error {
			if requestFile != "" {
				if err := fillRequestFromFile(cmd.Flags(), &req, requestFile); err != nil {
					return err
				}
			}
			if strings.TrimSpace(req.Title) == "" {
				return errors.New("--title is required")
			}
			if strings.TrimSpace(req.ChildName) == "" {
				return errors.New("--child is required")
			}

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

			err = tr.Start(cmd.Context(), req)
			var conflict *storyapi.ConflictError
			if errors.As(err, &conflict) {
				if !replace {
					out := cmd.OutOrStdout()
					fmt.Fprintf(out, "A generation job is already active (job %s).\n", conflict.ExistingJobID)
					fmt.Fprintln(out, "Run `storyloom attach` to follow it, or re-run with --replace to cancel it and start over.")
					return err
				}
				if err := replaceExistingJob(cmd, cfg.Tracker.SessionKey, client, store, conflict.ExistingJobID); err != nil {
					return err
				}
				err = tr.Start(cmd.Context(), req)
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Generation started (job %s). Following progress...\n", tr.Snapshot().JobID)
			return followOutcome(cmd, tr)
		},
	}

	cmd.Flags().StringVar(&req.Title, "title", "", "Story title")
	cmd.Flags().StringVar(&req.ChildName, "child", "", "Child the story is about")
	cmd.Flags().StringVar(&req.AgeRange, "age-range", "", "Target age range, e.g. 4-6")
	cmd.Flags().StringVar(&req.Theme, "theme", "", "Story theme")
	cmd.Flags().IntVar(&req.PageCount, "pages", 0, "Requested page count")
	cmd.Flags().StringVar(&req.ArtStyle, "art-style", "", "Illustration style")
	cmd.Flags().StringVar(&req.Dedication, "dedication", "", "Dedication text")
	cmd.Flags().StringVar(&req.Language, "language", "", "Story language")
	cmd.Flags().StringVar(&requestFile, "request-file", "", "JSON file with the generation request (flags override its fields)")
	cmd.Flags().BoolVar(&replace, "replace", false, "Cancel a conflicting active job and retry")

	return cmd
}

// fillRequestFromFile loads a JSON request and copies its fields into req
// wherever the matching flag was not set explicitly.
func fillRequestFromFile(flags *pflag.FlagSet, req *storyapi.Request, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read request file: %w", err)
	}
	var base storyapi.Request
	if err := json.Unmarshal(data, &base); err != nil {
		return fmt.Errorf("parse request file %s: %w", path, err)
	}
	if !flags.Changed("title") {
		req.Title = base.Title
	}
	if !flags.Changed("child") {
		req.ChildName = base.ChildName
	}
	if !flags.Changed("age-range") {
		req.AgeRange = base.AgeRange
	}
	if !flags.Changed("theme") {
		req.Theme = base.Theme
	}
	if !flags.Changed("pages") {
		req.PageCount = base.PageCount
	}
	if !flags.Changed("art-style") {
		req.ArtStyle = base.ArtStyle
	}
	if !flags.Changed("dedication") {
		req.Dedication = base.Dedication
	}
	if !flags.Changed("language") {
		req.Language = base.Language
	}
	return nil
}

// replaceExistingJob cancels the conflicting remote job and clears the
// session record so creation can be retried.
func replaceExistingJob(cmd *cobra.Command, sessionKey string, client *storyapi.Client, store *session.Store, jobID string) error {
	if err := client.CancelJob(cmd.Context(), jobID); err != nil {
		return fmt.Errorf("cancel existing job %s: %w", jobID, err)
	}
	if err := store.ClearIfCurrent(cmd.Context(), sessionKey, jobID); err != nil {
		return fmt.Errorf("clear session record: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Cancelled existing job %s.\n", jobID)
	return nil
}
