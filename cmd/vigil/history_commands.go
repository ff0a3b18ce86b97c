package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"vigil/internal/config"
	"vigil/internal/history"
	"vigil/internal/runlock"
)

const historyTimeLayout = "2006-01-02 15:04:05"

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect the local run journal",
	}
	historyCmd.AddCommand(newHistoryListCommand(ctx))
	historyCmd.AddCommand(newHistoryShowCommand(ctx))
	historyCmd.AddCommand(newHistoryRemoveCommand(ctx))
	historyCmd.AddCommand(newHistoryClearCommand(ctx))
	return historyCmd
}

// reconcileHistory closes journal entries left running by a process that
// exited mid-run. Nothing is touched while another process holds the run lock.
func reconcileHistory(ctx context.Context, cfg *config.Config, store *history.Store) error {
	held, err := runlock.Held(cfg.LockPath())
	if err != nil || held {
		return err
	}
	_, err = store.MarkInterrupted(ctx)
	return err
}

func newHistoryListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return ctx.withHistory(func(store *history.Store) error {
				if err := reconcileHistory(cmd.Context(), cfg, store); err != nil {
					return err
				}
				runs, err := store.List(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, runs)
				}
				if len(runs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded")
					return nil
				}
				rows := make([][]string, 0, len(runs))
				for _, run := range runs {
					rows = append(rows, []string{
						run.ID,
						string(run.Mode),
						run.Name,
						videoLabel(run),
						string(run.Status),
						run.FailedStage,
						run.StartedAt.Local().Format(historyTimeLayout),
						formatDuration(run.Duration),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Run", "Mode", "Name", "Video", "Status", "Failed stage", "Started", "Duration"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "Maximum number of runs to show (0 for all)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

type historyDetail struct {
	Run    *history.Run         `json:"run"`
	Stages []history.StageEvent `json:"stages"`
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a run and its stage transitions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withHistory(func(store *history.Store) error {
				run, err := store.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if run == nil {
					return fmt.Errorf("run %s not found", args[0])
				}
				stages, err := store.Stages(cmd.Context(), run.ID)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, historyDetail{Run: run, Stages: stages})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Run %s (%s)\n", run.ID, run.Mode)
				if run.Name != "" {
					fmt.Fprintf(out, "Name: %s\n", run.Name)
				}
				fmt.Fprintf(out, "Video: %s\n", videoLabel(run))
				if run.ConfigID > 0 {
					fmt.Fprintf(out, "Configuration: %d\n", run.ConfigID)
				}
				fmt.Fprintf(out, "Status: %s\n", run.Status)
				if run.FailedStage != "" {
					fmt.Fprintf(out, "Failed stage: %s\n", run.FailedStage)
				}
				if run.Cause != "" {
					fmt.Fprintf(out, "Cause: %s\n", run.Cause)
				}
				fmt.Fprintf(out, "Started: %s\n", run.StartedAt.Local().Format(historyTimeLayout))
				if run.FinishedAt != nil {
					fmt.Fprintf(out, "Finished: %s (%s)\n", run.FinishedAt.Local().Format(historyTimeLayout), formatDuration(run.Duration))
				}
				if len(stages) == 0 {
					return nil
				}
				rows := make([][]string, 0, len(stages))
				for _, ev := range stages {
					rows = append(rows, []string{
						ev.RecordedAt.Local().Format(historyTimeLayout),
						ev.Stage,
						string(ev.Status),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Time", "Stage", "Status"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newHistoryRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <run-id>",
		Short: "Remove a run from the journal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withHistory(func(store *history.Store) error {
				removed, err := store.Remove(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("run %s not found", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed run %s\n", args[0])
				return nil
			})
		},
	}
}

func newHistoryClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every finished run from the journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withHistory(func(store *history.Store) error {
				count, err := store.Clear(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d run(s)\n", count)
				return nil
			})
		},
	}
}

func videoLabel(run *history.Run) string {
	switch {
	case run.VideoID > 0 && run.VideoPath != "":
		return fmt.Sprintf("#%d %s", run.VideoID, run.VideoPath)
	case run.VideoID > 0:
		return "#" + strconv.FormatInt(run.VideoID, 10)
	default:
		return run.VideoPath
	}
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	return d.Round(time.Millisecond).String()
}
