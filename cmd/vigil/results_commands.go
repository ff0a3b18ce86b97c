package main

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"vigil/internal/logging"
	"vigil/internal/services/backend"
)

func newResultsCommand(ctx *commandContext) *cobra.Command {
	resultsCmd := &cobra.Command{
		Use:   "results",
		Short: "Manage analysed videos stored on the backend",
	}
	resultsCmd.AddCommand(newResultsListCommand(ctx))
	resultsCmd.AddCommand(newResultsDeleteCommand(ctx))
	return resultsCmd
}

func newResultsListCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List analysed videos",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := ctx.client(cmd)
			if err != nil {
				return err
			}
			results, err := client.ListResults(cmd.Context())
			if err != nil {
				return err
			}
			sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
			if jsonOutput {
				return writeJSON(cmd, results)
			}
			if len(results) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No analysed videos")
				return nil
			}
			rows := make([][]string, 0, len(results))
			for _, res := range results {
				configName := ""
				if res.Config != nil {
					configName = fmt.Sprintf("%s (#%d)", res.Config.Name, res.Config.ID)
				}
				rows = append(rows, []string{
					strconv.FormatInt(res.ID, 10),
					res.NameOfAnalysis,
					res.VideoPath,
					formatSeconds(res.Duration),
					formatFloat(res.FPS),
					res.DateProcessed,
					configName,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Name", "Video", "Duration", "FPS", "Processed", "Configuration"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newResultsDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <video-id>",
		Short: "Delete an analysed video and its artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "video id")
			if err != nil {
				return err
			}
			client, _, err := ctx.client(cmd)
			if err != nil {
				return err
			}
			if err := client.DeleteResult(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted analysis %d\n", id)
			return nil
		},
	}
}

func newVideoCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "video <video-id>",
		Short: "Show metadata and detections of an analysed video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "video id")
			if err != nil {
				return err
			}
			client, _, err := ctx.client(cmd)
			if err != nil {
				return err
			}
			meta, err := client.VideoMetadata(cmd.Context(), id)
			if err != nil {
				return err
			}
			detections, err := client.Detections(cmd.Context(), id)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, runReport{Video: &meta, Detections: detections})
			}
			printVideoReport(cmd, &meta, detections)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

// loadResults fetches what the results view shows. Failures are logged and
// leave the corresponding part empty; the run itself already completed.
func loadResults(ctx context.Context, client *backend.Client, logger *slog.Logger, videoID int64) (*backend.VideoMetadata, []backend.Detection) {
	var video *backend.VideoMetadata
	meta, err := client.VideoMetadata(ctx, videoID)
	if err != nil {
		logging.WarnWithContext(logger, "video metadata unavailable", "results_unavailable",
			logging.Int64(logging.FieldVideoID, videoID),
			logging.Error(err),
		)
	} else {
		video = &meta
	}
	detections, err := client.Detections(ctx, videoID)
	if err != nil {
		logging.WarnWithContext(logger, "detections unavailable", "results_unavailable",
			logging.Int64(logging.FieldVideoID, videoID),
			logging.Error(err),
		)
	}
	return video, detections
}

func printVideoReport(cmd *cobra.Command, video *backend.VideoMetadata, detections []backend.Detection) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	fmt.Fprintln(out)
	for _, line := range renderSectionHeader("Results", colorize) {
		fmt.Fprintln(out, line)
	}
	if video != nil {
		fmt.Fprintf(out, "%sVideo id: %d\n", statusIndent, video.ID)
		if video.NameOfAnalysis != "" {
			fmt.Fprintf(out, "%sName: %s\n", statusIndent, video.NameOfAnalysis)
		}
		fmt.Fprintf(out, "%sPath: %s\n", statusIndent, video.VideoPath)
		fmt.Fprintf(out, "%sDuration: %s\n", statusIndent, formatSeconds(video.Duration))
		fmt.Fprintf(out, "%sFPS: %s\n", statusIndent, formatFloat(video.FPS))
		if video.DateProcessed != "" {
			fmt.Fprintf(out, "%sProcessed: %s\n", statusIndent, video.DateProcessed)
		}
	}
	if len(detections) == 0 {
		fmt.Fprintf(out, "%sNo detections\n", statusIndent)
		return
	}
	fps := 0.0
	if video != nil {
		fps = video.FPS
	}
	rows := make([][]string, 0, len(detections))
	for _, det := range detections {
		label, score := "-", ""
		if top, ok := det.TopAnomaly(); ok {
			label = top.Label
			score = formatFloat(top.Score)
		}
		rows = append(rows, []string{
			strconv.FormatInt(det.ID, 10),
			strconv.FormatInt(det.TrackID, 10),
			frameSpan(det.StartFrame, det.EndFrame, fps),
			formatFloat(det.Confidence),
			label,
			score,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"ID", "Track", "Frames", "Confidence", "Top anomaly", "Score"},
		rows,
		[]columnAlignment{alignRight, alignRight, alignLeft, alignRight, alignLeft, alignRight},
	))
}

// frameSpan renders a frame range, adding timestamps when the frame rate is
// known.
func frameSpan(start, end int64, fps float64) string {
	span := fmt.Sprintf("%d-%d", start, end)
	if fps <= 0 {
		return span
	}
	return fmt.Sprintf("%s (%s-%s)", span, formatSeconds(float64(start)/fps), formatSeconds(float64(end)/fps))
}

func formatSeconds(seconds float64) string {
	if seconds <= 0 {
		return "0s"
	}
	return time.Duration(seconds * float64(time.Second)).Round(100 * time.Millisecond).String()
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
