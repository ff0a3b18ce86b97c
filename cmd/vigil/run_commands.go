package main

import (
	"context"
	"fmt"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"vigil/internal/config"
	"vigil/internal/history"
	"vigil/internal/logging"
	"vigil/internal/notifications"
	"vigil/internal/pipeline"
	"vigil/internal/preflight"
	"vigil/internal/runconfig"
	"vigil/internal/runlock"
	"vigil/internal/services/backend"
	"vigil/internal/session"
	"vigil/internal/stage"
)

type runFlags struct {
	name           string
	categories     []string
	categoriesFile string
	settingsFile   string
	runConfigFile  string
	configID       int64
	skipPreflight  bool
	jsonOutput     bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.name, "name", "n", "", "Analysis name (defaults to a name derived from the video)")
	cmd.Flags().StringSliceVar(&f.categories, "categories", nil, "Anomaly categories, comma separated")
	cmd.Flags().StringVar(&f.categoriesFile, "categories-file", "", "YAML list of anomaly categories")
	cmd.Flags().StringVar(&f.settingsFile, "settings-file", "", "YAML settings mapping")
	cmd.Flags().StringVar(&f.runConfigFile, "run-config", "", "YAML document holding categories and settings")
	cmd.Flags().Int64Var(&f.configID, "config-id", 0, "Start from a configuration stored on the backend")
	cmd.Flags().BoolVar(&f.skipPreflight, "skip-preflight", false, "Skip readiness checks before the run")
	cmd.Flags().BoolVar(&f.jsonOutput, "json", false, "Output the run report as JSON")
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "run <video>",
		Short: "Upload a video and run every analysis stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return executeRun(cmd, ctx, flags, pipeline.Request{
				Mode:      stage.ModeFull,
				VideoPath: strings.TrimSpace(args[0]),
				RunName:   flags.name,
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newRerunCommand(ctx *commandContext) *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "rerun <video-id>",
		Short: "Rerun Recognition, Interpreter, and Visualization for an analysed video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			videoID, err := parseID(args[0], "video id")
			if err != nil {
				return err
			}
			return executeRun(cmd, ctx, flags, pipeline.Request{
				Mode:    stage.ModePartial,
				VideoID: videoID,
				RunName: flags.name,
				Session: &session.Context{VideoID: videoID, ConfigID: flags.configID},
			})
		},
	}
	flags.register(cmd)
	return cmd
}

// runReport is the JSON shape of a finished run.
type runReport struct {
	Outcome    pipeline.Outcome       `json:"outcome"`
	Video      *backend.VideoMetadata `json:"video,omitempty"`
	Detections []backend.Detection    `json:"detections,omitempty"`
	Preflight  []preflight.Result     `json:"preflight,omitempty"`
}

func executeRun(cmd *cobra.Command, ctx *commandContext, flags runFlags, req pipeline.Request) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client, logger, err := ctx.client(cmd)
	if err != nil {
		return err
	}

	runCfg, err := resolveRunConfiguration(signalCtx, cfg, client, flags)
	if err != nil {
		return err
	}
	if err := runCfg.Validate(); err != nil {
		return fmt.Errorf("%w: %w", pipeline.ErrInvalidConfiguration, err)
	}
	req.Config = runCfg

	var checks []preflight.Result
	if !flags.skipPreflight {
		checks = preflight.RunAll(signalCtx, cfg, client, req.VideoPath)
		if err := preflight.Err(checks); err != nil {
			if flags.jsonOutput {
				_ = writeJSON(cmd, runReport{Preflight: checks})
			}
			return err
		}
	}

	notifier := notifications.NewObserver(notifications.NewService(cfg), logger)
	defer notifier.Wait()

	lock, err := runlock.Acquire(cfg.LockPath())
	if err != nil {
		return err
	}
	defer lock.Release()

	observers := []pipeline.Observer{notifier}
	if !flags.jsonOutput {
		observers = append(observers, newConsoleBoard(cmd.OutOrStdout(), req.Mode))
	}
	if cfg.History.Enabled {
		store, err := history.Open(cfg)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer store.Close()
		if _, err := store.MarkInterrupted(signalCtx); err != nil {
			logging.WarnWithContext(logger, "mark interrupted runs", "history_cleanup_failed", logging.Error(err))
		}
		observers = append(observers, history.NewRecorder(store, logger))
	}

	orch := newOrchestrator(cfg, client, logger, observers...)
	outcome, runErr := orch.Run(signalCtx, req)
	report := runReport{Outcome: outcome, Preflight: checks}
	if runErr != nil {
		if flags.jsonOutput && outcome.Failed() {
			_ = writeJSON(cmd, report)
		}
		return runErr
	}

	if err := pause(signalCtx, cfg.ResultsDelay()); err != nil {
		return err
	}
	report.Video, report.Detections = loadResults(signalCtx, client, logger, outcome.VideoID)
	if flags.jsonOutput {
		return writeJSON(cmd, report)
	}
	printVideoReport(cmd, report.Video, report.Detections)
	return nil
}

// resolveRunConfiguration layers the run flags over the base configuration:
// a stored backend configuration, a run configuration file, or the
// configured defaults.
func resolveRunConfiguration(ctx context.Context, cfg *config.Config, client *backend.Client, flags runFlags) (runconfig.RunConfiguration, error) {
	var (
		rc  runconfig.RunConfiguration
		err error
	)
	switch {
	case flags.configID > 0:
		stored, getErr := client.GetConfiguration(ctx, flags.configID)
		if getErr != nil {
			return rc, fmt.Errorf("load configuration %d: %w", flags.configID, getErr)
		}
		rc = stored.RunConfiguration()
	case strings.TrimSpace(flags.runConfigFile) != "":
		rc, err = runconfig.Load(flags.runConfigFile)
	default:
		rc, err = defaultRunConfiguration(cfg)
	}
	if err != nil {
		return rc, err
	}
	if path := strings.TrimSpace(flags.categoriesFile); path != "" {
		if rc.Categories, err = runconfig.LoadCategories(path); err != nil {
			return rc, err
		}
	}
	if len(flags.categories) > 0 {
		rc.Categories = runconfig.NormalizeCategories(flags.categories)
	}
	if path := strings.TrimSpace(flags.settingsFile); path != "" {
		if rc.Settings, err = runconfig.LoadSettings(path); err != nil {
			return rc, err
		}
	}
	return rc, nil
}

func defaultRunConfiguration(cfg *config.Config) (runconfig.RunConfiguration, error) {
	rc := runconfig.Default()
	if path := cfg.Run.DefaultCategoriesFile; path != "" {
		categories, err := runconfig.LoadCategories(path)
		if err != nil {
			return rc, err
		}
		rc.Categories = categories
	}
	if path := cfg.Run.DefaultSettingsFile; path != "" {
		settings, err := runconfig.LoadSettings(path)
		if err != nil {
			return rc, err
		}
		rc.Settings = settings
	}
	return rc, nil
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func parseID(value, label string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", label, value)
	}
	return id, nil
}
