package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vigil/internal/preflight"
	"vigil/internal/runlock"
)

type statusReport struct {
	ConfigPath    string             `json:"config_path"`
	BackendURL    string             `json:"backend_url"`
	Checks        []preflight.Result `json:"checks"`
	RunInProgress bool               `json:"run_in_progress"`
	Notifications bool               `json:"notifications"`
	History       bool               `json:"history"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show backend reachability and local readiness",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, _, err := ctx.client(cmd)
			if err != nil {
				return err
			}
			held, err := runlock.Held(cfg.LockPath())
			if err != nil {
				return err
			}
			report := statusReport{
				ConfigPath:    ctx.configPath,
				BackendURL:    client.BaseURL(),
				Checks:        preflight.RunAll(cmd.Context(), cfg, client, ""),
				RunInProgress: held,
				Notifications: cfg.Notifications.NtfyTopic != "",
				History:       cfg.History.Enabled,
			}
			if jsonOutput {
				return writeJSON(cmd, report)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for _, line := range renderSectionHeader("Vigil", colorize) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintf(out, "%sConfig: %s\n", statusIndent, report.ConfigPath)
			fmt.Fprintf(out, "%sBackend: %s\n", statusIndent, report.BackendURL)
			for _, check := range report.Checks {
				kind := statusOK
				if !check.Passed {
					kind = statusError
				}
				fmt.Fprintln(out, renderStatusLine(check.Name, kind, check.Detail, colorize))
			}
			runState := "Idle"
			if held {
				runState = "Another process is running an analysis"
			}
			fmt.Fprintln(out, renderStatusLine("Run", statusInfo, runState, colorize))
			fmt.Fprintln(out, renderStatusLine("Notifications", statusInfo, yesNo(report.Notifications), colorize))
			fmt.Fprintln(out, renderStatusLine("History", statusInfo, yesNo(report.History), colorize))
			if err := preflight.Err(report.Checks); err != nil {
				return err
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
