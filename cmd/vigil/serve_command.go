package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"vigil/internal/api"
	"vigil/internal/events"
	"vigil/internal/history"
	"vigil/internal/logging"
	"vigil/internal/notifications"
	"vigil/internal/pipeline"
	"vigil/internal/preflight"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the local control API for UI observers",
		RunE: func(cmd *cobra.Command, args []string) error {
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
			defaults, err := defaultRunConfiguration(cfg)
			if err != nil {
				return err
			}

			bus := events.NewBus(0)
			notifier := notifications.NewObserver(notifications.NewService(cfg), logger)
			observers := []pipeline.Observer{bus, notifier}
			var store *history.Store
			if cfg.History.Enabled {
				store, err = history.Open(cfg)
				if err != nil {
					return fmt.Errorf("open history: %w", err)
				}
				defer store.Close()
				if err := reconcileHistory(signalCtx, cfg, store); err != nil {
					logging.WarnWithContext(logger, "reconcile history", "history_cleanup_failed", logging.Error(err))
				}
				observers = append(observers, history.NewRecorder(store, logger))
			}

			server := api.New(api.Deps{
				Runner:   newOrchestrator(cfg, client, logger, observers...),
				Videos:   client,
				Events:   bus,
				History:  store,
				Defaults: defaults,
				Preflight: func(reqCtx context.Context, videoPath string) error {
					return preflight.Err(preflight.RunAll(reqCtx, cfg, client, videoPath))
				},
				LockPath:   cfg.LockPath(),
				Logger:     logger,
				RunContext: signalCtx,
			})

			addr := strings.TrimSpace(bind)
			if addr == "" {
				addr = cfg.Paths.APIBind
			}
			err = server.ListenAndServe(signalCtx, addr)
			server.Wait()
			notifier.Wait()
			return err
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "Listen address (defaults to [paths] api_bind)")
	return cmd
}
