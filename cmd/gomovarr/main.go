package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/amaumene/gomovarr/internal/api"
	"github.com/amaumene/gomovarr/internal/config"
	"github.com/amaumene/gomovarr/internal/renamer"
	"github.com/amaumene/gomovarr/internal/scheduler"
	"github.com/amaumene/gomovarr/internal/utils"
	"github.com/amaumene/gomovarr/internal/watcher"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gomovarr",
		Short: "Rename finished movie downloads into a library",
		Long: `Gomovarr scans a downloads folder, identifies the movies in it and moves
them into a library with configurable names. It follows snatched releases
through qBittorrent and TorBox and renames them once they finish.

Without a subcommand it runs the scheduler, the HTTP API and (optionally)
the folder watcher.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newScanCmd())
	rootCmd.AddCommand(newCheckCmd())

	return rootCmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler, HTTP API and folder watcher",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan [folder]",
		Short: "Run the renamer once over the from folder, or over folder",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req renamer.Request
			if len(args) == 1 {
				req.BaseFolder = args[0]
			}
			return runOnce(cmd.Context(), func(ctx context.Context, a *app) error {
				if !a.renamer.Scan(ctx, req) {
					return fmt.Errorf("renamer is already running")
				}
				return nil
			})
		},
	}
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check snatched releases once and rename what finished",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), func(ctx context.Context, a *app) error {
				if !a.tracker.CheckSnatched(ctx) {
					return fmt.Errorf("snatched check is already running")
				}
				return nil
			})
		},
	}
}

func setup(parent context.Context) (context.Context, context.CancelFunc, *config.Config, *logrus.Logger, error) {
	if parent == nil {
		parent = context.Background()
	}

	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// 2. Setup logger
	logger := utils.NewLogger(cfg.LogLevel, cfg.LogFile)

	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	return ctx, cancel, cfg, logger, nil
}

func runOnce(parent context.Context, fn func(context.Context, *app) error) error {
	ctx, cancel, cfg, logger, err := setup(parent)
	if err != nil {
		return err
	}
	defer cancel()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

func runServe(parent context.Context) error {
	ctx, cancel, cfg, logger, err := setup(parent)
	if err != nil {
		return err
	}
	defer cancel()

	logger.Info("Starting Gomovarr")

	// 3. Build services
	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	// 4. Initialize scheduler
	sched := scheduler.NewScheduler(a.tracker, a.renamer, cfg.RunEveryMinutes, cfg.ForceEveryHours, logger)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	// 5. Start folder watcher
	watchErrChan := make(chan error, 1)
	if cfg.Watch {
		w, err := watcher.New(cfg.FromFolder, cfg.FileChangeWindow+watchSettle, a.renamer, logger)
		if err != nil {
			return err
		}
		go func() {
			if err := w.Run(ctx); err != nil {
				watchErrChan <- err
			}
		}()
	}

	// 6. Initialize HTTP server
	server := api.NewServer(cfg.ServerPort, api.Deps{
		Store:    a.db,
		Renamer:  a.renamer,
		Tracker:  a.tracker,
		Gatherer: a.registry,
	}, logger)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.Start(ctx)
	}()

	logger.Info("Gomovarr is running")

	// 7. Wait for shutdown
	select {
	case err := <-serverErrChan:
		if err != nil {
			return err
		}
	case err := <-watchErrChan:
		cancel()
		<-serverErrChan
		return fmt.Errorf("watcher error: %w", err)
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
		if err := <-serverErrChan; err != nil {
			logger.WithError(err).Error("Error during server shutdown")
		}
	}

	logger.Info("Gomovarr stopped")
	return nil
}
