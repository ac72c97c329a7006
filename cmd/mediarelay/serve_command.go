package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"mediarelay/internal/api"
	"mediarelay/internal/config"
	"mediarelay/internal/engine"
	"mediarelay/internal/logging"
	"mediarelay/internal/preflight"
	"mediarelay/internal/scheduler"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var noAPI bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the periodic scheduler and the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, !noAPI)
		},
	}
	cmd.Flags().BoolVar(&noAPI, "no-api", false, "Run the scheduler without the HTTP API")
	return cmd
}

func runServe(cmdCtx context.Context, cfg *config.Config, withAPI bool) error {
	if cmdCtx == nil {
		cmdCtx = context.Background()
	}
	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	pidPath := filepath.Join(cfg.Paths.DataDir, "mediarelay.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	logPreflight(signalCtx, logger, cfg)

	eng, err := engine.Open(cfg, logger)
	if err != nil {
		logger.Error("open engine", logging.Error(err))
		return err
	}
	defer eng.Close()

	sched, err := scheduler.New(cfg, scheduler.EngineRunner(eng), logger)
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	if err := sched.Start(signalCtx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	if withAPI {
		server, err := api.NewServer(eng, logger)
		if err != nil {
			return err
		}
		if err := server.Start(signalCtx); err != nil {
			return err
		}
		defer server.Stop()
	}

	logger.Info("mediarelay serving",
		logging.String(logging.FieldEventType, "serve_started"),
		logging.String(logging.FieldChannel, eng.ChannelName()),
		logging.Bool("api", withAPI),
	)
	<-signalCtx.Done()
	logger.Info("mediarelay shutting down")
	return nil
}

func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	for _, result := range preflight.RunAll(ctx, cfg) {
		if result.Passed {
			continue
		}
		impact := "dependent operations will fail until fixed"
		if result.Optional {
			impact = "optional feature unavailable"
		}
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldImpact, impact),
		)
	}
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
