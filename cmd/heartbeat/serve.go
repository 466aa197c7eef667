package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jpalmerr/heartbeat"
	"github.com/jpalmerr/heartbeat/config"
)

const (
	shutdownTimeout = 10 * time.Second
)

// serveCmd starts monitoring.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the monitor",
	Long: `Start the heartbeat monitor.

The monitor will:
  - Load environment variables from --env-file, if given
  - Load configuration from the specified YAML file
  - Open the configured store and seed its users
  - Warm up every endpoint, then check them every interval
  - Serve status, health and metrics on the configured port

The monitor runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  heartbeat serve -c config.yaml
  heartbeat serve -c /etc/heartbeat/config.yaml --env-file /etc/heartbeat/.env`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	serveCmd.Flags().String("env-file", "", "dotenv file loaded before the config is read")
	_ = serveCmd.MarkFlagRequired("config")
}

func runServe(cmd *cobra.Command, args []string) error {
	if envFile, _ := cmd.Flags().GetString("env-file"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("failed to load env file: %w", err)
		}
	}

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("config loaded",
		zap.String("file", configFile),
		zap.String("store", cfg.Store.Driver),
		zap.Int("seed_users", len(cfg.Users)),
	)

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := config.OpenStore(ctx, cfg.Store, logger.Named("store"))
	if err != nil {
		return err
	}

	seeded, err := config.SeedUsers(ctx, st, cfg.Users)
	if err != nil {
		releaseStore(closeStore, logger)
		return fmt.Errorf("failed to seed users: %w", err)
	}
	if len(cfg.Users) > 0 {
		logger.Info("users seeded",
			zap.Int("inserted", seeded),
			zap.Int("existing", len(cfg.Users)-seeded),
		)
	}

	m, err := heartbeat.New(st, config.BuildOptions(cfg, logger)...)
	if err != nil {
		releaseStore(closeStore, logger)
		return fmt.Errorf("failed to create monitor: %w", err)
	}

	// start monitor - blocks until context cancelled
	errChan := make(chan error, 1)
	go func() {
		errChan <- m.Start(ctx)
	}()

	return awaitShutdown(ctx, errChan, shutdownTimeout, closeStore, logger)
}

// awaitShutdown waits for the monitor to return and then closes the store.
//
// Once ctx is done the monitor gets timeout to finish its in-flight writes.
// If it does not, the store is left open for process exit to release, since
// closing it would fail those writes.
func awaitShutdown(ctx context.Context, errChan <-chan error, timeout time.Duration, closeStore func() error, logger *zap.Logger) error {
	finish := func(err error) error {
		releaseStore(closeStore, logger)
		if err != nil {
			return fmt.Errorf("monitor error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil
	}

	select {
	case err := <-errChan:
		return finish(err)

	case <-ctx.Done():
		// signal received, wait for graceful shutdown with timeout
		select {
		case err := <-errChan:
			return finish(err)
		case <-time.After(timeout):
			logger.Warn("shutdown timed out",
				zap.Duration("timeout", timeout),
				zap.String("action", "forcing exit"),
				zap.String("store", "left open for in-flight writes"),
			)
			return nil
		}
	}
}

func releaseStore(closeStore func() error, logger *zap.Logger) {
	if err := closeStore(); err != nil {
		logger.Warn("failed to close store", zap.Error(err))
	}
}
