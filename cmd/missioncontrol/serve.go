package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/missioncontrol"
	"github.com/jpalmerr/missioncontrol/config"
	"github.com/jpalmerr/missioncontrol/internal/telemetry"
)

const (
	shutdownTimeout = 10 * time.Second
)

// serveCmd starts the Mission Control dashboard server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard server",
	Long: `Start the Mission Control dashboard server.

The server will:
  - Load configuration from the specified YAML file
  - Open the document store (SQLite when 'database' is set)
  - Probe all configured targets and write the thermal heartbeat
  - Serve the dashboard UI and API on the configured port

The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  missioncontrol serve -c config.yaml
  missioncontrol serve --config /etc/missioncontrol/config.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	serveCmd.Flags().Bool("debug", false, "log at debug level")
	_ = serveCmd.MarkFlagRequired("config")
}

func runServe(cmd *cobra.Command, args []string) error {
	debug, _ := cmd.Flags().GetBool("debug")
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := newLogger(level)

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Info("config loaded",
		"targets", len(cfg.Targets),
		"persistent", cfg.Database != "",
		"auth", cfg.AuthSecret != "",
	)

	opts, err := config.BuildOptions(cfg)
	if err != nil {
		return fmt.Errorf("failed to build options: %w", err)
	}
	name, cmdArgs := cfg.Heartbeat.HeartbeatArgs()
	opts = append(opts,
		missioncontrol.WithLogger(logger),
		missioncontrol.WithTemperatureSampler(telemetry.CommandSampler(name, cmdArgs...)),
	)

	mc, err := missioncontrol.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create Mission Control: %w", err)
	}

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		errChan <- mc.Start(ctx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		// signal received, wait for graceful shutdown with timeout
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}
