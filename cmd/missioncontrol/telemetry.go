package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jpalmerr/missioncontrol/config"
	"github.com/jpalmerr/missioncontrol/internal/dispatch"
	"github.com/jpalmerr/missioncontrol/internal/telemetry"
)

// telemetryCmd runs the probes and heartbeat against a remote server.
var telemetryCmd = &cobra.Command{
	Use:   "telemetry",
	Short: "Probe targets and report to a remote server",
	Long: `Run the target probes and the thermal heartbeat from this machine and
write the readings to a remote Mission Control server.

Only the targets and heartbeat sections of the config file are used. Use
this to report from a host other than the one serving the dashboard.

Example:
  missioncontrol telemetry -c config.yaml --server https://mc.example.com`,
	RunE: runTelemetry,
}

func init() {
	rootCmd.AddCommand(telemetryCmd)

	addRemoteFlags(telemetryCmd)
	telemetryCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = telemetryCmd.MarkFlagRequired("config")
}

func runTelemetry(cmd *cobra.Command, args []string) error {
	logger := newLogger(slog.LevelInfo)

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	client, err := remoteClient(cmd, logger)
	if err != nil {
		return err
	}
	d := dispatch.New(client, dispatch.WithLogger(logger))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scheduler := telemetry.NewScheduler(telemetryTargets(cfg), cfg.PollInterval.Duration(), cfg.MaxConcurrency, logger)
	scheduler.Start(ctx)

	var g errgroup.Group
	g.Go(func() error {
		telemetry.Publish(context.WithoutCancel(ctx), d, scheduler.Readings(), logger, func(r telemetry.Reading, ack dispatch.Ack) {
			if ack.Err != nil {
				return
			}
			logger.Info("reading written", "target", r.TargetID, "status", r.Status(), "latency", r.LatencyLabel())
		})
		return nil
	})

	if !cfg.Heartbeat.Disabled {
		name, cmdArgs := cfg.Heartbeat.HeartbeatArgs()
		hb := telemetry.NewHeartbeat(d,
			telemetry.WithSampler(telemetry.CommandSampler(name, cmdArgs...)),
			telemetry.WithHeartbeatInterval(cfg.Heartbeat.Interval.Duration()),
			telemetry.WithHeartbeatLogger(logger),
		)
		g.Go(func() error {
			return hb.Run(ctx)
		})
	}

	logger.Info("telemetry running", "targets", len(cfg.Targets), "heartbeat", !cfg.Heartbeat.Disabled)
	<-ctx.Done()
	scheduler.Stop()
	return g.Wait()
}

// telemetryTargets converts configured targets for the scheduler. Parse has
// already validated them.
func telemetryTargets(cfg *config.Config) []telemetry.Target {
	targets := make([]telemetry.Target, len(cfg.Targets))
	for i, tc := range cfg.Targets {
		name := tc.Name
		if name == "" {
			name = tc.ID
		}
		timeout := tc.Timeout.Duration()
		if timeout == 0 {
			timeout = telemetry.DefaultTimeout
		}
		targets[i] = telemetry.Target{
			ID:       tc.ID,
			Name:     name,
			URL:      tc.URL,
			Method:   tc.Method,
			Headers:  tc.Headers,
			Timeout:  timeout,
			Interval: tc.Interval.Duration(),
		}
	}
	return targets
}
