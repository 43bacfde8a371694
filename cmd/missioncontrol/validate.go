package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/missioncontrol/config"
)

// validateCmd validates a config file without starting the server.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a Mission Control configuration file without starting the server.

This command parses the YAML, expands environment variables, and validates
all fields. It's useful for CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  missioncontrol validate -c config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	storage := "memory"
	if cfg.Database != "" {
		storage = cfg.Database
	}
	heartbeat := cfg.Heartbeat.Interval.Duration().String()
	if cfg.Heartbeat.Disabled {
		heartbeat = "disabled"
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Port:          %d\n", cfg.Port)
	fmt.Fprintf(out, "  Poll interval: %s\n", cfg.PollInterval.Duration())
	fmt.Fprintf(out, "  Storage:       %s\n", storage)
	fmt.Fprintf(out, "  Write auth:    %t\n", cfg.AuthSecret != "")
	fmt.Fprintf(out, "  Daily limit:   %.2f\n", cfg.DailyLimit)
	fmt.Fprintf(out, "  Systems:       %s\n", strings.Join(cfg.Systems, ", "))
	fmt.Fprintf(out, "  Heartbeat:     %s\n", heartbeat)
	fmt.Fprintf(out, "  Targets:       %d\n", len(cfg.Targets))

	return nil
}
