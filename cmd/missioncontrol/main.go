// Package main is the entry point for the missioncontrol CLI.
//
// Mission Control can be run either as a library (SDK) or as a standalone
// binary with YAML configuration. This CLI provides the standalone binary
// and a few remote tools that talk to a running server.
//
// Usage:
//
//	missioncontrol serve -c config.yaml             # Start the dashboard
//	missioncontrol validate -c config.yaml          # Validate configuration
//	missioncontrol watch ledger --sum cost          # Follow a collection
//	missioncontrol set ledger run-1 cost=3.5        # Write one document
//	missioncontrol console "push focus ship it"     # Run a console line
//	missioncontrol telemetry -c config.yaml         # Probe and report remotely
//	missioncontrol token --secret $MC_SECRET        # Mint a write token
//	missioncontrol version                          # Show version info
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/missioncontrol/internal/docstore"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultServer = "http://localhost:8080"

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "missioncontrol",
	Short: "A realtime operations dashboard",
	Long: `Mission Control is a realtime operations dashboard backed by a
document store.

It keeps live listeners on the System_Status, ledger, Active_Agents and
config collections, shows spend, system health, thermal and agents in a web
UI, and accepts commands such as force-scrape and focus directives.

Quick start:
  1. Create a config file (missioncontrol.yaml)
  2. Run: missioncontrol serve -c missioncontrol.yaml
  3. Open http://localhost:8080 in your browser

Example config:
  port: 8080
  poll_interval: 30s
  targets:
    - id: main-api
      name: Main API
      url: https://api.example.com/health`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this missioncontrol binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "missioncontrol %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// newLogger creates a JSON logger for CLI use.
func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// addRemoteFlags registers the flags shared by commands that talk to a
// running server.
func addRemoteFlags(cmd *cobra.Command) {
	cmd.Flags().String("server", defaultServer, "base URL of the Mission Control server")
	cmd.Flags().String("token", "", "bearer token for writes (defaults to $MC_TOKEN)")
}

// remoteClient builds a document service for the server named by --server.
func remoteClient(cmd *cobra.Command, logger *slog.Logger) (*docstore.RemoteClient, error) {
	serverURL, _ := cmd.Flags().GetString("server")
	token, _ := cmd.Flags().GetString("token")
	if token == "" {
		token = os.Getenv("MC_TOKEN")
	}
	return docstore.NewRemoteClient(serverURL,
		docstore.WithToken(token),
		docstore.WithRemoteLogger(logger),
	)
}
