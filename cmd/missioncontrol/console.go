package main

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/missioncontrol/internal/dispatch"
)

// consoleCmd runs one console line against a running server.
var consoleCmd = &cobra.Command{
	Use:   "console <input>",
	Short: "Run one operator console line",
	Long: `Run a console line the way the dashboard console does.

"push focus <text>" creates a focus directive. "force scrape" raises the
scrape flag on System_Status/control. Anything else is accepted and
ignored.

Example:
  missioncontrol console "push focus review the ledger"
  missioncontrol console force scrape`,
	Args: cobra.MinimumNArgs(1),
	RunE: runConsole,
}

func init() {
	rootCmd.AddCommand(consoleCmd)

	addRemoteFlags(consoleCmd)
}

func runConsole(cmd *cobra.Command, args []string) error {
	input := strings.Join(args, " ")

	logger := newLogger(slog.LevelWarn)
	client, err := remoteClient(cmd, logger)
	if err != nil {
		return err
	}
	d := dispatch.New(client, dispatch.WithLogger(logger), dispatch.WithTimeout(10*time.Second))

	out := cmd.OutOrStdout()
	if strings.EqualFold(strings.TrimSpace(input), "force scrape") {
		ack := d.ForceScrape(cmd.Context())
		if ack.Err != nil {
			return ack.Err
		}
		fmt.Fprintf(out, "scrape requested (%s/%s)\n", ack.Collection, ack.DocumentID)
		return nil
	}

	ack, handled, err := d.RunConsole(cmd.Context(), input, time.Now())
	if err != nil {
		return err
	}
	if !handled {
		fmt.Fprintln(out, "ignored: not a command")
		return nil
	}
	if ack.Err != nil {
		return ack.Err
	}
	fmt.Fprintf(out, "directive pushed (%s/%s)\n", ack.Collection, ack.DocumentID)
	return nil
}
