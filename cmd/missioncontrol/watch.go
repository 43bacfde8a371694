package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/missioncontrol/internal/subscription"
)

// watchCmd follows one collection on a running server.
var watchCmd = &cobra.Command{
	Use:   "watch <collection>",
	Short: "Print a collection every time it changes",
	Long: `Subscribe to a collection on a running Mission Control server and print
the full document list on every snapshot.

Each view shows its availability (live, stale, loading or unavailable).
The listener is never reopened: if it fails, the error is printed and the
command exits with code 1.

Example:
  missioncontrol watch ledger --sum cost
  missioncontrol watch System_Status --server http://mc.internal:8080
  missioncontrol watch config --once`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	addRemoteFlags(watchCmd)
	watchCmd.Flags().String("sum", "", "numeric field to total across documents")
	watchCmd.Flags().Bool("once", false, "print the first snapshot and exit")
	watchCmd.Flags().Duration("timeout", 10*time.Second, "how long --once waits for the first snapshot")
}

func runWatch(cmd *cobra.Command, args []string) error {
	logger := newLogger(slog.LevelWarn)
	client, err := remoteClient(cmd, logger)
	if err != nil {
		return err
	}

	sumField, _ := cmd.Flags().GetString("sum")
	once, _ := cmd.Flags().GetBool("once")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := subscription.NewManager(client, subscription.WithLogger(logger)).NewStore()
	defer store.Close()

	views := make(chan subscription.View)
	h, err := store.Subscribe(args[0], func(v subscription.View) {
		if once {
			return
		}
		select {
		case views <- v:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if once {
		awaitCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		v, err := subscription.Await(awaitCtx, h)
		if err != nil {
			return fmt.Errorf("no snapshot from %s: %w", args[0], err)
		}
		fmt.Fprint(out, renderView(v, sumField))
		if v.State == subscription.Errored {
			return v.Err
		}
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case v := <-views:
			fmt.Fprint(out, renderView(v, sumField))
			if v.State == subscription.Errored {
				return v.Err
			}
		}
	}
}
