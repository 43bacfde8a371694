package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/missioncontrol"
)

func main() {
	// start mock targets (see mock_server.go)
	go StartMockTargets(":9999")
	time.Sleep(100 * time.Millisecond)

	api, err := missioncontrol.NewTarget("main-api", "Main API", "http://localhost:9999/api/health")
	if err != nil {
		slog.Error("failed to create target", "error", err)
		os.Exit(1)
	}
	vps, err := missioncontrol.NewTarget("hostinger-vps", "Hostinger VPS", "http://localhost:9999/vps/health",
		missioncontrol.WithMethod("HEAD"),
		missioncontrol.WithInterval(10*time.Second),
	)
	if err != nil {
		slog.Error("failed to create target", "error", err)
		os.Exit(1)
	}

	mc, err := missioncontrol.New(
		missioncontrol.WithTitle("Mission Control Demo"),
		missioncontrol.WithTargets(api, vps),
		missioncontrol.WithPollingInterval(5*time.Second),
		missioncontrol.WithPort(8080),
		missioncontrol.WithHeartbeat(0),
		missioncontrol.WithReadingCallback(func(r missioncontrol.Reading) {
			if r.PublishErr != nil {
				slog.Warn("reading not stored", "target", r.TargetID, "error", r.PublishErr)
			}
		}),
	)
	if err != nil {
		slog.Error("failed to create mission control", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  Mission Control demo")
	fmt.Println()
	fmt.Println("  Open http://localhost:8080 in your browser")
	fmt.Println("  Targets: main-api (5s), hostinger-vps (10s, HEAD)")
	fmt.Println("  Targets drop offline for a while every 20-60s")
	fmt.Println()
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := mc.Start(ctx); err != nil {
		slog.Error("mission control error", "error", err)
		os.Exit(1)
	}
}
