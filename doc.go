// Package missioncontrol provides an embeddable operations dashboard backed
// by a realtime document store.
//
// A MissionControl instance owns a document store, keeps shared listeners on
// the collections the dashboard reads (System_Status, ledger, Active_Agents
// and config), serves the dashboard with its JSON, SSE and websocket API,
// probes configured targets and writes a thermal heartbeat.
//
// # Quick Start
//
//	api, _ := missioncontrol.NewTarget("main-api", "Main API", "https://api.example.com/health")
//	mc, _ := missioncontrol.New(missioncontrol.WithTarget(api))
//
//	// Set up graceful shutdown on SIGINT/SIGTERM
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	mc.Start(ctx) // blocks until context is cancelled
//
// # Configuration
//
// MissionControl uses the functional options pattern:
//
//	mc, err := missioncontrol.New(
//	    missioncontrol.WithTargets(api, vps),
//	    missioncontrol.WithPollingInterval(30 * time.Second),
//	    missioncontrol.WithDatabase("missioncontrol.db"),
//	    missioncontrol.WithDailyLimit(25),
//	    missioncontrol.WithAuthSecret(os.Getenv("MC_SECRET")),
//	)
//
// Targets take options too:
//
//	vps, err := missioncontrol.NewTarget("hostinger-vps", "VPS", "https://vps.example.com/",
//	    missioncontrol.WithHeaders("Authorization", "Bearer token"),
//	    missioncontrol.WithTimeout(3 * time.Second),
//	    missioncontrol.WithInterval(time.Minute),
//	)
//
// # Readings
//
// Every probe is merged into the target's System_Status document with its
// status, latency and load. [WithReadingCallback] observes each reading
// after the write, including whether the write failed.
//
// # Writes
//
// When [WithAuthSecret] is set, every write through the API needs a bearer
// token from [IssueToken]. Reads are never authenticated.
package missioncontrol
