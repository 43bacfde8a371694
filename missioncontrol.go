package missioncontrol

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jpalmerr/missioncontrol/dashboard"
	"github.com/jpalmerr/missioncontrol/internal/board"
	"github.com/jpalmerr/missioncontrol/internal/dispatch"
	"github.com/jpalmerr/missioncontrol/internal/docstore"
	"github.com/jpalmerr/missioncontrol/internal/server"
	"github.com/jpalmerr/missioncontrol/internal/subscription"
	"github.com/jpalmerr/missioncontrol/internal/telemetry"
)

const (
	defaultPollingInterval = telemetry.DefaultInterval
	defaultPort            = 8080
	defaultMaxConcurrency  = 10
)

// store is a document service the orchestrator owns and closes.
type store interface {
	docstore.Service
	Close() error
}

// MissionControl runs the document store, the dashboard and its API, the
// target probes and the thermal heartbeat as one unit.
//
// It is created using [New] with functional options and started with
// [MissionControl.Start]:
//
//	mc, err := missioncontrol.New(missioncontrol.WithTarget(api))
//	if err != nil {
//	    slog.Error("failed to create mission control", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	mc.Start(ctx) // blocks until context cancelled
type MissionControl struct {
	title             string
	targets           []Target
	pollingInterval   time.Duration
	port              int
	maxConcurrency    int
	logger            *slog.Logger
	readingCallbacks  []func(Reading)
	database          string
	dailyLimit        float64
	systems           []string
	authSecret        string
	heartbeatInterval time.Duration
	sampler           func(context.Context) float64
}

// New creates a [MissionControl] with the given options.
//
// Targets are optional; without any, System_Status is only written by the
// heartbeat and by clients. Defaults:
//   - Polling interval: 30 seconds
//   - Port: 8080
//   - Max concurrency: 10
//   - Heartbeat: every 10 seconds
//   - Storage: in memory
//
// Returns an error if any option is invalid or two targets share an id.
func New(opts ...Option) (*MissionControl, error) {
	cfg := &mcConfig{
		targets:           []Target{},
		pollingInterval:   defaultPollingInterval,
		port:              defaultPort,
		maxConcurrency:    defaultMaxConcurrency,
		dailyLimit:        board.DefaultDailyLimit,
		heartbeatInterval: telemetry.DefaultHeartbeatInterval,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	// ids name System_Status documents, so two targets would overwrite each other
	seen := make(map[string]bool, len(cfg.targets))
	for _, t := range cfg.targets {
		if seen[t.id] {
			return nil, fmt.Errorf("duplicate target id: %q", t.id)
		}
		seen[t.id] = true
	}

	if cfg.port < 1 || cfg.port > 65535 {
		return nil, fmt.Errorf("port must be between 1 and 65535, got %d", cfg.port)
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	return &MissionControl{
		title:             cfg.title,
		targets:           cfg.targets,
		pollingInterval:   cfg.pollingInterval,
		port:              cfg.port,
		maxConcurrency:    cfg.maxConcurrency,
		logger:            logger,
		readingCallbacks:  cfg.readingCallbacks,
		database:          cfg.database,
		dailyLimit:        cfg.dailyLimit,
		systems:           cfg.systems,
		authSecret:        cfg.authSecret,
		heartbeatInterval: cfg.heartbeatInterval,
		sampler:           cfg.sampler,
	}, nil
}

// Start opens the store, serves the dashboard and API, and runs the probes
// and heartbeat.
//
// Start is a blocking call that runs until the provided context is
// cancelled:
//
//   - Targets are probed immediately, then at their intervals
//   - Each reading is merged into its System_Status document
//   - The heartbeat writes System_Status/thermal
//   - The dashboard is available at http://localhost:<port>
//
// Returns nil on graceful shutdown. Returns an error if the store cannot be
// opened or the HTTP server fails to start.
func (mc *MissionControl) Start(ctx context.Context) error {
	mc.logger.Info("mission control starting", "target_count", len(mc.targets))
	mc.logger.Info("polling configured", "interval", mc.pollingInterval.String())
	mc.logger.Info("dashboard available", "url", fmt.Sprintf("http://localhost:%d", mc.port))

	if ctx.Err() != nil {
		return nil
	}

	svc, err := mc.openStore()
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			mc.logger.Error("failed to close store", "error", err)
		}
	}()

	manager := subscription.NewManager(svc, subscription.WithLogger(mc.logger))
	dispatcher := dispatch.New(svc, dispatch.WithLogger(mc.logger))

	b := board.New(manager,
		board.WithTitle(mc.title),
		board.WithDailyLimit(mc.dailyLimit),
		board.WithSystems(mc.systems...),
		board.WithLogger(mc.logger),
	)
	if err := b.Open(); err != nil {
		return fmt.Errorf("failed to open board: %w", err)
	}
	defer b.Close()

	var serverOpts []server.Option
	if mc.authSecret != "" {
		auth, err := server.NewAuthenticator(mc.authSecret)
		if err != nil {
			return fmt.Errorf("failed to configure auth: %w", err)
		}
		serverOpts = append(serverOpts, server.WithAuthenticator(auth))
	}

	httpServer := server.NewServer(server.Backend{
		Board:      b,
		Manager:    manager,
		Dispatcher: dispatcher,
	}, mc.port, dashboard.Assets, mc.title, mc.logger, serverOpts...)
	if err := httpServer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	scheduler := telemetry.NewScheduler(mc.telemetryTargets(), mc.pollingInterval, mc.maxConcurrency, mc.logger)
	scheduler.Start(ctx)

	var g errgroup.Group

	// readings already taken are still written after cancellation
	g.Go(func() error {
		telemetry.Publish(context.WithoutCancel(ctx), dispatcher, scheduler.Readings(), mc.logger, mc.onReading)
		return nil
	})

	if mc.heartbeatInterval > 0 {
		hbOpts := []telemetry.HeartbeatOption{
			telemetry.WithHeartbeatInterval(mc.heartbeatInterval),
			telemetry.WithHeartbeatLogger(mc.logger),
		}
		if mc.sampler != nil {
			hbOpts = append(hbOpts, telemetry.WithSampler(mc.sampler))
		}
		heartbeat := telemetry.NewHeartbeat(dispatcher, hbOpts...)
		g.Go(func() error {
			return heartbeat.Run(ctx)
		})
	}

	<-ctx.Done()
	scheduler.Stop() // closes the readings channel
	if err := g.Wait(); err != nil {
		mc.logger.Error("background task failed", "error", err)
	}
	mc.logger.Info("mission control stopped")
	return nil
}

func (mc *MissionControl) openStore() (store, error) {
	if mc.database == "" {
		return docstore.NewMemoryStore(), nil
	}
	s, err := docstore.OpenSQLite(mc.database)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	mc.logger.Info("documents persisted", "path", mc.database)
	return s, nil
}

// telemetryTargets converts Target values for the scheduler.
func (mc *MissionControl) telemetryTargets() []telemetry.Target {
	result := make([]telemetry.Target, len(mc.targets))
	for i, t := range mc.targets {
		result[i] = telemetry.Target{
			ID:       t.id,
			Name:     t.name,
			URL:      t.url,
			Method:   t.method,
			Headers:  copyMap(t.headers),
			Timeout:  t.timeout,
			Interval: t.interval,
		}
	}
	return result
}

// onReading logs a written reading and passes it to the callbacks.
func (mc *MissionControl) onReading(r telemetry.Reading, ack dispatch.Ack) {
	logAttrs := []any{
		"status", r.Status(),
		"target", r.TargetID,
		"latency_ms", r.Latency.Milliseconds(),
	}
	if r.Err != nil {
		mc.logger.Warn("probe completed with error", append(logAttrs, "error", r.Err.Error())...)
	} else {
		mc.logger.Debug("probe completed", logAttrs...)
	}

	if len(mc.readingCallbacks) == 0 {
		return
	}
	public := Reading{
		TargetID:   r.TargetID,
		Name:       r.Name,
		Online:     r.Online,
		Latency:    r.Latency,
		StatusCode: r.StatusCode,
		Load:       r.Load,
		CheckedAt:  r.CheckedAt,
		Err:        r.Err,
		PublishErr: ack.Err,
	}
	for _, cb := range mc.readingCallbacks {
		invokeCallbackSafe(cb, public, mc.logger)
	}
}

// Targets returns a copy of the configured targets.
func (mc *MissionControl) Targets() []Target {
	cp := make([]Target, len(mc.targets))
	copy(cp, mc.targets)
	return cp
}

// Port returns the configured HTTP port.
func (mc *MissionControl) Port() int {
	return mc.port
}

// PollingInterval returns the configured interval between probes.
func (mc *MissionControl) PollingInterval() time.Duration {
	return mc.pollingInterval
}

// IssueToken mints a bearer token for writes against a server configured
// with [WithAuthSecret] and the same secret.
func IssueToken(secret, subject string, ttl time.Duration) (string, error) {
	auth, err := server.NewAuthenticator(secret)
	if err != nil {
		return "", err
	}
	return auth.Issue(subject, ttl)
}

// invokeCallbackSafe calls a reading callback with panic recovery.
// Panics are logged but do not propagate.
func invokeCallbackSafe(cb func(Reading), r Reading, logger *slog.Logger) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("reading callback panicked",
				"panic", p,
				"target", r.TargetID,
			)
		}
	}()
	cb(r)
}
