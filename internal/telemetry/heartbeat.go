package telemetry

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/jpalmerr/missioncontrol/internal/dispatch"
)

const (
	// ThermalDocument is the System_Status document the heartbeat writes.
	ThermalDocument = "thermal"

	// DefaultHeartbeatInterval is how often the heartbeat samples.
	DefaultHeartbeatInterval = 10 * time.Second

	// DefaultTempCommand prints the CPU temperature, e.g. "52.1°C".
	DefaultTempCommand = "osx-cpu-temp"

	unparsedTemperature = 42
)

// Sampler returns a CPU temperature in degrees Celsius.
type Sampler func(ctx context.Context) float64

// CommandSampler runs name with args and parses its output. If the command
// fails the sample is a random 40 to 50; unparseable output gives 42.
func CommandSampler(name string, args ...string) Sampler {
	return func(ctx context.Context) float64 {
		out, err := exec.CommandContext(ctx, name, args...).Output()
		if err != nil {
			return float64(rand.IntN(11) + 40)
		}
		return ParseTemperature(string(out))
	}
}

// ParseTemperature reads output such as "52.1°C". Unparseable output
// gives 42.
func ParseTemperature(s string) float64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, "°C", ""))
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) {
		return unparsedTemperature
	}
	return f
}

// Heartbeat periodically writes the CPU temperature to System_Status/thermal.
type Heartbeat struct {
	dispatcher *dispatch.Dispatcher
	sample     Sampler
	interval   time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// HeartbeatOption configures a [Heartbeat].
type HeartbeatOption func(*Heartbeat)

// WithSampler replaces the default command sampler.
func WithSampler(s Sampler) HeartbeatOption {
	return func(h *Heartbeat) {
		if s != nil {
			h.sample = s
		}
	}
}

// WithHeartbeatInterval sets the sampling interval.
func WithHeartbeatInterval(d time.Duration) HeartbeatOption {
	return func(h *Heartbeat) {
		if d > 0 {
			h.interval = d
		}
	}
}

// WithHeartbeatLogger sets the heartbeat's logger.
func WithHeartbeatLogger(logger *slog.Logger) HeartbeatOption {
	return func(h *Heartbeat) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHeartbeat creates a heartbeat that writes through d.
func NewHeartbeat(d *dispatch.Dispatcher, opts ...HeartbeatOption) *Heartbeat {
	h := &Heartbeat{
		dispatcher: d,
		sample:     CommandSampler(DefaultTempCommand),
		interval:   DefaultHeartbeatInterval,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Beat takes one sample and writes it.
func (h *Heartbeat) Beat(ctx context.Context) dispatch.Ack {
	temp := h.sample(ctx)
	ack := h.dispatcher.Dispatch(ctx, dispatch.StatusCollection, ThermalDocument, map[string]any{
		"cpu_temp":     temp,
		"last_updated": h.now().UTC().Format(time.RFC3339Nano),
		"status":       StatusOnline,
	})
	if ack.OK() {
		h.logger.Debug("thermal pulse", "cpu_temp", temp)
	}
	return ack
}

// Run beats once immediately and then every interval until ctx is done.
// Failed writes are logged by the dispatcher and do not stop the loop.
func (h *Heartbeat) Run(ctx context.Context) error {
	h.Beat(ctx)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			h.Beat(ctx)
		}
	}
}
