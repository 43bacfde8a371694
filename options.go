package missioncontrol

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// mcConfig holds mutable state during MissionControl construction.
type mcConfig struct {
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

// Option is a function that configures a [MissionControl] instance during
// construction. Options return an error if validation fails.
type Option func(*mcConfig) error

// WithTarget adds a single [Target] to the probe list. Can be called
// multiple times.
//
// Example:
//
//	mc, err := missioncontrol.New(
//	    missioncontrol.WithTarget(vps),
//	    missioncontrol.WithTarget(api),
//	)
func WithTarget(t Target) Option {
	return func(cfg *mcConfig) error {
		cfg.targets = append(cfg.targets, t)
		return nil
	}
}

// WithTargets adds multiple [Target] values to the probe list.
// Equivalent to calling [WithTarget] for each.
func WithTargets(targets ...Target) Option {
	return func(cfg *mcConfig) error {
		cfg.targets = append(cfg.targets, targets...)
		return nil
	}
}

// WithPollingInterval sets how often targets without their own interval
// are probed. Defaults to 30 seconds.
//
// Returns an error if the duration is zero or negative.
func WithPollingInterval(d time.Duration) Option {
	return func(cfg *mcConfig) error {
		if d <= 0 {
			return errors.New("polling interval must be positive")
		}
		cfg.pollingInterval = d
		return nil
	}
}

// WithPort sets the HTTP port for the dashboard and API. Defaults to 8080.
//
// Returns an error if the port is outside the valid range (1-65535).
func WithPort(port int) Option {
	return func(cfg *mcConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithMaxConcurrency limits how many targets are probed at once.
// Defaults to 10.
//
// Returns an error if the value is zero or negative.
func WithMaxConcurrency(n int) Option {
	return func(cfg *mcConfig) error {
		if n <= 0 {
			return errors.New("max concurrency must be positive")
		}
		cfg.maxConcurrency = n
		return nil
	}
}

// WithLogger sets a custom [slog.Logger]. If not specified, [slog.Default]
// is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *mcConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithReadingCallback registers a function called after every probe
// result has been written to System_Status.
//
// Callbacks run in registration order on a single goroutine and must not
// block. Panics are recovered and logged. Nil callbacks are ignored.
//
// Example:
//
//	mc, err := missioncontrol.New(
//	    missioncontrol.WithTarget(api),
//	    missioncontrol.WithReadingCallback(func(r missioncontrol.Reading) {
//	        if !r.Online {
//	            log.Printf("ALERT: %s is offline", r.Name)
//	        }
//	    }),
//	)
func WithReadingCallback(cb func(Reading)) Option {
	return func(cfg *mcConfig) error {
		if cb == nil {
			return nil
		}
		cfg.readingCallbacks = append(cfg.readingCallbacks, cb)
		return nil
	}
}

// WithTitle sets the dashboard title. Defaults to "Mission Control".
func WithTitle(title string) Option {
	return func(cfg *mcConfig) error {
		cfg.title = title
		return nil
	}
}

// WithDatabase persists documents in a SQLite file at path. Without it
// documents live in memory and are lost on shutdown.
func WithDatabase(path string) Option {
	return func(cfg *mcConfig) error {
		if path == "" {
			return errors.New("database path cannot be empty")
		}
		cfg.database = path
		return nil
	}
}

// WithDailyLimit sets the spend limit the burn widget measures against.
// Defaults to 10.00.
func WithDailyLimit(limit float64) Option {
	return func(cfg *mcConfig) error {
		if limit <= 0 {
			return errors.New("daily limit must be positive")
		}
		cfg.dailyLimit = limit
		return nil
	}
}

// WithSystems sets which System_Status documents appear as status cards,
// in order.
func WithSystems(ids ...string) Option {
	return func(cfg *mcConfig) error {
		if len(ids) == 0 {
			return errors.New("at least one system is required")
		}
		cfg.systems = append([]string(nil), ids...)
		return nil
	}
}

// WithAuthSecret requires an HS256 bearer token signed with secret on every
// write. Tokens are minted with [IssueToken]. Reads stay open.
func WithAuthSecret(secret string) Option {
	return func(cfg *mcConfig) error {
		if secret == "" {
			return errors.New("auth secret cannot be empty")
		}
		cfg.authSecret = secret
		return nil
	}
}

// WithHeartbeat sets how often the thermal heartbeat writes the CPU
// temperature. Zero disables it. Defaults to 10 seconds.
func WithHeartbeat(interval time.Duration) Option {
	return func(cfg *mcConfig) error {
		if interval < 0 {
			return errors.New("heartbeat interval cannot be negative")
		}
		cfg.heartbeatInterval = interval
		return nil
	}
}

// WithTemperatureSampler replaces the command that reads the CPU
// temperature for the heartbeat.
func WithTemperatureSampler(fn func(ctx context.Context) float64) Option {
	return func(cfg *mcConfig) error {
		if fn == nil {
			return errors.New("temperature sampler cannot be nil")
		}
		cfg.sampler = fn
		return nil
	}
}
