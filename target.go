package missioncontrol

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/jpalmerr/missioncontrol/internal/docstore"
)

const defaultTargetTimeout = 5 * time.Second

// Target is a system whose reachability is reported on the dashboard.
//
// Target is immutable after creation via [NewTarget]. All fields are
// private with getter methods that return copies of mutable data (maps),
// ensuring the target cannot be modified after construction.
//
// Each probe result is written to the System_Status document named by
// [Target.ID].
type Target struct {
	id       string
	name     string
	url      string
	headers  map[string]string
	timeout  time.Duration
	method   string
	interval time.Duration
}

// ID returns the System_Status document the target reports to.
func (t Target) ID() string {
	return t.id
}

// Name returns the display name written with each reading.
func (t Target) Name() string {
	return t.name
}

// URL returns the probed URL.
func (t Target) URL() string {
	return t.url
}

// Headers returns a copy of the custom HTTP headers sent with every probe.
// Returns nil if no custom headers are set.
func (t Target) Headers() map[string]string {
	return copyMap(t.headers)
}

// Timeout returns the probe timeout. Defaults to 5 seconds.
func (t Target) Timeout() time.Duration {
	return t.timeout
}

// Method returns the HTTP method, or "" for GET.
func (t Target) Method() string {
	return t.method
}

// Interval returns the target's own probe interval, or 0 to use the global
// polling interval.
func (t Target) Interval() time.Duration {
	return t.interval
}

// NewTarget creates a [Target].
//
// id must be a valid document id; name defaults to id when empty. rawURL
// must have an http or https scheme.
//
// Example:
//
//	api, err := missioncontrol.NewTarget("main-api", "Main API", "https://api.example.com/health",
//	    missioncontrol.WithTimeout(3 * time.Second),
//	)
func NewTarget(id, name, rawURL string, opts ...TargetOption) (Target, error) {
	if err := docstore.ValidateDocumentID(id); err != nil {
		return Target{}, fmt.Errorf("target id %q: %w", id, err)
	}
	if name == "" {
		name = id
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return Target{}, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return Target{}, errors.New("URL must have a scheme (http:// or https://)")
	}

	cfg := &targetConfig{
		headers: make(map[string]string),
		timeout: defaultTargetTimeout,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return Target{}, err
		}
	}

	return Target{
		id:       id,
		name:     name,
		url:      rawURL,
		headers:  cfg.headers,
		timeout:  cfg.timeout,
		method:   cfg.method,
		interval: cfg.interval,
	}, nil
}

// targetConfig holds mutable state during target construction.
type targetConfig struct {
	headers  map[string]string
	timeout  time.Duration
	method   string
	interval time.Duration
}

// TargetOption configures a [Target] during construction.
type TargetOption func(*targetConfig) error

// WithHeaders adds HTTP headers to every probe of the target. Accepts
// key-value pairs; an odd number of arguments is an error.
func WithHeaders(keyValues ...string) TargetOption {
	return func(cfg *targetConfig) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithHeaders requires an even number of arguments (key-value pairs)")
		}
		for i := 0; i < len(keyValues); i += 2 {
			cfg.headers[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}

// WithTimeout sets the probe timeout. A target that does not answer in
// time is reported offline.
func WithTimeout(d time.Duration) TargetOption {
	return func(cfg *targetConfig) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		cfg.timeout = d
		return nil
	}
}

// WithMethod sets the probe method: GET (default), HEAD or POST.
func WithMethod(method string) TargetOption {
	return func(cfg *targetConfig) error {
		switch method {
		case http.MethodGet, http.MethodHead, http.MethodPost:
			cfg.method = method
			return nil
		default:
			return errors.New("method must be GET, HEAD, or POST")
		}
	}
}

// WithInterval probes this target at its own interval, between 1 second
// and 1 hour.
//
// The interval is measured from when a probe starts, not when it completes.
func WithInterval(d time.Duration) TargetOption {
	return func(cfg *targetConfig) error {
		if d < time.Second {
			return errors.New("interval must be at least 1 second")
		}
		if d > time.Hour {
			return errors.New("interval must not exceed 1 hour")
		}
		cfg.interval = d
		return nil
	}
}

// copyMap returns a shallow copy of the map.
func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
