// Package config provides YAML configuration parsing for Mission Control.
//
// This package enables running Mission Control as a standalone binary with
// a configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	title: Mission Control
//	port: 8080
//	database: missioncontrol.db
//	auth_secret: ${MC_SECRET}
//	poll_interval: 30s
//	daily_limit: 10.00
//	systems: [main-api, firebase, hostinger-vps]
//
//	heartbeat:
//	  interval: 10s
//	  command: osx-cpu-temp
//
//	targets:
//	  - id: main-api
//	    name: Main API
//	    url: https://api.example.com/health
//	    timeout: 5s
package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"
	"gopkg.in/yaml.v3"
)

// minPollInterval is the minimum allowed polling interval.
// This prevents accidental DoS of targets with overly aggressive polling.
const minPollInterval = 1 * time.Second

// Defaults applied by [Parse].
const (
	DefaultPort              = 8080
	DefaultPollInterval      = 30 * time.Second
	DefaultDailyLimit        = 10.00
	DefaultHeartbeatInterval = 10 * time.Second
	DefaultHeartbeatCommand  = "osx-cpu-temp"
)

// DefaultSystems are the status cards shown when none are configured.
var DefaultSystems = []string{"main-api", "firebase", "hostinger-vps"}

// Config is the root configuration structure for Mission Control.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Title is the dashboard title. Defaults to "Mission Control" if not set.
	Title string `yaml:"title"`

	// Port is the HTTP server port. Defaults to 8080.
	Port int `yaml:"port"`

	// Database is the SQLite file documents persist to. Empty keeps
	// documents in memory. Supports environment variable substitution.
	Database string `yaml:"database"`

	// AuthSecret enables bearer-token auth on writes. Supports environment
	// variable substitution, and should normally come from one.
	AuthSecret string `yaml:"auth_secret"`

	// PollInterval is the time between target probes.
	// Accepts duration strings like "10s", "1m". Defaults to 30s.
	PollInterval Duration `yaml:"poll_interval"`

	// MaxConcurrency limits simultaneous probes. Defaults to 10.
	MaxConcurrency int `yaml:"max_concurrency"`

	// DailyLimit is the spend the burn widget measures against.
	// Defaults to 10.00.
	DailyLimit float64 `yaml:"daily_limit"`

	// Systems lists the System_Status documents shown as status cards.
	Systems []string `yaml:"systems"`

	// Heartbeat configures the thermal heartbeat.
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`

	// Targets are the systems probed for reachability.
	Targets []TargetConfig `yaml:"targets"`
}

// HeartbeatConfig configures the thermal heartbeat.
type HeartbeatConfig struct {
	// Disabled turns the heartbeat off.
	Disabled bool `yaml:"disabled"`

	// Interval is the time between samples. Defaults to 10s.
	Interval Duration `yaml:"interval"`

	// Command prints the CPU temperature, e.g. "52.1°C". It is split with
	// shell quoting rules into a program and its arguments. Defaults to
	// osx-cpu-temp.
	Command string `yaml:"command"`
}

// TargetConfig defines a single probed system.
type TargetConfig struct {
	// ID is the System_Status document readings are written to.
	ID string `yaml:"id"`

	// Name is the display name. Defaults to the id.
	Name string `yaml:"name"`

	// URL is probed for reachability.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	URL string `yaml:"url"`

	// Method is the HTTP method (GET, HEAD, POST). Defaults to GET.
	Method string `yaml:"method"`

	// Timeout is the probe timeout. Defaults to 5s.
	Timeout Duration `yaml:"timeout"`

	// Headers are custom HTTP headers sent with each probe.
	// Values support environment variable substitution.
	Headers map[string]string `yaml:"headers"`

	// Interval is the custom probe interval for this target.
	// If not specified, uses the global poll_interval.
	// Must be between 1s and 1h.
	Interval Duration `yaml:"interval"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// HeartbeatArgs splits Command into a program and its arguments. A command
// that does not parse falls back to the default.
func (h HeartbeatConfig) HeartbeatArgs() (string, []string) {
	fields, err := shellwords.Parse(h.Command)
	if err != nil || len(fields) == 0 {
		return DefaultHeartbeatCommand, nil
	}
	return fields[0], fields[1:]
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded before parsing.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in the database path, auth secret,
// target URLs and header values. Defaults are applied for anything unset.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.PollInterval == 0 {
		c.PollInterval = Duration(DefaultPollInterval)
	}
	if c.MaxConcurrency == 0 {
		c.MaxConcurrency = 10
	}
	if c.DailyLimit == 0 {
		c.DailyLimit = DefaultDailyLimit
	}
	if len(c.Systems) == 0 {
		c.Systems = append([]string(nil), DefaultSystems...)
	}
	if c.Heartbeat.Interval == 0 {
		c.Heartbeat.Interval = Duration(DefaultHeartbeatInterval)
	}
	if c.Heartbeat.Command == "" {
		c.Heartbeat.Command = DefaultHeartbeatCommand
	}
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.PollInterval.Duration() < minPollInterval {
		return fmt.Errorf("poll_interval must be at least %s, got %s", minPollInterval, c.PollInterval.Duration())
	}
	if c.MaxConcurrency < 0 {
		return fmt.Errorf("max_concurrency cannot be negative, got %d", c.MaxConcurrency)
	}
	if c.DailyLimit < 0 {
		return fmt.Errorf("daily_limit cannot be negative, got %v", c.DailyLimit)
	}
	if c.Heartbeat.Interval.Duration() < time.Second {
		return fmt.Errorf("heartbeat.interval must be at least 1s, got %s", c.Heartbeat.Interval.Duration())
	}
	if args, err := shellwords.Parse(c.Heartbeat.Command); err != nil {
		return fmt.Errorf("heartbeat.command: %w", err)
	} else if len(args) == 0 {
		return fmt.Errorf("heartbeat.command is empty")
	}

	var err error
	if c.Database, err = expandEnvVars(c.Database); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if c.AuthSecret, err = expandEnvVars(c.AuthSecret); err != nil {
		return fmt.Errorf("auth_secret: %w", err)
	}

	for i, id := range c.Systems {
		if !validDocumentID(id) {
			return fmt.Errorf("systems[%d]: invalid id %q", i, id)
		}
	}

	seen := make(map[string]struct{}, len(c.Targets))
	for i := range c.Targets {
		tc := &c.Targets[i]

		if tc.ID == "" {
			return fmt.Errorf("targets[%d]: id is required", i)
		}
		if !validDocumentID(tc.ID) {
			return fmt.Errorf("targets[%d]: invalid id %q", i, tc.ID)
		}
		if _, dup := seen[tc.ID]; dup {
			return fmt.Errorf("targets[%d] (%s): duplicate id", i, tc.ID)
		}
		seen[tc.ID] = struct{}{}

		if tc.URL == "" {
			return fmt.Errorf("targets[%d] (%s): url is required", i, tc.ID)
		}
		expanded, err := expandEnvVars(tc.URL)
		if err != nil {
			return fmt.Errorf("targets[%d] (%s): url: %w", i, tc.ID, err)
		}
		tc.URL = expanded

		parsedURL, err := url.Parse(tc.URL)
		if err != nil {
			return fmt.Errorf("targets[%d] (%s): invalid url: %w", i, tc.ID, err)
		}
		if parsedURL.Scheme == "" {
			return fmt.Errorf("targets[%d] (%s): url must have a scheme (http:// or https://)", i, tc.ID)
		}
		if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
			return fmt.Errorf("targets[%d] (%s): url scheme must be http or https, got %q", i, tc.ID, parsedURL.Scheme)
		}

		for k, v := range tc.Headers {
			expanded, err := expandEnvVars(v)
			if err != nil {
				return fmt.Errorf("targets[%d] (%s): headers[%s]: %w", i, tc.ID, k, err)
			}
			tc.Headers[k] = expanded
		}

		if tc.Method != "" && tc.Method != "GET" && tc.Method != "HEAD" && tc.Method != "POST" {
			return fmt.Errorf("targets[%d] (%s): method must be GET, HEAD, or POST", i, tc.ID)
		}

		if tc.Timeout != 0 {
			if tc.Timeout.Duration() < 0 {
				return fmt.Errorf("targets[%d] (%s): timeout cannot be negative, got %s",
					i, tc.ID, tc.Timeout.Duration())
			}
			if tc.Timeout.Duration() < time.Second {
				return fmt.Errorf("targets[%d] (%s): timeout must be at least 1s if specified, got %s",
					i, tc.ID, tc.Timeout.Duration())
			}
		}

		if tc.Interval != 0 {
			if tc.Interval.Duration() < time.Second {
				return fmt.Errorf("targets[%d] (%s): interval must be at least 1s, got %s",
					i, tc.ID, tc.Interval.Duration())
			}
			if tc.Interval.Duration() > time.Hour {
				return fmt.Errorf("targets[%d] (%s): interval must not exceed 1h, got %s",
					i, tc.ID, tc.Interval.Duration())
			}
		}
	}

	return nil
}

// validDocumentID mirrors the document store's id rules.
func validDocumentID(id string) bool {
	return id != "" && !strings.ContainsAny(id, "/\x00")
}
