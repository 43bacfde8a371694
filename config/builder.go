package config

import (
	"sort"

	"github.com/jpalmerr/missioncontrol"
)

// BuildTargets converts parsed configuration into SDK Target objects, in
// file order.
func BuildTargets(cfg *Config) ([]missioncontrol.Target, error) {
	targets := make([]missioncontrol.Target, 0, len(cfg.Targets))
	for _, tc := range cfg.Targets {
		t, err := buildTarget(tc)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, nil
}

// BuildOptions converts everything but the heartbeat sampler into SDK
// options.
func BuildOptions(cfg *Config) ([]missioncontrol.Option, error) {
	targets, err := BuildTargets(cfg)
	if err != nil {
		return nil, err
	}

	opts := []missioncontrol.Option{
		missioncontrol.WithTargets(targets...),
		missioncontrol.WithPort(cfg.Port),
		missioncontrol.WithPollingInterval(cfg.PollInterval.Duration()),
		missioncontrol.WithDailyLimit(cfg.DailyLimit),
		missioncontrol.WithSystems(cfg.Systems...),
	}
	if cfg.Title != "" {
		opts = append(opts, missioncontrol.WithTitle(cfg.Title))
	}
	if cfg.MaxConcurrency > 0 {
		opts = append(opts, missioncontrol.WithMaxConcurrency(cfg.MaxConcurrency))
	}
	if cfg.Database != "" {
		opts = append(opts, missioncontrol.WithDatabase(cfg.Database))
	}
	if cfg.AuthSecret != "" {
		opts = append(opts, missioncontrol.WithAuthSecret(cfg.AuthSecret))
	}
	if cfg.Heartbeat.Disabled {
		opts = append(opts, missioncontrol.WithHeartbeat(0))
	} else {
		opts = append(opts, missioncontrol.WithHeartbeat(cfg.Heartbeat.Interval.Duration()))
	}
	return opts, nil
}

// buildTarget converts a single TargetConfig to an SDK Target.
func buildTarget(tc TargetConfig) (missioncontrol.Target, error) {
	var opts []missioncontrol.TargetOption

	if tc.Method != "" {
		opts = append(opts, missioncontrol.WithMethod(tc.Method))
	}

	if tc.Timeout != 0 {
		opts = append(opts, missioncontrol.WithTimeout(tc.Timeout.Duration()))
	}

	if len(tc.Headers) > 0 {
		opts = append(opts, missioncontrol.WithHeaders(mapToKeyValuePairs(tc.Headers)...))
	}

	if tc.Interval != 0 {
		opts = append(opts, missioncontrol.WithInterval(tc.Interval.Duration()))
	}

	return missioncontrol.NewTarget(tc.ID, tc.Name, tc.URL, opts...)
}

// mapToKeyValuePairs converts a map to a sorted slice of key-value pairs.
func mapToKeyValuePairs(m map[string]string) []string {
	// sort keys for deterministic ordering
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(m)*2)
	for _, k := range keys {
		pairs = append(pairs, k, m[k])
	}
	return pairs
}
