package missioncontrol

import "time"

// Reading is the outcome of probing one [Target], as passed to callbacks
// registered with [WithReadingCallback].
type Reading struct {
	// TargetID is the System_Status document the reading was written to.
	TargetID string

	// Name is the target's display name.
	Name string

	// Online reports whether the target answered at all.
	Online bool

	// Latency is the round trip, including draining the body.
	Latency time.Duration

	// StatusCode is zero when no response arrived.
	StatusCode int

	// Load is the reported load such as "12%", or "-" when offline.
	Load string

	// CheckedAt is when the probe finished.
	CheckedAt time.Time

	// Err is the probe error, if any.
	Err error

	// PublishErr is set when writing the reading to System_Status failed.
	PublishErr error
}
