package telemetry

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/jpalmerr/missioncontrol/internal/docstore"
)

// Status values written to System_Status documents.
const (
	StatusOnline  = "Online"
	StatusOffline = "Offline"
)

// Target is one system whose reachability is reported.
type Target struct {
	// ID is the System_Status document the reading is written to.
	ID string

	// Name is the display name written with each reading.
	Name string

	URL     string
	Method  string
	Headers map[string]string
	Timeout time.Duration

	// Interval overrides the scheduler's interval when non-zero.
	Interval time.Duration
}

// Reading is the result of probing one target.
type Reading struct {
	TargetID   string
	Name       string
	Online     bool
	Latency    time.Duration
	StatusCode int
	// Load is the reported load, such as "12%", or "-" when offline.
	Load      string
	CheckedAt time.Time
	Err       error
}

// LatencyLabel renders latency as "<n>ms", or "---" when offline.
func (r Reading) LatencyLabel() string {
	if !r.Online {
		return "---"
	}
	return fmt.Sprintf("%dms", r.Latency.Milliseconds())
}

// Status returns [StatusOnline] or [StatusOffline].
func (r Reading) Status() string {
	if r.Online {
		return StatusOnline
	}
	return StatusOffline
}

// Patch is the merge patch for the target's System_Status document.
func (r Reading) Patch() map[string]any {
	load := r.Load
	if !r.Online || load == "" {
		load = "-"
	}
	return map[string]any{
		"name":         r.Name,
		"status":       r.Status(),
		"latency":      r.LatencyLabel(),
		"load":         load,
		"last_updated": docstore.ServerTimestamp,
	}
}

// LoadFunc reports a target's load label.
type LoadFunc func() string

// MockLoad is the default [LoadFunc]: a random 5% to 19%. No target exposes
// a real load figure yet.
func MockLoad() string {
	return fmt.Sprintf("%d%%", rand.IntN(15)+5)
}
