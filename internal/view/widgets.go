package view

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jpalmerr/missioncontrol/internal/docstore"
	"github.com/jpalmerr/missioncontrol/internal/subscription"
)

// Well-known documents of the System_Status collection.
const (
	ControlDocID = "control"
	CoreDocID    = "core"
	ThermalDocID = "thermal"
)

// DefaultSystems are the status cards shown when none are configured.
var DefaultSystems = []string{"main-api", "firebase", "hostinger-vps"}

const (
	defaultLoadPercent = 40
	defaultTemperature = 42
	burnCriticalRatio  = 0.8
)

// Burn is the daily spend widget.
type Burn struct {
	Spend      float64 `json:"spend"`
	Limit      float64 `json:"limit"`
	Percentage float64 `json:"percentage"`
	Critical   bool    `json:"critical"`
	// Skipped lists ledger entries whose amount could not be read.
	Skipped []string `json:"skipped,omitempty"`
}

// DailyBurn sums the amount field of ledger documents against a daily limit.
// The percentage is capped at 100 and the burn is critical above 80% of the
// limit.
func DailyBurn(ledger []docstore.Document, limit float64, opts ...Option) Burn {
	res := Reduce(ledger, 0, SumField("amount"), opts...)
	b := Burn{
		Spend:    res.Value,
		Limit:    limit,
		Critical: Exceeds(res.Value, limit, burnCriticalRatio),
	}
	if limit > 0 {
		b.Percentage = math.Min(res.Value/limit*100, 100)
	}
	for _, f := range res.Faults {
		b.Skipped = append(b.Skipped, f.DocumentID)
	}
	return b
}

// System is one status card.
type System struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	Latency    string `json:"latency"`
	Load       string `json:"load"`
	Percentage int    `json:"percentage"`
	Online     bool   `json:"online"`
}

// Systems builds one card per id from System_Status documents. A missing
// document renders as an offline card.
func Systems(status []docstore.Document, ids []string) []System {
	out := make([]System, 0, len(ids))
	for _, id := range ids {
		d, _ := FindByID(status, id)
		s := System{
			ID:         id,
			Name:       orDefault(d.String("name"), strings.ToUpper(strings.Replace(id, "-", " ", 1))),
			Status:     orDefault(d.String("status"), "Offline"),
			Latency:    orDefault(d.String("latency"), "---"),
			Load:       orDefault(d.String("load"), "-"),
			Percentage: defaultLoadPercent,
		}
		if load := d.String("load"); load != "" {
			s.Percentage = leadingInt(load)
		}
		s.Online = s.Status == "Online"
		out = append(out, s)
	}
	return out
}

// Frozen reports whether the core document has freeze set.
func Frozen(status []docstore.Document) bool {
	d, ok := FindByID(status, CoreDocID)
	return ok && d.Bool("freeze")
}

// ScrapeActive reports whether a forced scrape is pending on the control
// document.
func ScrapeActive(status []docstore.Document) bool {
	d, ok := FindByID(status, ControlDocID)
	return ok && d.Bool("RCIA_SCRAPE")
}

// Temperature is the thermal widget.
type Temperature struct {
	Celsius int  `json:"celsius"`
	Live    bool `json:"live"`
}

// Thermal reads the rounded CPU temperature from the thermal document.
// Live is false when the document is absent.
func Thermal(status []docstore.Document) Temperature {
	d, ok := FindByID(status, ThermalDocID)
	t := Temperature{Celsius: defaultTemperature, Live: ok}
	if n, ok := Number(d.Fields["cpu_temp"]); ok && n != 0 {
		t.Celsius = int(math.Round(n))
	}
	return t
}

// Agent is one row of the active agents widget.
type Agent struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	Task   string `json:"task"`
	Status string `json:"status"`
}

var defaultAgents = []Agent{
	{ID: "ag-1", Name: "Antigravity", Role: "Lead Engineer", Task: "Dashboard Init", Status: "Working"},
	{ID: "oc-1", Name: "OpenClaw", Role: "Strategist", Task: "Planning Mission", Status: "Optimizing"},
	{ID: "bot-1", Name: "SmartPress", Role: "Content", Task: "Indexing Logs", Status: "Idle"},
}

// Agents lists Active_Agents documents, or the default crew when the
// collection is empty.
func Agents(docs []docstore.Document) []Agent {
	if len(docs) == 0 {
		out := make([]Agent, len(defaultAgents))
		copy(out, defaultAgents)
		return out
	}
	out := make([]Agent, 0, len(docs))
	for _, d := range docs {
		out = append(out, Agent{
			ID:     d.ID,
			Name:   d.String("name"),
			Role:   d.String("role"),
			Task:   d.String("task"),
			Status: d.String("status"),
		})
	}
	return out
}

// NextCycle returns when the next regulatory update is due: the control
// document's next_expected_update when it is an RFC 3339 string or epoch
// milliseconds, otherwise the next quarter hour strictly after now.
func NextCycle(status []docstore.Document, now time.Time) time.Time {
	if d, ok := FindByID(status, ControlDocID); ok {
		switch raw := d.Fields["next_expected_update"].(type) {
		case string:
			if t, err := time.Parse(time.RFC3339, raw); err == nil {
				return t
			}
		case nil:
		default:
			// epoch milliseconds
			if ms, ok := Number(raw); ok && !math.IsNaN(ms) && !math.IsInf(ms, 0) {
				return time.UnixMilli(int64(ms))
			}
		}
	}
	quarter := (now.Minute() + 1 + 14) / 15 * 15
	target := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location()).
		Add(time.Duration(quarter) * time.Minute)
	if !target.After(now) {
		target = target.Add(15 * time.Minute)
	}
	return target
}

// FormatCountdown renders a remaining duration as MM:SS, or HH:MM:SS when
// at least an hour is left. Hours wrap at a day. Zero or negative renders
// as 00:00:00.
func FormatCountdown(d time.Duration) string {
	if d <= 0 {
		return "00:00:00"
	}
	total := int64(d / time.Second)
	hours := (total / 3600) % 24
	minutes := (total / 60) % 60
	seconds := total % 60
	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}

// Availability names how a subscription should be rendered.
type Availability string

const (
	AvailabilityLoading     Availability = "loading"
	AvailabilityLive        Availability = "live"
	AvailabilityStale       Availability = "stale"
	AvailabilityUnavailable Availability = "unavailable"
)

// AvailabilityOf maps a handle view to its display state: errored without
// data is unavailable, errored with data is stale.
func AvailabilityOf(v subscription.View) Availability {
	switch {
	case v.Unavailable():
		return AvailabilityUnavailable
	case v.Stale():
		return AvailabilityStale
	case v.State == subscription.Loading:
		return AvailabilityLoading
	default:
		return AvailabilityLive
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// leadingInt parses the integer prefix of s ("12%" is 12). No digits
// gives the default load.
func leadingInt(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && (s[end] >= '0' && s[end] <= '9' || end == 0 && (s[0] == '-' || s[0] == '+')) {
		end++
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return defaultLoadPercent
	}
	return n
}
