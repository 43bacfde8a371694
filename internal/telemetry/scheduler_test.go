package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// testLogger returns a logger that discards all output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func okServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestScheduler_StopBeforeStart(t *testing.T) {
	s := NewScheduler([]Target{{ID: "x", URL: "http://example.com"}}, time.Minute, 1, testLogger())
	s.Stop()
}

func TestScheduler_StopTwice(t *testing.T) {
	s := NewScheduler([]Target{{ID: "x", URL: "http://example.com"}}, time.Minute, 1, testLogger())
	s.Start(context.Background())
	go func() {
		for range s.Readings() {
		}
	}()
	s.Stop()
	s.Stop()
}

// TestScheduler_ConcurrentStartStop checks Start and Stop do not race.
// Run with: go test -race ./internal/telemetry/...
func TestScheduler_ConcurrentStartStop(t *testing.T) {
	targets := []Target{{ID: "x", URL: "http://example.com", Timeout: time.Second}}

	for i := 0; i < 100; i++ {
		s := NewScheduler(targets, time.Minute, 1, testLogger())

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Start(context.Background())
		}()
		go func() {
			defer wg.Done()
			s.Stop()
		}()
		wg.Wait()

		for range s.Readings() {
		}
	}
}

func TestScheduler_StopBeforeStartThenStart(t *testing.T) {
	s := NewScheduler([]Target{{ID: "x", URL: "http://example.com"}}, time.Minute, 1, testLogger())
	s.Stop()
	s.Start(context.Background())
	s.Stop()

	if _, ok := <-s.Readings(); ok {
		t.Error("expected readings channel to be closed")
	}
}

func TestScheduler_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewScheduler([]Target{{ID: "x", URL: "http://example.com", Timeout: time.Second}}, time.Minute, 1, testLogger())
	s.Start(ctx)
	go func() {
		for range s.Readings() {
		}
	}()

	cancel()

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("Stop() did not complete after parent context cancellation")
	}
}

func TestScheduler_OnlineReading(t *testing.T) {
	server := okServer(t)

	s := NewScheduler([]Target{{ID: "main-api", Name: "Main API", URL: server.URL}}, time.Hour, 1, testLogger(),
		WithLoadFunc(func() string { return "7%" }))
	s.Start(context.Background())

	var r Reading
	select {
	case r = <-s.Readings():
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for reading")
	}
	s.Stop()

	if !r.Online {
		t.Fatalf("Online = false, err = %v", r.Err)
	}
	if r.TargetID != "main-api" || r.Name != "Main API" {
		t.Errorf("reading = %+v", r)
	}
	if r.Load != "7%" {
		t.Errorf("Load = %q, want 7%%", r.Load)
	}
	if !strings.HasSuffix(r.LatencyLabel(), "ms") {
		t.Errorf("LatencyLabel() = %q", r.LatencyLabel())
	}
}

func TestScheduler_OfflineReading(t *testing.T) {
	server := okServer(t)
	url := server.URL
	server.Close()

	loadCalled := false
	s := NewScheduler([]Target{{ID: "hostinger-vps", URL: url, Timeout: time.Second}}, time.Hour, 1, testLogger(),
		WithLoadFunc(func() string { loadCalled = true; return "9%" }))
	s.Start(context.Background())

	r := <-s.Readings()
	s.Stop()

	if r.Online {
		t.Fatal("Online = true for a closed server")
	}
	if loadCalled {
		t.Error("load sampled for an offline target")
	}
	patch := r.Patch()
	if patch["status"] != "Offline" || patch["latency"] != "---" || patch["load"] != "-" {
		t.Errorf("Patch() = %v", patch)
	}
}

func TestScheduler_LoadPanicRecovery(t *testing.T) {
	server := okServer(t)

	s := NewScheduler([]Target{{ID: "a", URL: server.URL}}, time.Hour, 1, testLogger(),
		WithLoadFunc(func() string { panic("load gauge broke") }))
	s.Start(context.Background())

	var r Reading
	select {
	case r = <-s.Readings():
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for reading")
	}
	s.Stop()

	if !r.Online {
		t.Error("a broken load gauge must not mark the target offline")
	}
	if r.Load != "-" {
		t.Errorf("Load = %q, want -", r.Load)
	}
	if r.Err == nil || !strings.Contains(r.Err.Error(), "correlation_id") {
		t.Errorf("Err = %v, want correlation_id", r.Err)
	}
}

func TestScheduler_GCDCalculation(t *testing.T) {
	tests := []struct {
		name         string
		intervals    []time.Duration
		global       time.Duration
		expectedBase time.Duration
	}{
		{"all same interval", []time.Duration{10 * time.Second, 10 * time.Second}, 10 * time.Second, 10 * time.Second},
		{"5s and 10s gives 5s", []time.Duration{5 * time.Second, 10 * time.Second}, 30 * time.Second, 5 * time.Second},
		{"zero uses global", []time.Duration{6 * time.Second, 0}, 9 * time.Second, 3 * time.Second},
		{"co-prime intervals", []time.Duration{7 * time.Second, 11 * time.Second}, 30 * time.Second, time.Second},
		{"floored at one second", []time.Duration{300 * time.Millisecond}, 30 * time.Second, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			targets := make([]Target, len(tt.intervals))
			for i, iv := range tt.intervals {
				targets[i] = Target{ID: fmt.Sprintf("t%d", i), URL: "http://example.com", Interval: iv}
			}
			s := NewScheduler(targets, tt.global, 1, testLogger())
			if got := s.calculateBaseInterval(); got != tt.expectedBase {
				t.Errorf("calculateBaseInterval() = %v, want %v", got, tt.expectedBase)
			}
		})
	}
}

func TestScheduler_Defaults(t *testing.T) {
	s := NewScheduler(nil, 0, 0, nil)
	if s.interval != DefaultInterval {
		t.Errorf("interval = %v, want %v", s.interval, DefaultInterval)
	}
	if s.maxConcurrency != 1 {
		t.Errorf("maxConcurrency = %d, want 1", s.maxConcurrency)
	}
	if got := s.calculateBaseInterval(); got != DefaultInterval {
		t.Errorf("calculateBaseInterval() = %v, want %v", got, DefaultInterval)
	}
}

// TestScheduler_MixedIntervals verifies targets are probed at their own
// frequencies.
func TestScheduler_MixedIntervals(t *testing.T) {
	server := okServer(t)

	targets := []Target{
		{ID: "fast", URL: server.URL, Interval: time.Second},
		{ID: "slow", URL: server.URL, Interval: 3 * time.Second},
	}
	s := NewScheduler(targets, 5*time.Second, 2, testLogger())
	s.Start(context.Background())

	counts := make(map[string]int)
	timeout := time.After(3500 * time.Millisecond)

collecting:
	for {
		select {
		case r, ok := <-s.Readings():
			if !ok {
				break collecting
			}
			counts[r.TargetID]++
		case <-timeout:
			break collecting
		}
	}
	s.Stop()

	if counts["fast"] < 3 {
		t.Errorf("fast probed %d times, expected at least 3", counts["fast"])
	}
	if counts["slow"] > counts["fast"] {
		t.Errorf("slow probed %d times, fast %d times", counts["slow"], counts["fast"])
	}
}

func TestScheduler_ImmediateProbeOnStart(t *testing.T) {
	server := okServer(t)

	s := NewScheduler([]Target{{ID: "long", URL: server.URL, Interval: time.Hour}}, time.Hour, 1, testLogger())
	s.Start(context.Background())

	select {
	case r := <-s.Readings():
		if r.TargetID != "long" {
			t.Errorf("TargetID = %q, want long", r.TargetID)
		}
	case <-time.After(time.Second):
		t.Error("timeout waiting for immediate probe")
	}
	s.Stop()
}

func TestReading_Patch(t *testing.T) {
	r := Reading{TargetID: "main-api", Name: "Main API", Online: true, Latency: 123 * time.Millisecond, Load: "12%"}
	patch := r.Patch()

	want := map[string]any{
		"name":         "Main API",
		"status":       "Online",
		"latency":      "123ms",
		"load":         "12%",
		"last_updated": "$serverTimestamp",
	}
	for k, v := range want {
		if patch[k] != v {
			t.Errorf("Patch()[%q] = %v, want %v", k, patch[k], v)
		}
	}
}

func TestMockLoad(t *testing.T) {
	for i := 0; i < 200; i++ {
		load := MockLoad()
		var n int
		if _, err := fmt.Sscanf(load, "%d%%", &n); err != nil {
			t.Fatalf("MockLoad() = %q: %v", load, err)
		}
		if n < 5 || n > 19 {
			t.Fatalf("MockLoad() = %q, want 5%%..19%%", load)
		}
	}
}
