package missioncontrol

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestWithReadingCallback_InvokedOnProbe(t *testing.T) {
	var callCount atomic.Int32

	mc, err := New(
		WithTarget(okTarget(t)),
		WithReadingCallback(func(Reading) { callCount.Add(1) }),
		WithPollingInterval(50*time.Millisecond),
		WithPort(19200),
		WithHeartbeat(0),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_ = mc.Start(ctx)

	if callCount.Load() == 0 {
		t.Error("callback should have been invoked at least once")
	}
}

func TestWithReadingCallback_ReceivesCorrectFields(t *testing.T) {
	var (
		mu     sync.Mutex
		result Reading
		once   sync.Once
	)
	done := make(chan struct{})

	mc, err := New(
		WithTarget(okTarget(t)),
		WithReadingCallback(func(r Reading) {
			once.Do(func() {
				mu.Lock()
				result = r
				mu.Unlock()
				close(done)
			})
		}),
		WithPort(19201),
		WithHeartbeat(0),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		_ = mc.Start(ctx)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		cancel()
		t.Fatal("callback was not invoked")
	}
	cancel()
	<-stopped

	mu.Lock()
	defer mu.Unlock()
	if result.TargetID != "main-api" {
		t.Errorf("TargetID = %q, want %q", result.TargetID, "main-api")
	}
	if result.Name != "Main API" {
		t.Errorf("Name = %q, want %q", result.Name, "Main API")
	}
	if !result.Online {
		t.Error("Online = false, want true")
	}
	if result.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want %d", result.StatusCode, http.StatusOK)
	}
	if !strings.HasSuffix(result.Load, "%") {
		t.Errorf("Load = %q, want a percentage", result.Load)
	}
	if result.CheckedAt.IsZero() {
		t.Error("CheckedAt should be set")
	}
	if result.Err != nil {
		t.Errorf("Err = %v, want nil", result.Err)
	}
	if result.PublishErr != nil {
		t.Errorf("PublishErr = %v, want nil", result.PublishErr)
	}
}

func TestWithReadingCallback_OfflineTarget(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()

	target, err := NewTarget("hostinger-vps", "VPS", url, WithTimeout(200*time.Millisecond))
	if err != nil {
		t.Fatalf("NewTarget() error = %v", err)
	}

	got := make(chan Reading, 1)
	mc, err := New(
		WithTarget(target),
		WithReadingCallback(func(r Reading) {
			select {
			case got <- r:
			default:
			}
		}),
		WithPort(19202),
		WithHeartbeat(0),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = mc.Start(ctx) }()

	select {
	case r := <-got:
		if r.Online {
			t.Error("Online = true, want false for a closed server")
		}
		if r.Load != "-" {
			t.Errorf("Load = %q, want %q", r.Load, "-")
		}
		if r.Err == nil {
			t.Error("Err should be set for an unreachable target")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("callback was not invoked")
	}
}

func TestWithReadingCallback_MultipleInOrder(t *testing.T) {
	var (
		mu    sync.Mutex
		order []int
	)
	record := func(n int) func(Reading) {
		return func(Reading) {
			mu.Lock()
			defer mu.Unlock()
			if len(order) < 3 {
				order = append(order, n)
			}
		}
	}

	mc, err := New(
		WithTarget(okTarget(t)),
		WithReadingCallback(record(1)),
		WithReadingCallback(record(2)),
		WithReadingCallback(record(3)),
		WithPort(19203),
		WithHeartbeat(0),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_ = mc.Start(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("callback order = %v, want [1 2 3]", order)
	}
}

func TestWithReadingCallback_PanicRecovered(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	var after atomic.Int32
	mc, err := New(
		WithTarget(okTarget(t)),
		WithReadingCallback(func(Reading) { panic("boom") }),
		WithReadingCallback(func(Reading) { after.Add(1) }),
		WithPollingInterval(50*time.Millisecond),
		WithPort(19204),
		WithLogger(logger),
		WithHeartbeat(0),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	if err := mc.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if after.Load() == 0 {
		t.Error("callback after a panicking one should still run")
	}
	if !strings.Contains(buf.String(), "reading callback panicked") {
		t.Errorf("expected panic to be logged, got:\n%s", buf.String())
	}
}
