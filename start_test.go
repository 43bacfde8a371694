package missioncontrol

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func okTarget(t *testing.T) Target {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(ts.Close)

	target, err := NewTarget("main-api", "Main API", ts.URL)
	if err != nil {
		t.Fatalf("NewTarget() error = %v", err)
	}
	return target
}

func fixedSampler(context.Context) float64 { return 48.5 }

// TestStart_BlocksUntilContextCancelled verifies that Start blocks until the
// provided context is cancelled.
func TestStart_BlocksUntilContextCancelled(t *testing.T) {
	mc, err := New(
		WithTarget(okTarget(t)),
		WithPort(19001),
		WithPollingInterval(100*time.Millisecond),
		WithTemperatureSampler(fixedSampler),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		close(started)
		done <- mc.Start(ctx)
	}()

	<-started
	time.Sleep(50 * time.Millisecond)

	select {
	case err := <-done:
		t.Fatalf("Start() returned early with error: %v", err)
	default:
		// expected: still blocking
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after context cancellation")
	}
}

// TestStart_ReturnsImmediatelyIfContextAlreadyCancelled verifies that Start
// returns immediately if the context is already cancelled.
func TestStart_ReturnsImmediatelyIfContextAlreadyCancelled(t *testing.T) {
	mc, err := New(WithTarget(okTarget(t)), WithPort(19002))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() {
		done <- mc.Start(ctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return with already-cancelled context")
	}
}

// TestStart_MultipleSequentialRuns verifies that a new MissionControl can be
// started after the previous one shuts down.
func TestStart_MultipleSequentialRuns(t *testing.T) {
	target := okTarget(t)

	for i := 0; i < 3; i++ {
		mc, err := New(
			WithTarget(target),
			WithPort(19004+i),
			WithPollingInterval(50*time.Millisecond),
			WithTemperatureSampler(fixedSampler),
		)
		if err != nil {
			t.Fatalf("iteration %d: New() error = %v", i, err)
		}

		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan error, 1)
		go func() {
			done <- mc.Start(ctx)
		}()

		time.Sleep(100 * time.Millisecond)
		cancel()

		select {
		case err := <-done:
			if err != nil {
				t.Errorf("iteration %d: Start() returned error: %v", i, err)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("iteration %d: Start() did not return", i)
		}
	}
}

// TestStart_ConcurrentAccess verifies read accessors are safe while running.
func TestStart_ConcurrentAccess(t *testing.T) {
	mc, err := New(
		WithTarget(okTarget(t)),
		WithPort(19010),
		WithPollingInterval(50*time.Millisecond),
		WithHeartbeat(0),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = mc.Start(ctx)
	}()

	time.Sleep(100 * time.Millisecond)

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = mc.Targets()
			_ = mc.Port()
			_ = mc.PollingInterval()
		}()
	}

	time.Sleep(50 * time.Millisecond)
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("goroutines did not complete")
	}
}

// TestStart_WithTimeoutContext verifies Start respects deadline contexts.
func TestStart_WithTimeoutContext(t *testing.T) {
	mc, err := New(
		WithTarget(okTarget(t)),
		WithPort(19011),
		WithPollingInterval(50*time.Millisecond),
		WithTemperatureSampler(fixedSampler),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = mc.Start(ctx)
	elapsed := time.Since(start)

	if elapsed < 150*time.Millisecond || elapsed > time.Second {
		t.Errorf("Start() ran for %v, expected ~200ms", elapsed)
	}
	if err != nil {
		t.Errorf("Start() returned error: %v", err)
	}
}

// TestStart_PortInUse verifies Start fails when the port is taken.
func TestStart_PortInUse(t *testing.T) {
	first, err := New(WithPort(19012), WithHeartbeat(0))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- first.Start(ctx)
	}()
	time.Sleep(100 * time.Millisecond)

	second, err := New(WithPort(19012), WithHeartbeat(0))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := second.Start(ctx); err == nil {
		t.Error("Start() expected error for port in use, got nil")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("first Start() did not return")
	}
}

// TestStart_BadDatabasePath verifies Start reports a store that cannot open.
func TestStart_BadDatabasePath(t *testing.T) {
	mc, err := New(
		WithPort(19013),
		WithDatabase(t.TempDir()+"/missing/dir/mc.db"),
		WithHeartbeat(0),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := mc.Start(ctx); err == nil {
		t.Error("Start() expected error for unopenable database, got nil")
	}
}
