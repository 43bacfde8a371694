package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultInterval matches the original telemetry pulse.
	DefaultInterval = 30 * time.Second

	// DefaultTimeout bounds one probe.
	DefaultTimeout = 5 * time.Second
)

// Scheduler probes targets periodically with a bounded worker pool.
//
// Every target is probed once on start. After that the scheduler ticks at
// the GCD of all target intervals and probes only targets that are due.
// Readings are emitted on [Scheduler.Readings].
//
// Start and Stop are safe for concurrent use.
type Scheduler struct {
	targets        []Target
	interval       time.Duration
	maxConcurrency int
	client         *Client
	load           LoadFunc
	readings       chan Reading
	logger         *slog.Logger
	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup

	mu        sync.Mutex
	started   bool
	stopped   bool
	closeOnce sync.Once

	lastProbedAt map[string]time.Time
	baseInterval time.Duration
}

// SchedulerOption configures a [Scheduler].
type SchedulerOption func(*Scheduler)

// WithLoadFunc replaces [MockLoad].
func WithLoadFunc(fn LoadFunc) SchedulerOption {
	return func(s *Scheduler) {
		if fn != nil {
			s.load = fn
		}
	}
}

// WithClient replaces the probe client.
func WithClient(c *Client) SchedulerOption {
	return func(s *Scheduler) {
		if c != nil {
			s.client = c
		}
	}
}

// NewScheduler creates a scheduler. A non-positive interval means
// [DefaultInterval]; a non-positive maxConcurrency means one worker.
func NewScheduler(targets []Target, interval time.Duration, maxConcurrency int, logger *slog.Logger, opts ...SchedulerOption) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		targets:        targets,
		interval:       interval,
		maxConcurrency: maxConcurrency,
		client:         NewClient(),
		load:           MockLoad,
		readings:       make(chan Reading, len(targets)),
		logger:         logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Readings is closed when the scheduler stops.
func (s *Scheduler) Readings() <-chan Reading {
	return s.readings
}

// calculateBaseInterval returns the GCD of all target intervals, floored at
// one second.
func (s *Scheduler) calculateBaseInterval() time.Duration {
	if len(s.targets) == 0 {
		return s.interval
	}

	result := s.intervalFor(s.targets[0])
	for _, t := range s.targets[1:] {
		result = gcdDuration(result, s.intervalFor(t))
	}
	if result < time.Second {
		result = time.Second
	}
	return result
}

func (s *Scheduler) intervalFor(t Target) time.Duration {
	if t.Interval > 0 {
		return t.Interval
	}
	return s.interval
}

func gcdDuration(a, b time.Duration) time.Duration {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// Start begins probing in the background and returns immediately. It is a
// no-op after the first call or after Stop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.lastProbedAt = make(map[string]time.Time, len(s.targets))
	s.baseInterval = s.calculateBaseInterval()

	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	probeCtx := s.ctx
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer s.closeOnce.Do(func() { close(s.readings) })

		s.probeDue(probeCtx, true)

		ticker := time.NewTicker(s.baseInterval)
		defer ticker.Stop()

		for {
			select {
			case <-probeCtx.Done():
				return
			case <-ticker.C:
				s.probeDue(probeCtx, false)
			}
		}
	}()
}

// Stop cancels probing, waits for in-flight probes and closes the readings
// channel. Safe to call more than once, and before Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		if s.cancel != nil {
			s.cancel()
		}
	}
	s.mu.Unlock()

	s.wg.Wait()

	if s.client != nil {
		s.client.Close()
	}
	s.closeOnce.Do(func() { close(s.readings) })
}

// probeDue probes targets whose interval has elapsed, or all of them when
// immediate is set. lastProbedAt is stamped when a probe starts, so a slow
// target is never probed twice at once.
func (s *Scheduler) probeDue(ctx context.Context, immediate bool) {
	now := time.Now()
	due := make([]Target, 0, len(s.targets))

	s.mu.Lock()
	for _, t := range s.targets {
		last, seen := s.lastProbedAt[t.ID]
		if immediate || !seen || now.Sub(last) >= s.intervalFor(t) {
			due = append(due, t)
			s.lastProbedAt[t.ID] = now
		}
	}
	s.mu.Unlock()

	if len(due) == 0 {
		return
	}
	s.probeAll(ctx, due)
}

// probeAll runs probes on at most maxConcurrency workers.
func (s *Scheduler) probeAll(ctx context.Context, targets []Target) {
	jobs := make(chan Target, len(targets))

	var wg sync.WaitGroup
	for i := 0; i < s.maxConcurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range jobs {
				r := s.probe(ctx, t)
				select {
				case s.readings <- r:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	for _, t := range targets {
		select {
		case jobs <- t:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return
		}
	}
	close(jobs)

	wg.Wait()
}

func (s *Scheduler) probe(ctx context.Context, t Target) Reading {
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	p := s.client.Probe(ctx, t.Method, t.URL, t.Headers, timeout)

	r := Reading{
		TargetID:   t.ID,
		Name:       t.Name,
		Online:     p.Reachable(),
		Latency:    p.Latency,
		StatusCode: p.StatusCode,
		CheckedAt:  time.Now(),
		Err:        p.Err,
	}
	if r.Online {
		load, err := s.safeLoad()
		if err != nil {
			r.Err = err
			load = "-"
		}
		r.Load = load
	}
	s.logger.Debug("telemetry pulse",
		"target", t.ID,
		"status", r.Status(),
		"latency", r.LatencyLabel(),
		"load", r.Load,
	)
	return r
}

// safeLoad calls the load function with panic recovery.
func (s *Scheduler) safeLoad() (load string, err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			s.logger.Error("load function panic",
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("load function panic (correlation_id: %s)", correlationID)
		}
	}()
	return s.load(), nil
}
