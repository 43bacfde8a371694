package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jpalmerr/missioncontrol/internal/subscription"
)

// sseStream writes Server-Sent Events with a per-write deadline.
//
// Without deadlines a blocked write would keep the handler from noticing
// context cancellation or channel closure.
type sseStream struct {
	w                  http.ResponseWriter
	rc                 *http.ResponseController
	logger             *slog.Logger
	deadlinesSupported bool
}

// newSSEStream sets the SSE headers. It fails with a 500 reply when the
// writer cannot flush.
func newSSEStream(w http.ResponseWriter, logger *slog.Logger) (*sseStream, bool) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	return &sseStream{
		w:                  w,
		rc:                 http.NewResponseController(w),
		logger:             logger,
		deadlinesSupported: true,
	}, true
}

// send writes v as one JSON data event and flushes it.
func (s *sseStream) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	if s.deadlinesSupported {
		if err := s.rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
			// deadline not supported by underlying connection, continue without
			s.logger.Warn("sse write deadlines not supported", "error", err)
			s.deadlinesSupported = false
		}
	}

	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	// ResponseController.Flush respects the write deadline
	return s.rc.Flush()
}

// latestView keeps only the newest view of a subscription. Snapshots
// replace each other, so a slow consumer can skip intermediate ones.
type latestView struct {
	mu     sync.Mutex
	view   subscription.View
	fresh  bool
	signal chan struct{}
}

func newLatestView() *latestView {
	return &latestView{signal: make(chan struct{}, 1)}
}

// set is a subscription change callback. It never blocks.
func (l *latestView) set(v subscription.View) {
	l.mu.Lock()
	l.view = v
	l.fresh = true
	l.mu.Unlock()

	select {
	case l.signal <- struct{}{}:
	default:
	}
}

// take returns the newest view if it has not been taken yet.
func (l *latestView) take() (subscription.View, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.fresh {
		return subscription.View{}, false
	}
	l.fresh = false
	return l.view, true
}
