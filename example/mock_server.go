package main

import (
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

// mockState tracks availability and next flip time for one target.
type mockState struct {
	up           bool
	nextChangeAt time.Time
}

// StartMockTargets serves /api/health and /vps/health. Each flips between
// 200 and 503 every 20-60 seconds.
func StartMockTargets(addr string) {
	var (
		states = make(map[string]*mockState)
		mu     sync.Mutex
	)

	health := func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path

		// simulate latency variance
		time.Sleep(time.Duration(50+rand.Intn(150)) * time.Millisecond)

		mu.Lock()
		state, exists := states[key]
		if !exists {
			state = &mockState{up: true, nextChangeAt: nextFlip()}
			states[key] = state
		}
		if time.Now().After(state.nextChangeAt) {
			state.up = !state.up
			state.nextChangeAt = nextFlip()
			slog.Info("mock target flipped", "path", key, "up", state.up)
		}
		up := state.up
		mu.Unlock()

		if !up {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", health)
	mux.HandleFunc("/vps/health", health)

	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("mock server error", "error", err)
	}
}

func nextFlip() time.Time {
	return time.Now().Add(time.Duration(20+rand.Intn(41)) * time.Second)
}
